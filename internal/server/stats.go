package server

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// StatsLoop logs an occupancy and traffic table once a minute and refreshes
// the per-stream minute rates. Enabled by the print_stats setting.
func (s *Sequencer) StatsLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.updateMinuteRates()
			s.printStats()
		}
	}
}

// updateMinuteRates derives bytes-per-second rates from the traffic
// accumulated since the previous tick.
func (s *Sequencer) updateMinuteRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		for _, t := range c.traffic {
			t.bandwidthInRate = float64(t.bandwidthIn-t.bandwidthInLastMin) / 60
			t.bandwidthOutRate = float64(t.bandwidthOut-t.bandwidthOutLastMin) / 60
			t.bandwidthInLastMin = t.bandwidthIn
			t.bandwidthOutLastMin = t.bandwidthOut
		}
	}
}

func (s *Sequencer) printStats() {
	if !s.cfg.Server.PrintStats {
		return
	}

	type row struct {
		uid     uint32
		nick    string
		auth    string
		streams int
		in      uint64
		out     uint64
		inRate  float64
		outRate float64
	}

	s.mu.Lock()
	rows := make([]row, 0, len(s.clients))
	for _, c := range s.clients {
		r := row{uid: c.UID, nick: c.Nickname, auth: c.Auth.Letters(), streams: len(c.streams)}
		for _, t := range c.traffic {
			r.in += t.bandwidthIn
			r.out += t.bandwidthOut
			r.inRate += t.bandwidthInRate
			r.outRate += t.bandwidthOutRate
		}
		rows = append(rows, r)
	}
	count := len(s.clients)
	s.mu.Unlock()

	event := s.log.Info().
		Int("players", count).
		Int("max_players", s.cfg.Game.MaxPlayers).
		Uint64("connections_total", s.TotalConnections()).
		Uint64("crashes", s.Crashes()).
		Dur("uptime", s.Uptime())

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		event = event.Float64("cpu_percent", percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		event = event.Float64("mem_percent", vm.UsedPercent)
	}
	event.Msg("Server stats")

	for _, r := range rows {
		s.log.Info().
			Uint32("uid", r.uid).
			Str("nickname", r.nick).
			Str("auth", r.auth).
			Int("streams", r.streams).
			Uint64("bytes_in", r.in).
			Uint64("bytes_out", r.out).
			Float64("rate_in_bps", r.inRate).
			Float64("rate_out_bps", r.outRate).
			Msg("Client traffic")
	}
}
