package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer exposes /metrics and /health on the operational address.
type HTTPServer struct {
	seq *Sequencer
	log zerolog.Logger
	srv *http.Server
}

func NewHTTPServer(seq *Sequencer, gatherer prometheus.Gatherer, logger zerolog.Logger) *HTTPServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &HTTPServer{
		seq: seq,
		log: logger.With().Str("component", "http").Logger(),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", h.handleHealth)

	h.srv = &http.Server{
		Addr:              seq.cfg.Server.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

func (h *HTTPServer) Start() {
	go func() {
		h.log.Info().Str("addr", h.srv.Addr).Msg("Operational HTTP listening")
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Error().Err(err).Msg("Operational HTTP failed")
		}
	}()
}

func (h *HTTPServer) Stop(ctx context.Context) {
	if err := h.srv.Shutdown(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Operational HTTP shutdown")
	}
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":            "ok",
		"players":           h.seq.ClientCount(),
		"max_players":       h.seq.cfg.Game.MaxPlayers,
		"uptime_seconds":    int(h.seq.Uptime().Seconds()),
		"connections_total": h.seq.TotalConnections(),
		"crashes":           h.seq.Crashes(),
	})
}
