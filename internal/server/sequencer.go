package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/gamerelay/internal/config"
	"github.com/adred-codev/gamerelay/internal/protocol"
)

var (
	ErrServerFull    = errors.New("server full")
	ErrBanned        = errors.New("banned")
	ErrNotAuthorized = errors.New("not authorized")
	ErrUnknownUID    = errors.New("unknown uid")
)

// ScriptHost receives lifecycle callbacks. PlayerChat may return a publish
// mode override; a negative value keeps the default.
type ScriptHost interface {
	PlayerAdded(uid uint32, nickname string)
	PlayerDeleted(uid uint32, crashed bool)
	PlayerChat(uid uint32, msg string) int
	GameCmd(uid uint32, cmd string)
}

// AuthResolver maps a client token to its access level and registered
// nickname.
type AuthResolver interface {
	Resolve(token string) (protocol.AuthFlags, string, bool)
}

// EventEmitter publishes user lifecycle events to the outside world.
type EventEmitter interface {
	Emit(kind, uniqueID, nickname, vehicle string)
}

// Ban is one entry in the ban list, keyed by source IP.
type Ban struct {
	UID      uint32
	IP       string
	Nickname string
	BannedBy string
	Message  string
}

// ChatEntry is one line of the public chat history.
type ChatEntry struct {
	When     time.Time
	UID      uint32
	Nickname string
	Message  string
}

// chatHistoryCap bounds the in-memory chat ring.
const chatHistoryCap = 500

// rejectTimeout bounds the courtesy write on a refused connection.
const rejectTimeout = 10 * time.Second

// Publish modes for relayed frames.
const (
	publishNone      = 0 // consumed by the server
	publishPeers     = 1 // every flow-enabled client except the sender
	publishModerated = 2 // admins and moderators only
	publishAll       = 3 // every flow-enabled client, sender included
)

// Sequencer owns the session table and all relay decisions. One value per
// server; everything it needs is passed in, nothing is global.
//
// Lock order: killMu before mu before chatMu and bansMu.
type Sequencer struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *Metrics

	script ScriptHost
	auth   AuthResolver
	events EventEmitter

	mu      sync.Mutex
	clients []*Client
	fuid    uint32

	killMu sync.Mutex
	killer *killer

	bansMu sync.Mutex
	bans   []Ban

	chatMu   sync.Mutex
	chat     []ChatEntry
	chatNext int

	motd []string

	failures  chan ioFailure
	drainDone chan struct{}

	startTime  time.Time
	connsTotal atomic.Uint64
	crashes    atomic.Uint64
}

func NewSequencer(cfg *config.Config, logger zerolog.Logger, m *Metrics) *Sequencer {
	return &Sequencer{
		cfg:       cfg,
		log:       logger.With().Str("component", "sequencer").Logger(),
		metrics:   m,
		killer:    newKiller(logger),
		chat:      make([]ChatEntry, 0, chatHistoryCap),
		failures:  make(chan ioFailure, 256),
		drainDone: make(chan struct{}),
		startTime: time.Now(),
	}
}

// SetScriptHost, SetAuthResolver and SetEventEmitter wire optional
// collaborators. Call before Start.
func (s *Sequencer) SetScriptHost(h ScriptHost)     { s.script = h }
func (s *Sequencer) SetAuthResolver(r AuthResolver) { s.auth = r }
func (s *Sequencer) SetEventEmitter(e EventEmitter) { s.events = e }

// Start loads the MOTD and persisted bans and launches the reaper and the
// failure drain loop.
func (s *Sequencer) Start() {
	s.loadMOTD()
	s.loadBans()
	s.killer.start()
	go s.drainFailures()
	s.log.Info().Int("max_players", s.cfg.Game.MaxPlayers).Msg("Sequencer started")
}

// Stop disconnects every client and joins the reaper. Must not be called
// concurrently with Admit.
func (s *Sequencer) Stop() {
	for {
		s.mu.Lock()
		if len(s.clients) == 0 {
			s.mu.Unlock()
			break
		}
		uid := s.clients[0].UID
		s.mu.Unlock()
		s.Disconnect(uid, "server shutting down", false)
	}
	s.killer.stop()
	close(s.failures)
	<-s.drainDone
	s.saveBans()
	s.log.Info().Msg("Sequencer stopped")
}

// drainFailures turns pump failures into disconnects. Pumps post here
// instead of calling the sequencer, so a dying connection never re-enters
// the table lock from inside its own pipeline.
func (s *Sequencer) drainFailures() {
	defer close(s.drainDone)
	for f := range s.failures {
		s.log.Debug().Uint32("uid", f.uid).Str("op", f.op).Err(f.err).Msg("Pipeline failure")
		s.Disconnect(f.uid, "connection closed unexpectedly", true)
	}
}

// ResolveAuth consults the auth cache for a token. Unknown tokens join as
// plain users under their requested name.
func (s *Sequencer) ResolveAuth(token, requested string) (protocol.AuthFlags, string) {
	if s.auth != nil {
		if flags, nick, ok := s.auth.Resolve(token); ok {
			if nick == "" {
				nick = requested
			}
			return flags, nick
		}
	}
	return protocol.AuthNone, requested
}

// Admit seats a finished handshake. On refusal the courtesy frame is written
// with a bounded deadline and the connection is closed here.
func (s *Sequencer) Admit(conn transport, creds protocol.Credentials, flags protocol.AuthFlags, nickname string) (*Client, error) {
	ip := remoteIP(conn)

	s.mu.Lock()
	if len(s.clients) >= s.cfg.Game.MaxPlayers {
		s.mu.Unlock()
		s.reject(conn, protocol.MsgFull, nil, "full")
		return nil, ErrServerFull
	}
	if flags.Has(protocol.AuthBanned) || s.IsBanned(ip) {
		s.mu.Unlock()
		s.reject(conn, protocol.MsgBanned, nil, "banned")
		return nil, ErrBanned
	}

	s.fuid++
	uid := s.fuid
	c := newClient(uid, s.freeSlotLocked(), conn)
	c.Nickname = s.uniqueNicknameLocked(nickname)
	c.UniqueID = creds.UniqueID
	c.Colour = s.freeColourLocked()
	c.Auth = flags

	c.broadcaster = newBroadcaster(uid, conn, s.log, s.failures, s.metrics)
	c.receiver = newReceiver(uid, conn, s.log, s.failures, s.Dispatch, s.metrics)
	s.clients = append(s.clients, c)

	c.broadcaster.Queue(protocol.MsgWelcome, protocol.ServerUID, 0, protocol.EncodeColour(c.Colour))
	info := c.userInfo().Encode()
	for _, p := range s.clients {
		if p != c && p.flow {
			p.broadcaster.Queue(protocol.MsgUserJoin, c.UID, 0, info)
		}
	}
	count := len(s.clients)
	s.mu.Unlock()

	c.broadcaster.Start()
	c.receiver.Start()

	s.connsTotal.Add(1)
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Set(float64(count))
	}
	if s.script != nil {
		s.script.PlayerAdded(c.UID, c.Nickname)
	}
	if s.events != nil {
		s.events.Emit("join", c.UniqueID, c.Nickname, "")
	}

	s.log.Info().
		Uint32("uid", c.UID).
		Str("nickname", c.Nickname).
		Str("ip", ip).
		Str("auth", c.Auth.Letters()).
		Int("players", count).
		Msg("Client admitted")
	return c, nil
}

func (s *Sequencer) reject(conn transport, typ protocol.MsgType, payload []byte, reason string) {
	if s.metrics != nil {
		s.metrics.AdmissionRejects.WithLabelValues(reason).Inc()
	}
	conn.SetWriteDeadline(time.Now().Add(rejectTimeout))
	protocol.WriteFrame(conn, typ, protocol.ServerUID, 0, payload)
	conn.Close()
}

// freeSlotLocked returns the smallest slot index not in use.
func (s *Sequencer) freeSlotLocked() int {
	used := make(map[int]bool, len(s.clients))
	for _, c := range s.clients {
		used[c.Slot] = true
	}
	for i := 0; ; i++ {
		if !used[i] {
			return i
		}
	}
}

// freeColourLocked returns the smallest colour number no seated client holds.
func (s *Sequencer) freeColourLocked() uint32 {
	used := make(map[uint32]bool, len(s.clients))
	for _, c := range s.clients {
		used[c.Colour] = true
	}
	for colour := uint32(0); ; colour++ {
		if !used[colour] {
			return colour
		}
	}
}

// uniqueNicknameLocked dedupes the requested nickname with a decimal
// counter, keeping the result inside the wire field.
func (s *Sequencer) uniqueNicknameLocked(want string) string {
	if want == "" {
		want = "player"
	}
	if len(want) > protocol.NicknameLen {
		want = want[:protocol.NicknameLen]
	}
	if !s.nicknameTakenLocked(want) {
		return want
	}
	// The first duplicate becomes "<name>2", matching the client's own
	// rename convention.
	for i := 2; ; i++ {
		suffix := strconv.Itoa(i)
		base := want
		if len(base)+len(suffix) > protocol.NicknameLen {
			base = base[:protocol.NicknameLen-len(suffix)]
		}
		candidate := base + suffix
		if !s.nicknameTakenLocked(candidate) {
			return candidate
		}
	}
}

func (s *Sequencer) nicknameTakenLocked(nick string) bool {
	for _, c := range s.clients {
		if strings.EqualFold(c.Nickname, nick) {
			return true
		}
	}
	return false
}

func (s *Sequencer) lookupLocked(uid uint32) *Client {
	for _, c := range s.clients {
		if c.UID == uid {
			return c
		}
	}
	return nil
}

// EnableFlow marks the client live and sends it the message of the day.
func (s *Sequencer) EnableFlow(uid uint32) {
	s.mu.Lock()
	c := s.lookupLocked(uid)
	if c == nil {
		s.mu.Unlock()
		return
	}
	c.flow = true
	c.status = statusUsed
	s.mu.Unlock()

	s.sendMOTD(uid)
	s.printStats()
	s.log.Debug().Uint32("uid", uid).Msg("Flow enabled")
}

func (s *Sequencer) sendMOTD(uid uint32) {
	for _, line := range s.motd {
		s.ServerSay(line, int(uid), 1)
	}
}

// Dispatch routes one decoded frame from a seated client. Side effects that
// need to re-enter the table lock run after it is released.
func (s *Sequencer) Dispatch(uid uint32, h protocol.Header, payload []byte) {
	var after []func()

	s.mu.Lock()
	c := s.lookupLocked(uid)
	if c == nil {
		s.mu.Unlock()
		return
	}

	mode := publishNone
	switch h.Type {
	case protocol.MsgEnableFlow:
		after = append(after, func() { s.EnableFlow(uid) })

	case protocol.MsgDelete:
		after = append(after, func() { s.Disconnect(uid, "disconnected on request", false) })

	case protocol.MsgStreamRegister:
		reg, err := protocol.DecodeStreamRegister(payload)
		if err != nil {
			after = append(after, func() { s.Disconnect(uid, "malformed stream registration", true) })
			break
		}
		if c.registerStream(h.StreamID, reg) {
			mode = publishPeers
			s.log.Debug().
				Uint32("uid", uid).
				Uint32("stream", h.StreamID).
				Str("type", reg.Type.String()).
				Str("name", reg.Name).
				Msg("Stream registered")
		}

	case protocol.MsgStreamData, protocol.MsgVehicleData:
		if h.Type == protocol.MsgVehicleData {
			if x, y, z, ok := protocol.VehiclePosition(payload); ok {
				c.position = [3]float32{x, y, z}
			}
		}
		if !c.initialized {
			s.replayPeersLocked(c)
			c.initialized = true
		}
		mode = publishPeers

	case protocol.MsgChat:
		after = append(after, func() { s.handleChat(uid, h.StreamID, payload) })

	case protocol.MsgPrivChat:
		if target, msg, ok := protocol.PrivChatTarget(payload); ok {
			if t := s.lookupLocked(target); t != nil && t.flow {
				t.broadcaster.Queue(protocol.MsgChat, uid, 1, msg)
			}
		}

	case protocol.MsgGameCmd:
		cmd := string(payload)
		after = append(after, func() {
			if s.script != nil {
				s.script.GameCmd(uid, cmd)
			}
		})

	default:
		// Unknown types are dropped; the session stays up.
		s.log.Warn().Uint32("uid", uid).Str("type", h.Type.String()).Msg("Unknown message type dropped")
	}

	if mode != publishNone {
		s.broadcastLocked(c, h.Type, h.StreamID, payload, mode)
	}
	s.mu.Unlock()

	for _, f := range after {
		f()
	}
}

// replayPeersLocked brings a newly active client in sync: seat info in both
// directions plus every stream the peers registered. The newcomer's own
// streams were already relayed at registration time.
func (s *Sequencer) replayPeersLocked(c *Client) {
	for _, p := range s.clients {
		if p == c {
			continue
		}
		c.broadcaster.Queue(protocol.MsgUserInfo, p.UID, 0, p.userInfo().Encode())
		p.broadcaster.Queue(protocol.MsgUserInfo, c.UID, 0, c.userInfo().Encode())
		for sid, reg := range p.streams {
			c.broadcaster.Queue(protocol.MsgStreamRegister, p.UID, sid, reg.Encode())
		}
	}
}

func (s *Sequencer) broadcastLocked(sender *Client, typ protocol.MsgType, streamID uint32, payload []byte, mode int) {
	if mode == publishNone {
		return
	}
	size := protocol.HeaderSize + len(payload)
	sender.addTrafficIn(streamID, size)
	for _, p := range s.clients {
		if !p.flow {
			continue
		}
		switch mode {
		case publishPeers:
			if p == sender {
				continue
			}
		case publishModerated:
			if !p.Auth.Has(protocol.AuthAdmin) {
				continue
			}
		case publishAll:
		default:
			continue
		}
		p.broadcaster.Queue(typ, sender.UID, streamID, payload)
		p.addTrafficOut(streamID, size)
		if s.metrics != nil {
			s.metrics.FramesRelayed.Inc()
		}
	}
}

// handleChat runs outside the table lock: the script hook may block.
func (s *Sequencer) handleChat(uid uint32, streamID uint32, payload []byte) {
	msg := strings.TrimRight(string(payload), "\x00")

	mode := publishAll
	if s.script != nil {
		if override := s.script.PlayerChat(uid, msg); override > 0 {
			mode = override
		}
	}
	if strings.HasPrefix(msg, "!") {
		s.handleCommand(uid, msg)
		return
	}
	if mode == publishNone {
		return
	}

	s.mu.Lock()
	c := s.lookupLocked(uid)
	if c == nil {
		s.mu.Unlock()
		return
	}
	s.recordChat(c.UID, c.Nickname, msg)
	s.broadcastLocked(c, protocol.MsgChat, streamID, payload, mode)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ChatMessages.Inc()
	}
	s.log.Info().Uint32("uid", uid).Str("msg", msg).Msg("Chat")
}

// recordChat appends to the fixed-capacity history ring. Callers may hold mu.
func (s *Sequencer) recordChat(uid uint32, nickname, msg string) {
	entry := ChatEntry{When: time.Now(), UID: uid, Nickname: nickname, Message: msg}
	s.chatMu.Lock()
	if len(s.chat) < chatHistoryCap {
		s.chat = append(s.chat, entry)
	} else {
		s.chat[s.chatNext] = entry
		s.chatNext = (s.chatNext + 1) % chatHistoryCap
	}
	s.chatMu.Unlock()
}

// ChatHistory returns the retained chat lines, oldest first.
func (s *Sequencer) ChatHistory() []ChatEntry {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	out := make([]ChatEntry, 0, len(s.chat))
	out = append(out, s.chat[s.chatNext:]...)
	out = append(out, s.chat[:s.chatNext]...)
	return out
}

// ServerSay sends a chat line from the server. uid -1 addresses every
// flow-enabled client. Type 0 prefixes the line with "SERVER: ".
func (s *Sequencer) ServerSay(msg string, uid int, msgType int) {
	if msgType == 0 {
		msg = "SERVER: " + msg
	}
	payload := []byte(msg)

	s.mu.Lock()
	for _, c := range s.clients {
		if !c.flow {
			continue
		}
		if uid != -1 && int(c.UID) != uid {
			continue
		}
		c.broadcaster.Queue(protocol.MsgChat, protocol.ServerUID, 1, payload)
	}
	s.mu.Unlock()
}

// SendGameCommand delivers a script command to one client, or to all when
// uid is -1.
func (s *Sequencer) SendGameCommand(uid int, cmd string) {
	payload := []byte(cmd)
	s.mu.Lock()
	for _, c := range s.clients {
		if !c.flow {
			continue
		}
		if uid != -1 && int(c.UID) != uid {
			continue
		}
		c.broadcaster.Queue(protocol.MsgGameCmd, protocol.ServerUID, 0, payload)
	}
	s.mu.Unlock()
}

// Disconnect removes a client from the table, tells the survivors, and hands
// the carcass to the reaper. Returns false when the uid is not seated.
func (s *Sequencer) Disconnect(uid uint32, reason string, isError bool) bool {
	return s.disconnect(uid, reason, isError, isError)
}

// disconnect is the shared teardown path. Errored and forced departures go
// out as Delete so peers drop the actor at once; clean ones as UserLeave.
func (s *Sequencer) disconnect(uid uint32, reason string, isError, asDelete bool) bool {
	s.killMu.Lock()
	defer s.killMu.Unlock()

	s.mu.Lock()
	pos := -1
	for i, c := range s.clients {
		if c.UID == uid {
			pos = i
			break
		}
	}
	if pos == -1 {
		s.mu.Unlock()
		return false
	}
	c := s.clients[pos]
	typ := protocol.MsgUserLeave
	if asDelete {
		typ = protocol.MsgDelete
	}
	leave := []byte(reason)
	for _, p := range s.clients {
		if p.flow || p == c {
			p.broadcaster.Queue(typ, c.UID, 0, leave)
		}
	}
	s.clients = append(s.clients[:pos], s.clients[pos+1:]...)
	count := len(s.clients)
	s.mu.Unlock()

	if isError {
		s.crashes.Add(1)
	}
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Set(float64(count))
		label := "normal"
		if isError {
			label = "error"
		}
		s.metrics.Disconnects.WithLabelValues(label).Inc()
	}
	if s.script != nil {
		s.script.PlayerDeleted(c.UID, isError)
	}
	if s.events != nil {
		kind := "leave"
		if isError {
			kind = "crash"
		}
		s.events.Emit(kind, c.UniqueID, c.Nickname, c.vehicleName)
	}

	s.killer.enqueue(c)
	s.log.Info().
		Uint32("uid", uid).
		Str("nickname", c.Nickname).
		Str("reason", reason).
		Bool("error", isError).
		Int("players", count).
		Msg("Client disconnected")
	return true
}

// Kick removes a client on behalf of a seated moderator.
func (s *Sequencer) Kick(targetUID, modUID uint32, reason string) error {
	s.mu.Lock()
	mod := s.lookupLocked(modUID)
	target := s.lookupLocked(targetUID)
	if mod == nil || !mod.Auth.HasAny(protocol.AuthAdmin|protocol.AuthMod) {
		s.mu.Unlock()
		return ErrNotAuthorized
	}
	if target == nil {
		s.mu.Unlock()
		return ErrUnknownUID
	}
	msg := fmt.Sprintf("kicked by %s: %s", mod.Nickname, reason)
	s.mu.Unlock()

	s.disconnect(targetUID, msg, false, true)
	return nil
}

// Ban records the target's IP in the ban list, then kicks it.
func (s *Sequencer) Ban(targetUID, modUID uint32, reason string) error {
	s.mu.Lock()
	mod := s.lookupLocked(modUID)
	target := s.lookupLocked(targetUID)
	if mod == nil || !mod.Auth.HasAny(protocol.AuthAdmin|protocol.AuthMod) {
		s.mu.Unlock()
		return ErrNotAuthorized
	}
	if target == nil {
		s.mu.Unlock()
		return ErrUnknownUID
	}
	ban := Ban{UID: target.UID, IP: target.IP(), Nickname: target.Nickname, BannedBy: mod.Nickname, Message: reason}
	s.mu.Unlock()

	s.addBan(ban)
	s.disconnect(targetUID, "banned: "+reason, false, true)
	return nil
}

// ServerKick and ServerBan act with server authority, for registry
// moderation commands.
func (s *Sequencer) ServerKick(uid uint32, reason string) bool {
	return s.disconnect(uid, "kicked by SERVER: "+reason, false, true)
}

func (s *Sequencer) ServerBan(uid uint32, reason string) bool {
	s.mu.Lock()
	target := s.lookupLocked(uid)
	if target == nil {
		s.mu.Unlock()
		return false
	}
	ban := Ban{UID: target.UID, IP: target.IP(), Nickname: target.Nickname, BannedBy: "SERVER", Message: reason}
	s.mu.Unlock()

	s.addBan(ban)
	s.disconnect(uid, "banned: "+reason, false, true)
	return true
}

func (s *Sequencer) addBan(b Ban) {
	s.bansMu.Lock()
	s.bans = append(s.bans, b)
	s.bansMu.Unlock()
	s.saveBans()
	s.log.Info().Str("ip", b.IP).Str("nickname", b.Nickname).Str("by", b.BannedBy).Str("reason", b.Message).Msg("Ban recorded")
}

// Unban drops the ban record created for uid. Returns false when no such
// record exists.
func (s *Sequencer) Unban(uid uint32) bool {
	s.bansMu.Lock()
	found := false
	for i, b := range s.bans {
		if b.UID == uid {
			s.bans = append(s.bans[:i], s.bans[i+1:]...)
			found = true
			break
		}
	}
	s.bansMu.Unlock()
	if found {
		s.saveBans()
	}
	return found
}

// IsBanned reports whether ip has a ban record.
func (s *Sequencer) IsBanned(ip string) bool {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()
	for _, b := range s.bans {
		if b.IP == ip {
			return true
		}
	}
	return false
}

// Bans returns a copy of the ban list.
func (s *Sequencer) Bans() []Ban {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()
	out := make([]Ban, len(s.bans))
	copy(out, s.bans)
	return out
}

// ClientCount is the number of seated clients.
func (s *Sequencer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// playerLine is one row of the heartbeat roster.
type playerLine struct {
	vehicle  string
	nickname string
	position [3]float32
	ip       string
	uniqueID string
	auth     string
}

// HeartbeatSnapshot renders the registry heartbeat body: the challenge, the
// roster format version, the player count, then one roster line per seat.
func (s *Sequencer) HeartbeatSnapshot(challenge string) string {
	s.mu.Lock()
	lines := make([]playerLine, 0, len(s.clients))
	for _, c := range s.clients {
		lines = append(lines, playerLine{
			vehicle:  c.vehicleName,
			nickname: c.Nickname,
			position: c.position,
			ip:       c.IP(),
			uniqueID: c.UniqueID,
			auth:     c.Auth.Letters(),
		})
	}
	s.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nversion4\n%d\n", challenge, len(lines))
	for i, l := range lines {
		fmt.Fprintf(&sb, "%d;%s;%s;%.2f,%.2f,%.2f;%s;%s;%s\n",
			i, l.vehicle, l.nickname, l.position[0], l.position[1], l.position[2], l.ip, l.uniqueID, l.auth)
	}
	return sb.String()
}

// Uptime, TotalConnections and Crashes feed the stats loop and /health.
func (s *Sequencer) Uptime() time.Duration    { return time.Since(s.startTime) }
func (s *Sequencer) TotalConnections() uint64 { return s.connsTotal.Load() }
func (s *Sequencer) Crashes() uint64          { return s.crashes.Load() }

func (s *Sequencer) loadMOTD() {
	if s.cfg.Server.MOTDFile == "" {
		return
	}
	data, err := os.ReadFile(s.cfg.Server.MOTDFile)
	if err != nil {
		s.log.Debug().Err(err).Str("file", s.cfg.Server.MOTDFile).Msg("No MOTD file")
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			s.motd = append(s.motd, line)
		}
	}
	s.log.Info().Int("lines", len(s.motd)).Msg("MOTD loaded")
}

// Ban list persistence: one "ip;nickname;bannedby;message" line per record.
func (s *Sequencer) loadBans() {
	if s.cfg.Server.BanFile == "" {
		return
	}
	data, err := os.ReadFile(s.cfg.Server.BanFile)
	if err != nil {
		s.log.Debug().Err(err).Str("file", s.cfg.Server.BanFile).Msg("No ban file")
		return
	}
	s.bansMu.Lock()
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		parts := strings.SplitN(line, ";", 4)
		if len(parts) < 4 {
			continue
		}
		s.bans = append(s.bans, Ban{IP: parts[0], Nickname: parts[1], BannedBy: parts[2], Message: parts[3]})
	}
	count := len(s.bans)
	s.bansMu.Unlock()
	s.log.Info().Int("bans", count).Msg("Ban list loaded")
}

func (s *Sequencer) saveBans() {
	if s.cfg.Server.BanFile == "" {
		return
	}
	s.bansMu.Lock()
	var sb strings.Builder
	for _, b := range s.bans {
		fmt.Fprintf(&sb, "%s;%s;%s;%s\n", b.IP, b.Nickname, b.BannedBy, b.Message)
	}
	s.bansMu.Unlock()
	if err := os.WriteFile(s.cfg.Server.BanFile, []byte(sb.String()), 0o644); err != nil {
		s.log.Error().Err(err).Str("file", s.cfg.Server.BanFile).Msg("Failed to persist ban list")
	}
}

func remoteIP(conn transport) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}
