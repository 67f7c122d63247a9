package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Server is what the notifier needs from the session core.
type Server interface {
	HeartbeatSnapshot(challenge string) string
	ServerKick(uid uint32, reason string) bool
	ServerBan(uid uint32, reason string) bool
	Unban(uid uint32) bool
}

// Notifier runs the registry session: one advertisement, then heartbeats on
// a fixed interval until the context ends, then an unregister.
type Notifier struct {
	reg      Registry
	server   Server
	interval time.Duration
	log      zerolog.Logger
}

func NewNotifier(reg Registry, server Server, interval time.Duration, logger zerolog.Logger) *Notifier {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Notifier{
		reg:      reg,
		server:   server,
		interval: interval,
		log:      logger.With().Str("component", "notifier").Logger(),
	}
}

// Run blocks until ctx ends. Advertisement failures are retried with a flat
// backoff; the server keeps relaying either way.
func (n *Notifier) Run(ctx context.Context) {
	challenge := ""
	for challenge == "" {
		var err error
		challenge, err = n.reg.Advertise(ctx)
		if err == nil {
			break
		}
		n.log.Warn().Err(err).Msg("Advertise failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.unregister()
			return
		case <-ticker.C:
			n.heartbeat(ctx, challenge)
		}
	}
}

func (n *Notifier) heartbeat(ctx context.Context, challenge string) {
	cmds, err := n.reg.Heartbeat(ctx, n.server.HeartbeatSnapshot(challenge))
	if err != nil {
		n.log.Warn().Err(err).Msg("Heartbeat failed")
		return
	}
	for _, cmd := range cmds {
		n.apply(cmd)
	}
}

func (n *Notifier) apply(cmd Command) {
	var ok bool
	switch cmd.Kind {
	case "kick":
		ok = n.server.ServerKick(cmd.UID, cmd.Reason)
	case "ban":
		ok = n.server.ServerBan(cmd.UID, cmd.Reason)
	case "unban":
		ok = n.server.Unban(cmd.UID)
	default:
		n.log.Warn().Str("kind", cmd.Kind).Msg("Unknown registry command")
		return
	}
	n.log.Info().Str("kind", cmd.Kind).Uint32("uid", cmd.UID).Bool("applied", ok).Msg("Registry moderation")
}

func (n *Notifier) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.reg.Unregister(ctx); err != nil {
		n.log.Warn().Err(err).Msg("Unregister failed")
		return
	}
	n.log.Info().Msg("Unregistered from registry")
}
