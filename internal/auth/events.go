package auth

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EventSubject carries user lifecycle events (join, leave, crash).
const EventSubject = "gamerelay.events.user"

// UserEvent is the published payload.
type UserEvent struct {
	Kind     string    `json:"kind"`
	UniqueID string    `json:"unique_id,omitempty"`
	Nickname string    `json:"nickname"`
	Vehicle  string    `json:"vehicle,omitempty"`
	At       time.Time `json:"at"`
}

// NATSEmitter publishes user events to a NATS subject. Publishing is fire
// and forget: a broken broker never blocks the session path.
type NATSEmitter struct {
	conn *nats.Conn
	log  zerolog.Logger
}

func NewNATSEmitter(url string, logger zerolog.Logger) (*NATSEmitter, error) {
	conn, err := nats.Connect(url,
		nats.Name("gamerelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSEmitter{
		conn: conn,
		log:  logger.With().Str("component", "events").Logger(),
	}, nil
}

func (e *NATSEmitter) Emit(kind, uniqueID, nickname, vehicle string) {
	data, err := json.Marshal(UserEvent{
		Kind:     kind,
		UniqueID: uniqueID,
		Nickname: nickname,
		Vehicle:  vehicle,
		At:       time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.conn.Publish(EventSubject, data); err != nil {
		e.log.Warn().Err(err).Str("kind", kind).Msg("Event publish failed")
	}
}

func (e *NATSEmitter) Close() {
	e.conn.Drain()
}

// LogEmitter is the fallback when no broker is configured: events land in
// the structured log only.
type LogEmitter struct {
	Log zerolog.Logger
}

func (e LogEmitter) Emit(kind, uniqueID, nickname, vehicle string) {
	e.Log.Info().
		Str("kind", kind).
		Str("nickname", nickname).
		Str("vehicle", vehicle).
		Msg("User event")
}
