// Package notify keeps the public server registry informed: it advertises
// the server at startup, sends periodic roster heartbeats, and applies any
// moderation commands the registry returns.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/gamerelay/internal/config"
)

// Command is a moderation instruction returned by a heartbeat.
type Command struct {
	Kind   string `json:"kind"` // kick, ban, unban
	UID    uint32 `json:"uid"`
	Reason string `json:"reason,omitempty"`
}

// Registry is the master-list client surface.
type Registry interface {
	Advertise(ctx context.Context) (challenge string, err error)
	Heartbeat(ctx context.Context, body string) ([]Command, error)
	Unregister(ctx context.Context) error
}

// HTTPRegistry talks to the registry's REST API.
type HTTPRegistry struct {
	endpoint string
	key      string
	cfg      *config.Config
	client   *http.Client
	log      zerolog.Logger
}

func NewHTTPRegistry(cfg *config.Config, logger zerolog.Logger) *HTTPRegistry {
	return &HTTPRegistry{
		endpoint: cfg.API.Endpoint,
		key:      cfg.API.Key,
		cfg:      cfg,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logger.With().Str("component", "registry").Logger(),
	}
}

type advertiseRequest struct {
	Name              string `json:"name"`
	Terrain           string `json:"terrain"`
	MaxPlayers        int    `json:"max_players"`
	Port              int    `json:"port"`
	Version           string `json:"version"`
	PasswordProtected bool   `json:"password_protected"`
}

type advertiseResponse struct {
	Challenge string `json:"challenge"`
}

func (r *HTTPRegistry) Advertise(ctx context.Context) (string, error) {
	body, err := json.Marshal(advertiseRequest{
		Name:              r.cfg.Server.Name,
		Terrain:           r.cfg.Game.Terrain,
		MaxPlayers:        r.cfg.Game.MaxPlayers,
		Port:              r.cfg.Server.Port,
		Version:           "2.1",
		PasswordProtected: r.cfg.Server.Password != "",
	})
	if err != nil {
		return "", err
	}

	respBody, err := r.do(ctx, http.MethodPost, "/register", "application/json", body)
	if err != nil {
		return "", err
	}
	var resp advertiseResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse advertise response: %w", err)
	}
	if resp.Challenge == "" {
		return "", fmt.Errorf("registry returned no challenge")
	}
	r.log.Info().Msg("Advertised to registry")
	return resp.Challenge, nil
}

func (r *HTTPRegistry) Heartbeat(ctx context.Context, body string) ([]Command, error) {
	respBody, err := r.do(ctx, http.MethodPut, "/heartbeat", "text/plain", []byte(body))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	var cmds []Command
	if err := json.Unmarshal(respBody, &cmds); err != nil {
		return nil, fmt.Errorf("parse heartbeat response: %w", err)
	}
	return cmds, nil
}

func (r *HTTPRegistry) Unregister(ctx context.Context) error {
	_, err := r.do(ctx, http.MethodDelete, "/register", "", nil)
	return err
}

func (r *HTTPRegistry) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Api-Key", r.key)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("registry %s %s: status %d", method, path, resp.StatusCode)
	}
	return respBody, nil
}
