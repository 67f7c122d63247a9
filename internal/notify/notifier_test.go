package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu           sync.Mutex
	heartbeats   []string
	unregistered bool
	commands     []Command
}

func (r *fakeRegistry) Advertise(ctx context.Context) (string, error) {
	return "challenge-xyz", nil
}

func (r *fakeRegistry) Heartbeat(ctx context.Context, body string) ([]Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats = append(r.heartbeats, body)
	cmds := r.commands
	r.commands = nil
	return cmds, nil
}

func (r *fakeRegistry) Unregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = true
	return nil
}

func (r *fakeRegistry) heartbeatCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.heartbeats)
}

type fakeServer struct {
	mu      sync.Mutex
	applied []Command
}

func (s *fakeServer) HeartbeatSnapshot(challenge string) string {
	return challenge + "\nversion4\n0\n"
}

func (s *fakeServer) record(kind string, uid uint32, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, Command{Kind: kind, UID: uid, Reason: reason})
	return true
}

func (s *fakeServer) ServerKick(uid uint32, reason string) bool { return s.record("kick", uid, reason) }
func (s *fakeServer) ServerBan(uid uint32, reason string) bool  { return s.record("ban", uid, reason) }
func (s *fakeServer) Unban(uid uint32) bool                     { return s.record("unban", uid, "") }

func TestNotifierHeartbeatsAndUnregisters(t *testing.T) {
	reg := &fakeRegistry{}
	srv := &fakeServer{}
	n := NewNotifier(reg, srv, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { n.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return reg.heartbeatCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not stop")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	assert.True(t, reg.unregistered)
	assert.True(t, strings.HasPrefix(reg.heartbeats[0], "challenge-xyz\n"))
}

func TestNotifierAppliesModeration(t *testing.T) {
	reg := &fakeRegistry{commands: []Command{
		{Kind: "kick", UID: 3, Reason: "afk"},
		{Kind: "ban", UID: 4, Reason: "cheating"},
		{Kind: "unban", UID: 5},
		{Kind: "reboot"},
	}}
	srv := &fakeServer{}
	n := NewNotifier(reg, srv, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.applied) == 3
	}, 2*time.Second, 5*time.Millisecond)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, Command{Kind: "kick", UID: 3, Reason: "afk"}, srv.applied[0])
	assert.Equal(t, Command{Kind: "ban", UID: 4, Reason: "cheating"}, srv.applied[1])
	assert.Equal(t, Command{Kind: "unban", UID: 5}, srv.applied[2])
}
