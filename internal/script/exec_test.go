package script

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerChatOverride(t *testing.T) {
	cases := []struct {
		name    string
		command string
		want    int
	}{
		{"valid mode", "echo 1", 1},
		{"drop", "echo 0", 0},
		{"no output", "true", -1},
		{"garbage", "echo nope", -1},
		{"out of range", "echo 9", -1},
		{"failing hook", "exit 3", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewExecHost(tc.command, zerolog.Nop())
			assert.Equal(t, tc.want, h.PlayerChat(1, "hello"))
		})
	}
}

func TestHookReceivesEventEnvironment(t *testing.T) {
	out := filepath.Join(t.TempDir(), "event.txt")
	h := NewExecHost(`echo "$RELAY_EVENT $RELAY_EVENT_UID $RELAY_EVENT_NICKNAME" > `+out, zerolog.Nop())
	h.PlayerAdded(42, "alice")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "player_added 42 alice", strings.TrimSpace(string(data)))
}

type countingStepper struct {
	ticks atomic.Int32
}

func (s *countingStepper) FrameStep(dt time.Duration) {
	s.ticks.Add(1)
}

func TestRunFrameTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &countingStepper{}
	done := make(chan struct{})
	go func() { RunFrameTimer(ctx, s, 10*time.Millisecond); close(done) }()

	require.Eventually(t, func() bool { return s.ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not stop")
	}
}
