// Package script runs an external command on server lifecycle events, the
// lightweight replacement for an embedded scripting engine. The command
// receives the event through environment variables and may print a publish
// mode override for chat events.
package script

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// hookTimeout bounds a single hook invocation.
const hookTimeout = 5 * time.Second

// ExecHost shells out to a configured command for every event.
type ExecHost struct {
	command string
	log     zerolog.Logger
}

func NewExecHost(command string, logger zerolog.Logger) *ExecHost {
	return &ExecHost{
		command: command,
		log:     logger.With().Str("component", "script").Logger(),
	}
}

func (h *ExecHost) PlayerAdded(uid uint32, nickname string) {
	h.run("player_added", map[string]string{
		"RELAY_EVENT_UID":      strconv.FormatUint(uint64(uid), 10),
		"RELAY_EVENT_NICKNAME": nickname,
	})
}

func (h *ExecHost) PlayerDeleted(uid uint32, crashed bool) {
	h.run("player_deleted", map[string]string{
		"RELAY_EVENT_UID":     strconv.FormatUint(uint64(uid), 10),
		"RELAY_EVENT_CRASHED": strconv.FormatBool(crashed),
	})
}

// PlayerChat reports the chat line and parses the hook's first output line
// as a publish mode override. No output, or anything unparsable, keeps the
// default.
func (h *ExecHost) PlayerChat(uid uint32, msg string) int {
	out := h.run("player_chat", map[string]string{
		"RELAY_EVENT_UID":     strconv.FormatUint(uint64(uid), 10),
		"RELAY_EVENT_MESSAGE": msg,
	})
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if line == "" {
		return -1
	}
	mode, err := strconv.Atoi(line)
	if err != nil || mode < 0 || mode > 3 {
		return -1
	}
	return mode
}

func (h *ExecHost) GameCmd(uid uint32, cmd string) {
	h.run("game_cmd", map[string]string{
		"RELAY_EVENT_UID":     strconv.FormatUint(uint64(uid), 10),
		"RELAY_EVENT_COMMAND": cmd,
	})
}

// FrameStep fires on the periodic tick.
func (h *ExecHost) FrameStep(dt time.Duration) {
	h.run("frame_step", map[string]string{
		"RELAY_EVENT_DT_MS": strconv.FormatInt(dt.Milliseconds(), 10),
	})
}

func (h *ExecHost) run(event string, vars map[string]string) string {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.command)
	cmd.Env = append(cmd.Environ(), "RELAY_EVENT="+event)
	for k, v := range vars {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	out, err := cmd.Output()
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("Hook failed")
		return ""
	}
	return string(out)
}
