package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

// serverVersion is reported by !version and the registry advertisement.
const serverVersion = "gamerelay/2.1"

// handleCommand interprets a "!" chat line. Replies go only to the issuer.
func (s *Sequencer) handleCommand(uid uint32, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "!version":
		s.ServerSay(serverVersion, int(uid), 0)

	case "!list":
		s.mu.Lock()
		lines := make([]string, 0, len(s.clients))
		for _, c := range s.clients {
			lines = append(lines, fmt.Sprintf("%d | %s | %s | %s", c.UID, c.Auth.ListLetters(), c.Nickname, c.vehicleName))
		}
		s.mu.Unlock()
		for _, l := range lines {
			s.ServerSay(l, int(uid), 0)
		}

	case "!bans":
		for _, b := range s.Bans() {
			s.ServerSay(fmt.Sprintf("%d | %s | %s | banned by %s: %s", b.UID, b.IP, b.Nickname, b.BannedBy, b.Message), int(uid), 0)
		}

	case "!kick":
		target, reason, ok := parseTarget(args, "no reason given")
		if !ok {
			s.ServerSay("usage: !kick <uid> [reason]", int(uid), 0)
			return
		}
		s.replyModeration(uid, s.Kick(target, uid, reason))

	case "!ban":
		target, reason, ok := parseTarget(args, "no reason given")
		if !ok {
			s.ServerSay("usage: !ban <uid> [reason]", int(uid), 0)
			return
		}
		s.replyModeration(uid, s.Ban(target, uid, reason))

	case "!unban":
		target, _, ok := parseTarget(args, "")
		if !ok {
			s.ServerSay("usage: !unban <uid>", int(uid), 0)
			return
		}
		if !s.isModerator(uid) {
			s.ServerSay("you are not authorized to do that", int(uid), 0)
			return
		}
		if s.Unban(target) {
			s.ServerSay("ban removed", int(uid), 0)
		} else {
			s.ServerSay("no ban found for that uid", int(uid), 0)
		}

	default:
		s.ServerSay("unknown command: "+cmd, int(uid), 0)
	}
}

func (s *Sequencer) replyModeration(uid uint32, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrNotAuthorized):
		s.ServerSay("you are not authorized to do that", int(uid), 0)
	case errors.Is(err, ErrUnknownUID):
		s.ServerSay("no such player", int(uid), 0)
	default:
		s.ServerSay("command failed: "+err.Error(), int(uid), 0)
	}
}

func (s *Sequencer) isModerator(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lookupLocked(uid)
	return c != nil && c.Auth.HasAny(protocol.AuthAdmin|protocol.AuthMod)
}

// parseTarget reads "<uid> [free text...]" from command arguments.
func parseTarget(args []string, defaultReason string) (uint32, string, bool) {
	if len(args) == 0 {
		return 0, "", false
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, "", false
	}
	reason := defaultReason
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	return uint32(n), reason, true
}
