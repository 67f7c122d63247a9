// Package auth maintains the local credentials cache: token to access level
// mappings that survive restarts, plus the outbound user event stream.
package auth

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

type entry struct {
	flags    protocol.AuthFlags
	username string
}

// Cache is the file-backed auth table. Lines are "<letters> <token>
// <username>"; lines starting with ";" are comments.
type Cache struct {
	log  zerolog.Logger
	file string

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(file string, logger zerolog.Logger) *Cache {
	return &Cache{
		log:     logger.With().Str("component", "auth").Logger(),
		file:    file,
		entries: make(map[string]entry),
	}
}

// Load reads the cache file. A missing file is not an error: the server
// simply starts with an empty table.
func (c *Cache) Load() error {
	if c.file == "" {
		return nil
	}
	data, err := os.ReadFile(c.file)
	if err != nil {
		if os.IsNotExist(err) {
			c.log.Debug().Str("file", c.file).Msg("No auth file")
			return nil
		}
		return fmt.Errorf("read auth file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags := parseLetters(fields[0])
		token := fields[1]
		username := ""
		if len(fields) > 2 {
			username = strings.Join(fields[2:], " ")
		}
		c.entries[token] = entry{flags: flags, username: username}
	}
	c.log.Info().Int("entries", len(c.entries)).Msg("Auth cache loaded")
	return nil
}

// Save writes the cache back. Session-scoped grants (ranked, banned) are
// stripped so only durable levels persist.
func (c *Cache) Save() error {
	if c.file == "" {
		return nil
	}
	c.mu.Lock()
	var sb strings.Builder
	sb.WriteString("; gamerelay auth cache\n")
	for token, e := range c.entries {
		flags := e.flags &^ (protocol.AuthRanked | protocol.AuthBanned)
		if flags == protocol.AuthNone {
			continue
		}
		fmt.Fprintf(&sb, "%s %s %s\n", flags.Letters(), token, e.username)
	}
	c.mu.Unlock()

	if err := os.WriteFile(c.file, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write auth file: %w", err)
	}
	return nil
}

// Resolve looks a token up.
func (c *Cache) Resolve(token string) (protocol.AuthFlags, string, bool) {
	if token == "" {
		return protocol.AuthNone, "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	return e.flags, e.username, ok
}

// Add grants token the given level, replacing any previous grant.
func (c *Cache) Add(token, username string, flags protocol.AuthFlags) {
	c.mu.Lock()
	c.entries[token] = entry{flags: flags, username: username}
	c.mu.Unlock()
}

// Remove revokes a token. Returns false when it was not present.
func (c *Cache) Remove(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[token]; !ok {
		return false
	}
	delete(c.entries, token)
	return true
}

// Len is the number of cached grants.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// parseLetters maps the file's level letters back to flags.
func parseLetters(s string) protocol.AuthFlags {
	var flags protocol.AuthFlags
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'A':
			flags |= protocol.AuthAdmin
		case 'M':
			flags |= protocol.AuthMod
		case 'R':
			flags |= protocol.AuthRanked
		case 'B':
			flags |= protocol.AuthBot
		case 'X':
			flags |= protocol.AuthBanned
		}
	}
	return flags
}
