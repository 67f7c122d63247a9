package server

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

// handshakeTimeout bounds each pre-admission read. A client that stalls
// mid-handshake is cut without touching the session table.
const handshakeTimeout = 10 * time.Second

// Listener accepts game-channel connections, runs the handshake, and hands
// finished clients to the sequencer.
type Listener struct {
	seq     *Sequencer
	log     zerolog.Logger
	limiter *connLimiter

	passwordDigest string

	ln      net.Listener
	closing chan struct{}
	fatal   chan error
}

func NewListener(seq *Sequencer, logger zerolog.Logger) *Listener {
	cfg := seq.cfg.Server
	l := &Listener{
		seq: seq,
		log: logger.With().Str("component", "listener").Logger(),
		limiter: newConnLimiter(
			cfg.ConnRateGlobalPerSec, cfg.ConnRateGlobalBurst,
			cfg.ConnRateIPPerSec, cfg.ConnRateIPBurst,
		),
		closing: make(chan struct{}),
		fatal:   make(chan error, 1),
	}
	l.passwordDigest = passwordDigest(cfg.Password)
	return l
}

// passwordDigest is the uppercase hex SHA-1 the wire protocol uses for the
// server password gate. Empty input disables the gate.
func passwordDigest(pw string) string {
	if pw == "" {
		return ""
	}
	sum := sha1.Sum([]byte(pw))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Start binds the game channel and launches the accept loop.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.seq.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("bind game channel: %w", err)
	}
	l.ln = ln
	go l.acceptLoop()
	l.log.Info().Str("addr", ln.Addr().String()).Msg("Game channel listening")
	return nil
}

// Fatal reports an accept-loop failure. The process treats it as terminal.
func (l *Listener) Fatal() <-chan error { return l.fatal }

// Addr is the bound address, available after Start.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Stop closes the listening socket. In-flight handshakes finish on their
// own deadlines.
func (l *Listener) Stop() {
	close(l.closing)
	if l.ln != nil {
		l.ln.Close()
	}
	l.limiter.Stop()
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closing:
				return
			default:
			}
			l.log.Error().Err(err).Msg("Accept failed")
			select {
			case l.fatal <- err:
			default:
			}
			return
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}
		go l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	ip := remoteIP(conn)
	if !l.limiter.Allow(ip) {
		l.log.Warn().Str("ip", ip).Msg("Connection rate limited")
		conn.Close()
		return
	}
	runHandshake(l.seq, l.log, conn, l.passwordDigest)
}

// runHandshake drives the pre-admission exchange: Hello with the protocol
// version, then UserCredentials, then the password gate. On success the
// connection is seated and ownership passes to the sequencer.
func runHandshake(s *Sequencer, log zerolog.Logger, conn transport, passwordDigest string) {
	ip := remoteIP(conn)
	fail := func(msg string, err error) {
		log.Debug().Err(err).Str("ip", ip).Msg(msg)
		conn.Close()
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	h, payload, err := protocol.ReadFrame(conn)
	if err != nil || h.Type != protocol.MsgHello {
		fail("Handshake: no hello", err)
		return
	}
	version := strings.TrimRight(string(payload), "\x00")
	if version != protocol.Version {
		conn.SetWriteDeadline(time.Now().Add(rejectTimeout))
		protocol.WriteFrame(conn, protocol.MsgDelete, protocol.ServerUID, 0,
			[]byte("server uses protocol "+protocol.Version))
		fail("Handshake: version mismatch ("+version+")", nil)
		return
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	h, payload, err = protocol.ReadFrame(conn)
	if err != nil || h.Type != protocol.MsgUserCredentials {
		fail("Handshake: no credentials", err)
		return
	}
	creds, err := protocol.DecodeCredentials(payload)
	if err != nil {
		fail("Handshake: malformed credentials", err)
		return
	}

	if passwordDigest != "" && strings.ToUpper(creds.Password) != passwordDigest {
		conn.SetWriteDeadline(time.Now().Add(rejectTimeout))
		protocol.WriteFrame(conn, protocol.MsgWrongPassword, protocol.ServerUID, 0, nil)
		fail("Handshake: wrong password", nil)
		return
	}

	flags, nickname := s.ResolveAuth(creds.UniqueID, creds.Username)

	conn.SetReadDeadline(time.Time{})
	if _, err := s.Admit(conn, creds, flags, nickname); err != nil {
		if !errors.Is(err, ErrServerFull) && !errors.Is(err, ErrBanned) {
			log.Warn().Err(err).Str("ip", ip).Msg("Admission failed")
		}
	}
}
