package server

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"
)

// WSListener carries the same framed protocol over WebSocket binary
// messages, for clients behind proxies that cannot open a raw TCP channel.
type WSListener struct {
	seq     *Sequencer
	log     zerolog.Logger
	limiter *connLimiter

	passwordDigest string

	ln      net.Listener
	closing chan struct{}
}

func NewWSListener(seq *Sequencer, logger zerolog.Logger) *WSListener {
	cfg := seq.cfg.Server
	l := &WSListener{
		seq: seq,
		log: logger.With().Str("component", "ws_listener").Logger(),
		limiter: newConnLimiter(
			cfg.ConnRateGlobalPerSec, cfg.ConnRateGlobalBurst,
			cfg.ConnRateIPPerSec, cfg.ConnRateIPBurst,
		),
		closing: make(chan struct{}),
	}
	l.passwordDigest = passwordDigest(cfg.Password)
	return l
}

// Start binds the WebSocket port and launches the accept loop.
func (l *WSListener) Start() error {
	addr := fmt.Sprintf("%s:%d", l.seq.cfg.Server.IP, l.seq.cfg.Server.WebSocketPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind websocket channel: %w", err)
	}
	l.ln = ln
	go l.acceptLoop()
	l.log.Info().Str("addr", ln.Addr().String()).Msg("WebSocket channel listening")
	return nil
}

func (l *WSListener) Stop() {
	close(l.closing)
	if l.ln != nil {
		l.ln.Close()
	}
	l.limiter.Stop()
}

func (l *WSListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closing:
			default:
				l.log.Error().Err(err).Msg("WebSocket accept failed")
			}
			return
		}
		go l.handle(conn)
	}
}

func (l *WSListener) handle(conn net.Conn) {
	ip := remoteIP(conn)
	if !l.limiter.Allow(ip) {
		l.log.Warn().Str("ip", ip).Msg("Connection rate limited")
		conn.Close()
		return
	}

	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if _, err := ws.Upgrade(conn); err != nil {
		l.log.Debug().Err(err).Str("ip", ip).Msg("WebSocket upgrade failed")
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{})

	runHandshake(l.seq, l.log, newWSTransport(conn), l.passwordDigest)
}

// wsTransport adapts a server-side WebSocket connection to the byte-stream
// surface the relay pumps expect. Each Write becomes one binary message;
// Reads consume binary messages and buffer any remainder. Every outgoing
// WebSocket frame (data or pong) is compiled to a single buffer and written
// under one mutex, so the read pump's control replies can never interleave
// with the write pump's data frames.
type wsTransport struct {
	conn net.Conn
	rest []byte

	wmu sync.Mutex
}

func newWSTransport(conn net.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(p []byte) (int, error) {
	for len(t.rest) == 0 {
		h, err := ws.ReadHeader(t.conn)
		if err != nil {
			return 0, err
		}
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(t.conn, payload); err != nil {
			return 0, err
		}
		if h.Masked {
			ws.Cipher(payload, h.Mask, 0)
		}
		switch h.OpCode {
		case ws.OpBinary, ws.OpContinuation:
			t.rest = payload
		case ws.OpPing:
			if err := t.writeFrame(ws.NewPongFrame(payload)); err != nil {
				return 0, err
			}
		case ws.OpClose:
			return 0, io.EOF
		case ws.OpPong:
			// Unsolicited; ignore.
		default:
			return 0, fmt.Errorf("unexpected websocket opcode %d", h.OpCode)
		}
	}
	n := copy(p, t.rest)
	t.rest = t.rest[n:]
	return n, nil
}

func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.writeFrame(ws.NewBinaryFrame(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) writeFrame(f ws.Frame) error {
	data, err := ws.CompileFrame(f)
	if err != nil {
		return err
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err = t.conn.Write(data)
	return err
}

func (t *wsTransport) Close() error                       { return t.conn.Close() }
func (t *wsTransport) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *wsTransport) RemoteAddr() net.Addr               { return t.conn.RemoteAddr() }
