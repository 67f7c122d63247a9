package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

func TestMinuteRates(t *testing.T) {
	s := newTestSequencer(t, 8)
	a := join(t, s, "alice", "10.0.0.1", protocol.AuthNone)
	b := join(t, s, "bob", "10.0.0.2", protocol.AuthNone)
	s.EnableFlow(a.uid)
	s.EnableFlow(b.uid)

	reg := protocol.StreamRegister{Type: protocol.StreamTruck, Name: "rig.truck"}
	a.send(protocol.MsgStreamRegister, 1, reg.Encode())
	a.send(protocol.MsgStreamData, 1, make([]byte, 600))
	b.expect(protocol.MsgStreamData)

	s.updateMinuteRates()

	// Both published frames count against the stream: the registration
	// relay and the data frame.
	want := uint64(2*protocol.HeaderSize + len(reg.Encode()) + 600)

	s.mu.Lock()
	tr := s.lookupLocked(a.uid).traffic[1]
	in := tr.bandwidthIn
	rate := tr.bandwidthInRate
	s.mu.Unlock()

	assert.Equal(t, want, in)
	assert.InDelta(t, float64(want)/60, rate, 0.01)

	// Second tick with no traffic: rate decays to zero.
	s.updateMinuteRates()
	s.mu.Lock()
	rate = s.lookupLocked(a.uid).traffic[1].bandwidthInRate
	s.mu.Unlock()
	assert.Zero(t, rate)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestSequencer(t, 8)
	a := join(t, s, "alice", "10.0.0.1", protocol.AuthNone)
	s.EnableFlow(a.uid)

	h := NewHTTPServer(s, prometheus.NewRegistry(), zerolog.Nop())
	rec := httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["players"])
	assert.Equal(t, float64(8), body["max_players"])
}
