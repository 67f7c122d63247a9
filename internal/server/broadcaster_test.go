package server

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

func TestBroadcasterDeliversInOrder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	failures := make(chan ioFailure, 1)
	b := newBroadcaster(1, &addrConn{Conn: server, addr: "10.0.0.1:1"}, zerolog.Nop(), failures, nil)
	b.Start()
	defer b.Stop()

	b.Queue(protocol.MsgChat, protocol.ServerUID, 0, []byte("first"))
	b.Queue(protocol.MsgChat, protocol.ServerUID, 0, []byte("second"))

	h, payload, err := protocol.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgChat, h.Type)
	assert.Equal(t, "first", string(payload))

	_, payload, err = protocol.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, "second", string(payload))
}

func TestQueueShedsOldestDataUnderPressure(t *testing.T) {
	_, server := net.Pipe()
	failures := make(chan ioFailure, 1)
	// Pump never started: the queue only fills.
	b := newBroadcaster(1, &addrConn{Conn: server, addr: "10.0.0.1:1"}, zerolog.Nop(), failures, nil)

	for i := 0; i < sendQueueCap; i++ {
		b.Queue(protocol.MsgStreamData, 2, 0, []byte{byte(i)})
	}
	assert.Equal(t, uint64(0), b.Dropped())

	b.Queue(protocol.MsgStreamData, 2, 0, []byte{0xff})
	assert.Equal(t, uint64(1), b.Dropped())

	b.mu.Lock()
	qlen := len(b.queue)
	first := b.queue[0].payload[0]
	b.mu.Unlock()
	assert.Equal(t, sendQueueCap, qlen)
	// The oldest data frame went first.
	assert.Equal(t, byte(1), first)
}

func TestQueueNeverDropsControlFrames(t *testing.T) {
	_, server := net.Pipe()
	failures := make(chan ioFailure, 1)
	b := newBroadcaster(1, &addrConn{Conn: server, addr: "10.0.0.1:1"}, zerolog.Nop(), failures, nil)

	for i := 0; i < sendQueueCap+10; i++ {
		b.Queue(protocol.MsgChat, protocol.ServerUID, 0, []byte("keep"))
	}
	assert.Equal(t, uint64(0), b.Dropped())

	b.mu.Lock()
	qlen := len(b.queue)
	b.mu.Unlock()
	assert.Equal(t, sendQueueCap+10, qlen)

	// A data frame arriving at a queue full of control traffic is the one
	// discarded.
	b.Queue(protocol.MsgStreamData, 2, 0, []byte{1})
	assert.Equal(t, uint64(1), b.Dropped())
}

type failConn struct {
	transport
	err error
}

func (c *failConn) Write(p []byte) (int, error) { return 0, c.err }

func TestWriteFailurePostsOneEvent(t *testing.T) {
	_, server := net.Pipe()
	wantErr := errors.New("boom")
	failures := make(chan ioFailure, 4)
	b := newBroadcaster(7, &failConn{transport: &addrConn{Conn: server, addr: "10.0.0.1:1"}, err: wantErr}, zerolog.Nop(), failures, nil)
	b.Start()

	b.Queue(protocol.MsgChat, protocol.ServerUID, 0, []byte("doomed"))

	select {
	case f := <-failures:
		assert.Equal(t, uint32(7), f.uid)
		assert.ErrorIs(t, f.err, wantErr)
	case <-time.After(2 * time.Second):
		t.Fatal("no failure event")
	}

	// Stop still joins the pump cleanly after the failure.
	done := make(chan struct{})
	go func() { b.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		for {
			if _, _, err := protocol.ReadFrame(client); err != nil {
				return
			}
		}
	}()

	failures := make(chan ioFailure, 1)
	b := newBroadcaster(1, &addrConn{Conn: server, addr: "10.0.0.1:1"}, zerolog.Nop(), failures, nil)
	b.Start()
	b.Queue(protocol.MsgChat, protocol.ServerUID, 0, []byte("bye"))
	b.Stop()
	b.Stop()

	// Queueing after Stop is a no-op.
	b.Queue(protocol.MsgChat, protocol.ServerUID, 0, []byte("late"))
	assert.Equal(t, uint64(0), b.Dropped())
}
