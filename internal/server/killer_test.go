package server

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

func newReapableClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	go func() {
		for {
			if _, _, err := protocol.ReadFrame(clientSide); err != nil {
				return
			}
		}
	}()

	c := newClient(1, 0, &addrConn{Conn: serverSide, addr: "10.0.0.1:1"})
	c.beamBuffer = make([]byte, 64)
	failures := make(chan ioFailure, 4)
	c.broadcaster = newBroadcaster(c.UID, c.conn, zerolog.Nop(), failures, nil)
	c.receiver = newReceiver(c.UID, c.conn, zerolog.Nop(), failures, func(uint32, protocol.Header, []byte) {}, nil)
	c.broadcaster.Start()
	c.receiver.Start()
	return c, clientSide
}

func TestKillerReapsAndReleases(t *testing.T) {
	k := newKiller(zerolog.Nop())
	reaped := make(chan *Client, 1)
	k.reaped = func(c *Client) { reaped <- c }
	k.start()
	defer k.stop()

	c, clientSide := newReapableClient(t)
	defer clientSide.Close()

	k.enqueue(c)
	select {
	case got := <-reaped:
		assert.Same(t, c, got)
	case <-time.After(2 * time.Second):
		t.Fatal("client never reaped")
	}

	assert.Nil(t, c.beamBuffer)
	assert.Nil(t, c.broadcaster)
	assert.Nil(t, c.receiver)
	assert.Nil(t, c.conn)
	assert.Equal(t, statusFree, c.status)

	// The remote end observes the close.
	clientSide.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := protocol.ReadFrame(clientSide)
	require.Error(t, err)
}

func TestKillerSurvivesPanickingVictim(t *testing.T) {
	k := newKiller(zerolog.Nop())
	reaped := make(chan uint32, 2)
	first := true
	k.reaped = func(c *Client) {
		reaped <- c.UID
		if first {
			first = false
			panic("victim bites back")
		}
	}
	k.start()
	defer k.stop()

	c1, side1 := newReapableClient(t)
	defer side1.Close()
	c2, side2 := newReapableClient(t)
	defer side2.Close()
	c2.UID = 2

	k.enqueue(c1)
	k.enqueue(c2)

	for want := 1; want <= 2; want++ {
		select {
		case uid := <-reaped:
			assert.Equal(t, uint32(want), uid)
		case <-time.After(2 * time.Second):
			t.Fatalf("victim %d never reaped", want)
		}
	}
}

func TestKillerStopDrainsQueue(t *testing.T) {
	k := newKiller(zerolog.Nop())
	reaped := make(chan uint32, 4)
	k.reaped = func(c *Client) { reaped <- c.UID }

	c1, side1 := newReapableClient(t)
	defer side1.Close()
	c2, side2 := newReapableClient(t)
	defer side2.Close()
	c2.UID = 2

	// Enqueued before the reaper even starts.
	k.enqueue(c1)
	k.enqueue(c2)
	k.start()
	k.stop()

	assert.Len(t, reaped, 2)
}
