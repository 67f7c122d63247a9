package server

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

func TestWSTransportCarriesFrames(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	tr := newWSTransport(serverSide)

	// Client sends one protocol frame inside a masked binary message.
	frame := protocol.EncodeFrame(protocol.MsgChat, 5, 0, []byte("over websocket"))
	go func() {
		f := ws.MaskFrame(ws.NewBinaryFrame(frame))
		ws.WriteFrame(clientSide, f)
	}()

	h, payload, err := protocol.ReadFrame(tr)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgChat, h.Type)
	assert.Equal(t, uint32(5), h.SourceUID)
	assert.Equal(t, "over websocket", string(payload))

	// Server writes land as one binary message.
	go func() {
		protocol.WriteFrame(tr, protocol.MsgWelcome, protocol.ServerUID, 0, protocol.EncodeColour(3))
	}()
	f, err := ws.ReadFrame(clientSide)
	require.NoError(t, err)
	assert.Equal(t, ws.OpBinary, f.Header.OpCode)
	h, payload, err = protocol.ReadFrame(bytes.NewReader(f.Payload))
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgWelcome, h.Type)
	colour, err := protocol.DecodeColour(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), colour)
}

func TestWSTransportAnswersPing(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	tr := newWSTransport(serverSide)

	go func() {
		ws.WriteFrame(clientSide, ws.MaskFrame(ws.NewPingFrame([]byte("beat"))))
		ws.WriteFrame(clientSide, ws.MaskFrame(ws.NewBinaryFrame([]byte{1})))
	}()

	readDone := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		io.ReadFull(tr, buf)
		close(readDone)
	}()

	f, err := ws.ReadFrame(clientSide)
	require.NoError(t, err)
	assert.Equal(t, ws.OpPong, f.Header.OpCode)
	assert.Equal(t, "beat", string(f.Payload))

	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		t.Fatal("data frame never surfaced")
	}
}

func TestWSTransportCloseFrameIsEOF(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	tr := newWSTransport(serverSide)

	go ws.WriteFrame(clientSide, ws.MaskFrame(ws.NewCloseFrame(nil)))

	_, err := tr.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
