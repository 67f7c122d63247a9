package server

import (
	"io"
	"net"
	"time"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

// transport is the connection surface the relay needs. *net.TCPConn
// satisfies it directly; the WebSocket listener adapts to it.
type transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

type clientStatus int

const (
	statusFree clientStatus = iota
	statusBusy              // seated, handshake finished, flow not yet enabled
	statusUsed              // flow enabled, receives broadcasts
)

// maxStreams caps the per-client stream registry.
const maxStreams = 20

// streamTraffic accumulates per-stream byte counts; the rates are refreshed
// once a minute by the stats loop.
type streamTraffic struct {
	bandwidthIn         uint64
	bandwidthOut        uint64
	bandwidthInLastMin  uint64
	bandwidthOutLastMin uint64
	bandwidthInRate     float64
	bandwidthOutRate    float64
}

// Client is one seat in the session table. All mutable fields are guarded by
// the sequencer's table mutex; conn, broadcaster and receiver are set at
// admission and torn down only by the killer.
type Client struct {
	UID      uint32
	Slot     int
	Nickname string
	UniqueID string
	Colour   uint32
	Auth     protocol.AuthFlags

	status      clientStatus
	flow        bool
	initialized bool // peer replay done on first StreamData

	streams map[uint32]protocol.StreamRegister
	traffic map[uint32]*streamTraffic

	vehicleName string
	position    [3]float32

	// beamBuffer holds vehicle state for force-feedback style messages; it
	// is the first thing released when the client is reaped.
	beamBuffer []byte

	conn        transport
	ip          string
	broadcaster *Broadcaster
	receiver    *Receiver
	joinedAt    time.Time
}

func newClient(uid uint32, slot int, conn transport) *Client {
	ip := ""
	if addr := conn.RemoteAddr(); addr != nil {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			ip = host
		} else {
			ip = addr.String()
		}
	}
	return &Client{
		UID:      uid,
		Slot:     slot,
		status:   statusBusy,
		streams:  make(map[uint32]protocol.StreamRegister),
		traffic:  make(map[uint32]*streamTraffic),
		conn:     conn,
		ip:       ip,
		joinedAt: time.Now(),
	}
}

// IP is the remote host without the port.
func (c *Client) IP() string { return c.ip }

// registerStream records a stream announcement. Returns false when the
// registry is full; the announcement is then dropped without reply.
func (c *Client) registerStream(streamID uint32, reg protocol.StreamRegister) bool {
	if len(c.streams) >= maxStreams {
		return false
	}
	c.streams[streamID] = reg
	c.trafficFor(streamID)
	if reg.Type == protocol.StreamTruck && c.vehicleName == "" {
		c.vehicleName = reg.Name
	}
	return true
}

// trafficFor returns the counter for a stream id, creating it on first use
// so chat and other unregistered streams are accounted too.
func (c *Client) trafficFor(streamID uint32) *streamTraffic {
	t, ok := c.traffic[streamID]
	if !ok {
		t = &streamTraffic{}
		c.traffic[streamID] = t
	}
	return t
}

func (c *Client) addTrafficIn(streamID uint32, n int) {
	c.trafficFor(streamID).bandwidthIn += uint64(n)
}

func (c *Client) addTrafficOut(streamID uint32, n int) {
	c.trafficFor(streamID).bandwidthOut += uint64(n)
}

// userInfo renders the seat as the payload broadcast to peers.
func (c *Client) userInfo() protocol.UserInfo {
	return protocol.UserInfo{
		SlotID:    uint32(c.Slot),
		ColourNum: c.Colour,
		Auth:      c.Auth,
		Nickname:  c.Nickname,
	}
}

// release drops the references the seat holds so the table entry cannot keep
// a dead connection alive. Called by the killer as the final teardown step.
func (c *Client) release() {
	c.beamBuffer = nil
	c.streams = nil
	c.traffic = nil
	c.broadcaster = nil
	c.receiver = nil
	c.conn = nil
	c.status = statusFree
}
