package server

import (
	"bufio"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

const (
	// sendQueueCap bounds the per-client send queue. Control frames may push
	// past it; data frames are shed instead.
	sendQueueCap = 256

	// stopFlushTimeout caps how long Stop waits for the tail of the queue to
	// reach a slow client.
	stopFlushTimeout = 2 * time.Second
)

type queuedFrame struct {
	typ     protocol.MsgType
	source  uint32
	stream  uint32
	payload []byte
}

// droppable marks the frame classes that may be shed under backpressure.
// Everything else is control traffic and is always delivered in order.
func (f queuedFrame) droppable() bool {
	return f.typ == protocol.MsgStreamData || f.typ == protocol.MsgVehicleData
}

// ioFailure is posted on the sequencer's failure channel when a pump dies.
// The drain loop turns it into a disconnect; the pump itself never calls
// back into the sequencer.
type ioFailure struct {
	uid uint32
	op  string
	err error
}

// Broadcaster owns the write side of one client connection. Queue never
// blocks and may be called while the sequencer holds its table lock.
type Broadcaster struct {
	uid      uint32
	conn     transport
	log      zerolog.Logger
	failures chan<- ioFailure
	metrics  *Metrics

	mu       sync.Mutex
	queue    []queuedFrame
	dropped  uint64
	stopping bool
	wake     chan struct{}
	done     chan struct{}
}

func newBroadcaster(uid uint32, conn transport, log zerolog.Logger, failures chan<- ioFailure, m *Metrics) *Broadcaster {
	return &Broadcaster{
		uid:      uid,
		conn:     conn,
		log:      log.With().Uint32("uid", uid).Logger(),
		failures: failures,
		metrics:  m,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the write pump.
func (b *Broadcaster) Start() {
	go b.run()
}

// Queue appends a frame to the send queue without blocking. When the queue
// is saturated the oldest droppable frame is shed to make room; if nothing
// can be shed and the new frame is itself droppable, it is discarded.
func (b *Broadcaster) Queue(typ protocol.MsgType, source, stream uint32, payload []byte) {
	f := queuedFrame{typ: typ, source: source, stream: stream, payload: payload}

	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		return
	}
	if len(b.queue) >= sendQueueCap {
		if i := b.oldestDroppable(); i >= 0 {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			b.dropped++
			if b.metrics != nil {
				b.metrics.QueueDrops.Inc()
			}
		} else if f.droppable() {
			b.dropped++
			b.mu.Unlock()
			if b.metrics != nil {
				b.metrics.QueueDrops.Inc()
			}
			return
		}
	}
	b.queue = append(b.queue, f)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Broadcaster) oldestDroppable() int {
	for i, f := range b.queue {
		if f.droppable() {
			return i
		}
	}
	return -1
}

// Dropped reports how many frames have been shed so far.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Stop flushes what it can within a bounded deadline and waits for the pump
// to exit. Safe to call more than once.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.stopping = true
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-b.done
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer recoverPanic(b.log, "broadcaster")

	w := bufio.NewWriter(b.conn)
	for {
		batch, stopping := b.takeBatch()
		if len(batch) == 0 && stopping {
			return
		}
		if len(batch) == 0 {
			<-b.wake
			continue
		}

		if stopping {
			b.conn.SetWriteDeadline(time.Now().Add(stopFlushTimeout))
		}
		for _, f := range batch {
			if err := protocol.WriteFrame(w, f.typ, f.source, f.stream, f.payload); err != nil {
				b.fail("write", err)
				return
			}
			if b.metrics != nil {
				b.metrics.BytesSent.Add(float64(protocol.HeaderSize + len(f.payload)))
			}
		}
		if err := w.Flush(); err != nil {
			b.fail("flush", err)
			return
		}
	}
}

// takeBatch drains the whole queue in one go so consecutive frames share a
// single flush.
func (b *Broadcaster) takeBatch() ([]queuedFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.queue
	b.queue = nil
	return batch, b.stopping
}

func (b *Broadcaster) fail(op string, err error) {
	b.mu.Lock()
	stopping := b.stopping
	b.queue = nil
	b.mu.Unlock()

	if stopping {
		// Already being reaped; nobody needs the event.
		b.log.Debug().Err(err).Str("op", op).Msg("Write failed during teardown")
		return
	}
	b.log.Debug().Err(err).Str("op", op).Msg("Write pump failed")
	select {
	case b.failures <- ioFailure{uid: b.uid, op: op, err: err}:
	default:
		b.log.Warn().Msg("Failure channel saturated, dropping event")
	}
	// Park until Stop is called so Stop always has a live pump to join.
	for {
		b.mu.Lock()
		stopping = b.stopping
		b.mu.Unlock()
		if stopping {
			return
		}
		<-b.wake
	}
}
