package server

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/gamerelay/internal/protocol"
)

// frameHandler consumes decoded frames from a client. The receiver holds no
// locks while calling it.
type frameHandler func(uid uint32, h protocol.Header, payload []byte)

// Receiver owns the read side of one client connection. It checks the stop
// flag between frames, never mid-frame, so Stop leaves no torn reads.
type Receiver struct {
	uid      uint32
	conn     transport
	log      zerolog.Logger
	failures chan<- ioFailure
	handle   frameHandler
	metrics  *Metrics

	stopped atomic.Bool
	done    chan struct{}
}

func newReceiver(uid uint32, conn transport, log zerolog.Logger, failures chan<- ioFailure, handle frameHandler, m *Metrics) *Receiver {
	return &Receiver{
		uid:      uid,
		conn:     conn,
		log:      log.With().Uint32("uid", uid).Logger(),
		failures: failures,
		handle:   handle,
		metrics:  m,
		done:     make(chan struct{}),
	}
}

// Start launches the read pump.
func (r *Receiver) Start() {
	go r.run()
}

// Stop flags the pump and unblocks any in-flight read. The connection itself
// is closed by the killer afterwards.
func (r *Receiver) Stop() {
	if r.stopped.Swap(true) {
		<-r.done
		return
	}
	r.conn.SetReadDeadline(time.Now())
	<-r.done
}

func (r *Receiver) run() {
	defer close(r.done)
	defer recoverPanic(r.log, "receiver")

	for {
		if r.stopped.Load() {
			return
		}
		h, payload, err := protocol.ReadFrame(r.conn)
		if err != nil {
			if r.stopped.Load() {
				return
			}
			r.log.Debug().Err(err).Msg("Read pump failed")
			select {
			case r.failures <- ioFailure{uid: r.uid, op: "read", err: err}:
			default:
				r.log.Warn().Msg("Failure channel saturated, dropping event")
			}
			return
		}
		if r.metrics != nil {
			r.metrics.FramesReceived.WithLabelValues(h.Type.String()).Inc()
			r.metrics.BytesReceived.Add(float64(protocol.HeaderSize + h.Size))
		}
		r.handle(r.uid, h, payload)
	}
}
