package server

import (
	"sync"

	"github.com/rs/zerolog"
)

// killer reaps disconnected clients on a dedicated goroutine so the table
// lock is never held across pump joins or socket closes.
type killer struct {
	log zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Client
	stopped bool
	done    chan struct{}

	reaped func(c *Client) // test hook, may be nil
}

func newKiller(log zerolog.Logger) *killer {
	k := &killer{log: log, done: make(chan struct{})}
	k.cond = sync.NewCond(&k.mu)
	return k
}

func (k *killer) start() {
	go k.run()
}

// enqueue hands a removed client to the reaper. Never blocks.
func (k *killer) enqueue(c *Client) {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return
	}
	k.queue = append(k.queue, c)
	k.mu.Unlock()
	k.cond.Signal()
}

// stop drains the queue and waits for the reaper to exit.
func (k *killer) stop() {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		<-k.done
		return
	}
	k.stopped = true
	k.mu.Unlock()
	k.cond.Signal()
	<-k.done
}

func (k *killer) run() {
	defer close(k.done)
	for {
		k.mu.Lock()
		for len(k.queue) == 0 && !k.stopped {
			k.cond.Wait()
		}
		if len(k.queue) == 0 && k.stopped {
			k.mu.Unlock()
			return
		}
		c := k.queue[0]
		k.queue = k.queue[1:]
		k.mu.Unlock()

		k.reap(c)
	}
}

// reap tears a client down in strict order: state buffer first, then the
// write pump, then the read pump, then the socket, then the seat record.
// A panic in one victim must not stall the queue.
func (k *killer) reap(c *Client) {
	defer recoverPanic(k.log, "killer")

	k.log.Debug().Uint32("uid", c.UID).Msg("Reaping client")
	c.beamBuffer = nil
	if c.broadcaster != nil {
		c.broadcaster.Stop()
	}
	if c.receiver != nil {
		c.receiver.Stop()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.release()
	if k.reaped != nil {
		k.reaped(c)
	}
}
