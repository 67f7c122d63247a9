package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// connLimiter throttles connection admission with a global token bucket plus
// one bucket per source IP. Idle per-IP buckets are evicted in the
// background.
type connLimiter struct {
	global *rate.Limiter

	perIPRate  rate.Limit
	perIPBurst int

	mu      sync.Mutex
	perIP   map[string]*ipBucket
	stop    chan struct{}
	stopped sync.Once
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const ipBucketTTL = 10 * time.Minute

func newConnLimiter(globalPerSec float64, globalBurst int, ipPerSec float64, ipBurst int) *connLimiter {
	l := &connLimiter{
		global:     rate.NewLimiter(rate.Limit(globalPerSec), globalBurst),
		perIPRate:  rate.Limit(ipPerSec),
		perIPBurst: ipBurst,
		perIP:      make(map[string]*ipBucket),
		stop:       make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Allow reports whether a new connection from ip may proceed.
func (l *connLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		return false
	}
	l.mu.Lock()
	b, ok := l.perIP[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.perIPRate, l.perIPBurst)}
		l.perIP[ip] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

func (l *connLimiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

func (l *connLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-ipBucketTTL)
			l.mu.Lock()
			for ip, b := range l.perIP {
				if b.lastSeen.Before(cutoff) {
					delete(l.perIP, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}
