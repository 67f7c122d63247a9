package script

import (
	"context"
	"time"
)

// Stepper receives the periodic tick.
type Stepper interface {
	FrameStep(dt time.Duration)
}

// RunFrameTimer drives FrameStep at a fixed interval until ctx ends. The
// reported delta is the measured gap, not the nominal interval.
func RunFrameTimer(ctx context.Context, s Stepper, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.FrameStep(now.Sub(last))
			last = now
		}
	}
}
