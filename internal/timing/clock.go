// Package timing provides the clock abstraction and the batch-loading
// timer. The Clock seam exists so accelerator backends can synchronize
// pending device work before reading the time, and so tests can drive
// time by hand.
package timing

import (
	"sync"
	"time"

	"github.com/gradkit/gradkit/internal/observability/logging"
)

// Clock reads the current time. Implementations backed by an accelerator
// must flush pending device work in Now so measured durations cover the
// real computation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a test clock advanced by hand.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock starting at now
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// LogDuration logs the time spent between the call and the returned
// function. Use it with defer:
//
//	defer LogDuration(log, clock, "training loop")()
func LogDuration(log logging.Logger, clock Clock, msg string) func() {
	start := clock.Now()
	return func() {
		log.Info(msg, logging.Duration("duration", clock.Now().Sub(start)))
	}
}
