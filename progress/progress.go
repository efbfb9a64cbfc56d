// Package progress carries conversion progress from the engine to the caller.
package progress

import (
	"sync"

	"mediaconv/models"
)

// Reporter receives progress samples. Implementations must not block for long:
// they are called from the engine's output reader.
type Reporter interface {
	Report(p models.Progress)
}

// Func adapts a plain function to Reporter.
type Func func(models.Progress)

func (f Func) Report(p models.Progress) {
	if f != nil {
		f(p)
	}
}

// Discard drops every sample.
var Discard Reporter = Func(nil)

// Clamp bounds a ratio to [0,1].
func Clamp(r float64) float64 {
	switch {
	case r != r, r < 0: // NaN or negative
		return 0
	case r > 1:
		return 1
	}
	return r
}

type monotonic struct {
	mu   sync.Mutex
	next Reporter
	last float64
	seen bool
}

// Monotonic wraps r so that it only ever sees clamped, non-decreasing ratios.
func Monotonic(r Reporter) Reporter {
	if r == nil {
		r = Discard
	}
	return &monotonic{next: r}
}

func (m *monotonic) Report(p models.Progress) {
	p.Ratio = Clamp(p.Ratio)
	m.mu.Lock()
	if m.seen && p.Ratio < m.last {
		m.mu.Unlock()
		return
	}
	m.seen = true
	m.last = p.Ratio
	m.mu.Unlock()
	m.next.Report(p)
}

// Channel is a buffered progress stream for callers that prefer to range
// over events. Report never blocks: when the buffer is full the oldest
// pending sample is replaced, so the latest value always gets through.
type Channel struct {
	mu     sync.Mutex
	ch     chan models.Progress
	closed bool
}

// NewChannel returns a stream with room for size pending samples (minimum 1).
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan models.Progress, size)}
}

// Events is closed by Close.
func (c *Channel) Events() <-chan models.Progress {
	return c.ch
}

func (c *Channel) Report(p models.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.ch <- p:
			return
		default:
		}
		// full: drop the oldest sample and retry
		select {
		case <-c.ch:
		default:
		}
	}
}

// Close marks completion. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
