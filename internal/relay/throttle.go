package relay

import (
	"sync"
	"time"
)

// Throttle coalesces high-frequency events to at most one per interval per
// connection. Used for cursor-move, which is the highest-frequency and
// lowest-stakes event on the wire; dropping an intermediate position only
// means the next one overwrites it sooner.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

// NewThrottle creates a throttle with the given minimum interval. A zero or
// negative interval disables throttling entirely.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether a connection may emit an event now, and records the
// emission if so.
func (t *Throttle) Allow(connID string) bool {
	if t.interval <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if last, exists := t.last[connID]; exists && now.Sub(last) < t.interval {
		return false
	}

	t.last[connID] = now
	return true
}

// Forget drops a connection's throttle state. Called on disconnect so the
// map does not accumulate dead connections.
func (t *Throttle) Forget(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, connID)
}

// Cleanup removes entries idle for well over the interval. Safe to call
// periodically; Forget on disconnect already covers the common case.
func (t *Throttle) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for connID, last := range t.last {
		if now.Sub(last) > 5*time.Minute {
			delete(t.last, connID)
		}
	}
}
