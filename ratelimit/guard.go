// Package ratelimit bounds event emission per connection and admission
// attempts per remote address.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow = time.Minute
	DefaultCap    = 50
)

// Guard is a per-connection window counter: at most cap events are
// accepted per window. Decisions touch only the counter of the
// connection concerned; the map lock is held just long enough to find
// or create it.
type Guard struct {
	window time.Duration
	cap    int

	mu       sync.RWMutex
	counters map[string]*windowCounter

	now func() time.Time
}

type windowCounter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// NewGuard builds a guard with the given window length and event cap.
// Non-positive arguments fall back to the defaults.
func NewGuard(window time.Duration, cap int) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Guard{
		window:   window,
		cap:      cap,
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

// Allow records one event for connectionID and reports whether it is
// within the cap for the current window.
func (g *Guard) Allow(connectionID string) bool {
	c := g.counter(connectionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := g.now()
	switch {
	case c.windowStart.IsZero(), now.Sub(c.windowStart) > g.window:
		c.windowStart = now
		c.count = 1
		return true
	case c.count >= g.cap:
		return false
	default:
		c.count++
		return true
	}
}

// Forget drops the counter for a retired connection.
func (g *Guard) Forget(connectionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.counters, connectionID)
}

// Sweep reclaims counters with no traffic for a full window and returns
// how many were removed. In-flight decisions for other connections are
// unaffected: their counters are touched only under their own lock.
func (g *Guard) Sweep() int {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for id, c := range g.counters {
		c.mu.Lock()
		stale := now.Sub(c.windowStart) > g.window
		c.mu.Unlock()
		if stale {
			delete(g.counters, id)
			removed++
		}
	}
	return removed
}

func (g *Guard) counter(connectionID string) *windowCounter {
	g.mu.RLock()
	c, ok := g.counters[connectionID]
	g.mu.RUnlock()
	if ok {
		return c
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok = g.counters[connectionID]; ok {
		return c
	}
	c = &windowCounter{}
	g.counters[connectionID] = c
	return c
}
