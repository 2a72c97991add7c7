// Package throttle provides keyed rate gates whose entries expire after
// their window.
package throttle

import (
	"sync"
	"time"
)

// Gate allows one event per key per window.
type Gate struct {
	window time.Duration
	mu     sync.Mutex
	last   map[string]time.Time
}

func New(window time.Duration) *Gate {
	return &Gate{window: window, last: make(map[string]time.Time)}
}

// Allow records an event for key at now and reports whether it falls
// outside the window of the previous allowed event.
func (g *Gate) Allow(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.evict(now)
	if prev, ok := g.last[key]; ok && now.Sub(prev) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// Seen reports whether key had an allowed event inside the window, without
// recording anything.
func (g *Gate) Seen(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, ok := g.last[key]
	return ok && now.Sub(prev) < g.window
}

// Reset forgets every key starting with prefix.
func (g *Gate) Reset(prefix string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.last {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(g.last, k)
		}
	}
}

func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}

func (g *Gate) evict(now time.Time) {
	for k, ts := range g.last {
		if now.Sub(ts) >= g.window {
			delete(g.last, k)
		}
	}
}

// PairKey builds an order-independent key for two ids.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
