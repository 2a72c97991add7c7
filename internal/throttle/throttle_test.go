package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateWindow(t *testing.T) {
	g := New(30 * time.Second)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, g.Allow("k", t0))
	assert.False(t, g.Allow("k", t0.Add(10*time.Second)))
	assert.True(t, g.Seen("k", t0.Add(29*time.Second)))
	assert.True(t, g.Allow("k", t0.Add(30*time.Second)))
	assert.True(t, g.Allow("other", t0.Add(31*time.Second)))
}

func TestGateEvictsExpiredKeys(t *testing.T) {
	g := New(time.Second)
	t0 := time.Now()
	g.Allow("a", t0)
	g.Allow("b", t0)
	g.Allow("c", t0.Add(2*time.Second))
	assert.Equal(t, 1, g.Len())
}

func TestPairKeyIsUnordered(t *testing.T) {
	assert.Equal(t, PairKey("R-001", "R-002"), PairKey("R-002", "R-001"))
}

func TestReset(t *testing.T) {
	g := New(time.Minute)
	now := time.Now()
	g.Allow("dev-1|climate", now)
	g.Allow("dev-2|climate", now)
	g.Reset("dev-1|")
	assert.True(t, g.Allow("dev-1|climate", now))
	assert.False(t, g.Allow("dev-2|climate", now))
}
