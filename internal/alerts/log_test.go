package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/models"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestEmitDeduplicatesWithinWindow(t *testing.T) {
	log := NewLog(DefaultCapacity, DefaultDedupWindow)

	_, ok := log.Emit(models.AlertWarning, "dev-1", "", "too hot", t0)
	require.True(t, ok)
	_, ok = log.Emit(models.AlertWarning, "dev-1", "", "too hot", t0.Add(29*time.Second))
	assert.False(t, ok)
	assert.Len(t, log.List(), 1)

	_, ok = log.Emit(models.AlertWarning, "dev-1", "", "too hot", t0.Add(31*time.Second))
	assert.True(t, ok)
	assert.Len(t, log.List(), 2)
}

func TestLogIsCappedNewestFirst(t *testing.T) {
	log := NewLog(DefaultCapacity, DefaultDedupWindow)
	for i := 0; i < 80; i++ {
		_, ok := log.Emit(models.AlertInfo, "dev-1", "", fmt.Sprintf("alert %d", i), t0.Add(time.Duration(i)*time.Second))
		require.True(t, ok)
	}

	list := log.List()
	require.Len(t, list, DefaultCapacity)
	assert.Equal(t, "alert 79", list[0].Message)
	assert.Equal(t, "alert 30", list[len(list)-1].Message)
	for i := 1; i < len(list); i++ {
		assert.True(t, !list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
}

func TestMarkRead(t *testing.T) {
	log := NewLog(DefaultCapacity, DefaultDedupWindow)
	a, _ := log.Emit(models.AlertCritical, "dev-1", "R-001", "battery", t0)
	log.Emit(models.AlertCritical, "dev-1", "R-002", "battery 2", t0)

	assert.Equal(t, 2, log.Unread())
	assert.True(t, log.MarkRead(a.ID))
	assert.False(t, log.MarkRead("missing"))
	assert.Equal(t, 1, log.Unread())

	log.MarkAllRead()
	assert.Zero(t, log.Unread())
}
