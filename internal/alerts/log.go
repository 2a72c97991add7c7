// Package alerts holds the operator alert log: deduplicated, newest first
// and capped.
package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet-service/internal/models"
	"fleet-service/internal/throttle"
)

const (
	DefaultCapacity    = 50
	DefaultDedupWindow = 30 * time.Second
)

// Log is the append-only alert log.
type Log struct {
	mu       sync.RWMutex
	entries  []models.Alert
	capacity int
	dedup    *throttle.Gate
	newID    func() string
}

func NewLog(capacity int, dedupWindow time.Duration) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		dedup:    throttle.New(dedupWindow),
		newID:    func() string { return uuid.New().String() },
	}
}

// Emit records an alert unless one with the same message was recorded in the
// dedup window. It reports whether the alert was accepted.
func (l *Log) Emit(level models.AlertLevel, deviceID, robotID, message string, now time.Time) (models.Alert, bool) {
	if !l.dedup.Allow(message, now) {
		return models.Alert{}, false
	}

	alert := models.Alert{
		ID:        l.newID(),
		Level:     level,
		DeviceID:  deviceID,
		RobotID:   robotID,
		Message:   message,
		CreatedAt: now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]models.Alert, 0, min(len(l.entries)+1, l.capacity))
	entries = append(entries, alert)
	entries = append(entries, l.entries...)
	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}
	l.entries = entries
	return alert, true
}

// List returns a copy of the log, newest first.
func (l *Log) List() []models.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Alert(nil), l.entries...)
}

func (l *Log) Unread() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, a := range l.entries {
		if !a.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one alert as read and reports whether it exists.
func (l *Log) MarkRead(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Read = true
			return true
		}
	}
	return false
}

func (l *Log) MarkAllRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		l.entries[i].Read = true
	}
}
