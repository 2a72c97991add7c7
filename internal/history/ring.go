// Package history keeps the charting buffers and the durable task log.
package history

import (
	"sync"
	"time"

	"fleet-service/internal/models"
)

// DefaultCapacity bounds every sample series.
const DefaultCapacity = 500

// Ring is a capped series of samples, newest first. Overflow drops the oldest.
type Ring struct {
	capacity int
	samples  []models.HistorySample
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

func (r *Ring) Push(s models.HistorySample) {
	r.samples = append(r.samples, models.HistorySample{})
	copy(r.samples[1:], r.samples)
	r.samples[0] = s
	if len(r.samples) > r.capacity {
		r.samples = r.samples[:r.capacity]
	}
}

func (r *Ring) Items() []models.HistorySample {
	return append([]models.HistorySample(nil), r.samples...)
}

func (r *Ring) Len() int {
	return len(r.samples)
}

// Store holds environment series per device and metric series per robot.
type Store struct {
	capacity    int
	mu          sync.RWMutex
	environment map[string]*Ring
	robots      map[string]*Ring
}

func NewStore(capacity int) *Store {
	return &Store{
		capacity:    capacity,
		environment: make(map[string]*Ring),
		robots:      make(map[string]*Ring),
	}
}

func robotKey(deviceID, robotID, metric string) string {
	return deviceID + "/" + robotID + "/" + metric
}

func (s *Store) RecordEnvironment(deviceID string, at time.Time, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.environment[deviceID]
	if !ok {
		ring = NewRing(s.capacity)
		s.environment[deviceID] = ring
	}
	ring.Push(models.HistorySample{Timestamp: at, Value: value})
}

func (s *Store) RecordRobot(deviceID, robotID, metric string, at time.Time, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := robotKey(deviceID, robotID, metric)
	ring, ok := s.robots[key]
	if !ok {
		ring = NewRing(s.capacity)
		s.robots[key] = ring
	}
	ring.Push(models.HistorySample{Timestamp: at, Value: value})
}

func (s *Store) Environment(deviceID string) []models.HistorySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ring, ok := s.environment[deviceID]; ok {
		return ring.Items()
	}
	return nil
}

func (s *Store) Robot(deviceID, robotID, metric string) []models.HistorySample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ring, ok := s.robots[robotKey(deviceID, robotID, metric)]; ok {
		return ring.Items()
	}
	return nil
}

// ResetDevice drops every series belonging to deviceID.
func (s *Store) ResetDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.environment, deviceID)
	prefix := deviceID + "/"
	for k := range s.robots {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(s.robots, k)
		}
	}
}
