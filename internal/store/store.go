// Package store is the shared device-keyed, robot-keyed state. Every write
// replaces whole records so readers never observe a torn update.
package store

import (
	"errors"
	"sort"
	"sync"

	"fleet-service/internal/fleet"
	"fleet-service/internal/models"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrRobotNotFound  = errors.New("robot not found")
)

// Store holds every device and its robots.
type Store struct {
	registry fleet.Registry
	mu       sync.RWMutex
	devices  map[string]models.Device
	revision map[string]uint64
}

// New seeds the store with every registered device and robot.
func New(reg fleet.Registry, deviceIDs ...string) *Store {
	s := &Store{
		registry: reg,
		devices:  make(map[string]models.Device),
		revision: make(map[string]uint64),
	}
	for _, id := range append(reg.DeviceIDs(), deviceIDs...) {
		s.ensureDevice(id)
	}
	return s
}

func (s *Store) ensureDevice(deviceID string) models.Device {
	if d, ok := s.devices[deviceID]; ok {
		return d
	}
	d := models.Device{
		ID:     deviceID,
		Zone:   s.registry.Zone(deviceID),
		Robots: make(map[string]models.Robot),
		Environment: models.EnvironmentReading{
			Severity: models.EnvironmentSeverity{
				Temperature: models.SeverityGood,
				Humidity:    models.SeverityGood,
				Pressure:    models.SeverityGood,
			},
		},
	}
	for _, spec := range s.registry.RobotsFor(deviceID) {
		d.Robots[spec.ID] = newRobot(deviceID, spec)
		d.RobotOrder = append(d.RobotOrder, spec.ID)
	}
	s.devices[deviceID] = d
	return d
}

func newRobot(deviceID string, spec fleet.RobotSpec) models.Robot {
	name := spec.Name
	if name == "" {
		name = spec.ID
	}
	return models.Robot{
		ID:       spec.ID,
		DeviceID: deviceID,
		Name:     name,
		Type:     spec.Type,
		Zone:     spec.Zone,
		Status: models.RobotStatus{
			State: models.StateReady,
			Severity: models.RobotSeverity{
				Battery:     models.SeverityGood,
				Temperature: models.SeverityGood,
			},
		},
		TaskQueue: []models.Task{},
	}
}

// EnsureDevice registers deviceID with its registry fleet if unknown.
func (s *Store) EnsureDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDevice(deviceID)
}

// DeviceIDs lists known devices in sorted order.
func (s *Store) DeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Device returns a deep copy of a device.
func (s *Store) Device(deviceID string) (models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return models.Device{}, ErrDeviceNotFound
	}
	return d.Clone(), nil
}

// Robot returns a deep copy of a robot.
func (s *Store) Robot(deviceID, robotID string) (models.Robot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return models.Robot{}, ErrDeviceNotFound
	}
	r, ok := d.Robots[robotID]
	if !ok {
		return models.Robot{}, ErrRobotNotFound
	}
	return r.Clone(), nil
}

// Revision is incremented on every write to a device.
func (s *Store) Revision(deviceID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision[deviceID]
}

// UpdateDevice replaces the device-level fields with the result of fn. The
// robots map is not writable through this call.
func (s *Store) UpdateDevice(deviceID string, fn func(models.Device) models.Device) models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.ensureDevice(deviceID)
	next := fn(cur.Clone())
	next.ID = cur.ID
	next.Robots = cur.Robots
	next.RobotOrder = cur.RobotOrder
	s.devices[deviceID] = next
	s.revision[deviceID]++
	return next.Clone()
}

// UpdateRobot replaces one robot with the result of fn. Unknown devices and
// robots are registered on the fly.
func (s *Store) UpdateRobot(deviceID, robotID string, fn func(models.Robot) models.Robot) models.Robot {
	return s.UpdateRobotWithPeers(deviceID, robotID, func(r models.Robot, _ []models.Robot) models.Robot {
		return fn(r)
	})
}

// UpdateRobotWithPeers is UpdateRobot with a snapshot of the other robots of
// the same device, taken under the same lock as the write.
func (s *Store) UpdateRobotWithPeers(deviceID, robotID string, fn func(models.Robot, []models.Robot) models.Robot) models.Robot {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.ensureDevice(deviceID)

	cur, ok := d.Robots[robotID]
	if !ok {
		cur = newRobot(deviceID, fleet.RobotSpec{ID: robotID})
		d.RobotOrder = append(d.RobotOrder, robotID)
	}

	peers := make([]models.Robot, 0, len(d.Robots))
	for _, id := range d.RobotOrder {
		if id == robotID {
			continue
		}
		if p, ok := d.Robots[id]; ok {
			peers = append(peers, p.Clone())
		}
	}

	next := fn(cur.Clone(), peers)
	next.ID = robotID
	next.DeviceID = deviceID

	robots := make(map[string]models.Robot, len(d.Robots)+1)
	for id, r := range d.Robots {
		robots[id] = r
	}
	robots[robotID] = next
	d.Robots = robots
	s.devices[deviceID] = d
	s.revision[deviceID]++
	return next.Clone()
}

// EachRobot calls fn with a copy of every robot of every device.
func (s *Store) EachRobot(fn func(models.Robot)) {
	s.mu.RLock()
	var robots []models.Robot
	for _, id := range s.sortedIDsLocked() {
		robots = append(robots, s.devices[id].OrderedRobots()...)
	}
	s.mu.RUnlock()
	for _, r := range robots {
		fn(r.Clone())
	}
}

func (s *Store) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
