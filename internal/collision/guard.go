// Package collision blocks a robot that moves within the collision
// threshold of another robot on the same device and releases it once the
// robots that caused the block are out of range.
package collision

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"fleet-service/internal/geo"
	"fleet-service/internal/models"
	"fleet-service/internal/throttle"
)

const (
	DefaultThreshold    = 1.5
	DefaultNotifyWindow = 30 * time.Second
)

// Contact is one robot pair closer than the threshold.
type Contact struct {
	DeviceID string
	RobotID  string
	PeerID   string
	Distance float64
	At       time.Time
}

func (c Contact) Message() string {
	return fmt.Sprintf("Collision risk on %s: %s is %.1fm from %s", c.DeviceID, c.RobotID, c.Distance, c.PeerID)
}

// Outcome describes what Resolve did to the robot.
type Outcome struct {
	Contacts []Contact
	Blocked  bool
	Released bool
}

// Resolve returns the next state of r after a position change. Only r is
// modified. Peers that are already blocked by r are not counted, so two
// converging robots never block each other.
func Resolve(r models.Robot, peers []models.Robot, threshold float64, now time.Time) (models.Robot, Outcome) {
	var out Outcome
	if r.Location == nil {
		return r, out
	}

	for _, p := range peers {
		if p.Location == nil || slices.Contains(p.Status.BlockedBy, r.ID) {
			continue
		}
		if d := geo.Haversine(*r.Location, *p.Location); d <= threshold {
			out.Contacts = append(out.Contacts, Contact{
				DeviceID: r.DeviceID, RobotID: r.ID, PeerID: p.ID, Distance: d, At: now,
			})
		}
	}

	if len(out.Contacts) > 0 {
		out.Blocked = block(&r, out.Contacts, now)
		return r, out
	}

	if r.Status.State != models.StateBlocked {
		return r, out
	}
	if stillBlocked(r, peers, threshold) {
		return r, out
	}
	release(&r)
	out.Released = true
	return r, out
}

func block(r *models.Robot, contacts []Contact, now time.Time) bool {
	ids := append([]string(nil), r.Status.BlockedBy...)
	for _, c := range contacts {
		if !slices.Contains(ids, c.PeerID) {
			ids = append(ids, c.PeerID)
		}
	}
	sort.Strings(ids)
	r.Status.BlockedBy = ids

	if r.Task != nil && r.Task.Active() && !r.Task.Paused {
		r.Task.Paused = true
		r.Task.PauseReason = models.PauseReasonCollision
	}
	if r.Status.State == models.StateBlocked {
		return false
	}
	r.Status.PreBlockState = r.Status.State
	r.Status.State = models.StateBlocked
	r.Status.BlockedSince = models.Time(now)
	return true
}

// stillBlocked re-tests only the peers recorded as blockers.
func stillBlocked(r models.Robot, peers []models.Robot, threshold float64) bool {
	for _, p := range peers {
		if p.Location == nil || !slices.Contains(r.Status.BlockedBy, p.ID) {
			continue
		}
		if geo.Haversine(*r.Location, *p.Location) <= threshold {
			return true
		}
	}
	return false
}

func release(r *models.Robot) {
	next := r.Status.PreBlockState
	if next == "" || next == models.StateBlocked {
		next = models.StateReady
		if r.Task != nil && r.Task.Active() {
			next = models.StateActive
		}
	}
	r.Status.State = next
	r.Status.PreBlockState = ""
	r.Status.BlockedBy = nil
	r.Status.BlockedSince = nil
	if r.Task != nil && r.Task.PauseReason == models.PauseReasonCollision {
		r.Task.Paused = false
		r.Task.PauseReason = ""
	}
}

// Yielding lists the peers currently blocked by robotID. They need a
// re-check when robotID moves.
func Yielding(robotID string, peers []models.Robot) []string {
	var ids []string
	for _, p := range peers {
		if p.Status.State == models.StateBlocked && slices.Contains(p.Status.BlockedBy, robotID) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Notifier limits collision side effects to one per unordered robot pair
// per window.
type Notifier struct {
	gate *throttle.Gate
}

func NewNotifier(window time.Duration) *Notifier {
	return &Notifier{gate: throttle.New(window)}
}

// Filter returns the contacts whose pair has not been notified within the
// window.
func (n *Notifier) Filter(contacts []Contact) []Contact {
	var out []Contact
	for _, c := range contacts {
		key := c.DeviceID + "/" + throttle.PairKey(c.RobotID, c.PeerID)
		if n.gate.Allow(key, c.At) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets notification state for one device.
func (n *Notifier) Reset(deviceID string) {
	n.gate.Reset(deviceID + "/")
}
