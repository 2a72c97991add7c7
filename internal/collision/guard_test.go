package collision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func robot(id string, lat, lng float64, state models.RobotState) models.Robot {
	return models.Robot{
		ID:       id,
		DeviceID: "dev-1",
		Location: &models.Location{Lat: lat, Lng: lng},
		Status:   models.RobotStatus{State: state},
	}
}

// 0.00001 degrees of latitude is about 1.1m.
const step = 0.00001

func TestMovingRobotIsBlockedPeerUntouched(t *testing.T) {
	b := robot("B", 10, 20, models.StateReady)
	a := robot("A", 10+step, 20, models.StateActive)
	a.Task = &models.Task{ID: "T-1", Phase: models.PhaseEnRouteToDestination, Progress: 40}

	a, out := Resolve(a, []models.Robot{b}, DefaultThreshold, t0)
	require.True(t, out.Blocked)
	require.Len(t, out.Contacts, 1)
	assert.Equal(t, "B", out.Contacts[0].PeerID)
	assert.Equal(t, models.StateBlocked, a.Status.State)
	assert.Equal(t, []string{"B"}, a.Status.BlockedBy)
	assert.Equal(t, t0, *a.Status.BlockedSince)
	assert.True(t, a.Task.Paused)
	assert.Equal(t, models.PauseReasonCollision, a.Task.PauseReason)

	// B reporting its unchanged position does not block B.
	b, out = Resolve(b, []models.Robot{a}, DefaultThreshold, t0.Add(time.Second))
	assert.Empty(t, out.Contacts)
	assert.False(t, out.Blocked)
	assert.Equal(t, models.StateReady, b.Status.State)

	// Still close: blocked state and start time are kept.
	a.Location = &models.Location{Lat: 10 + step, Lng: 20 + step/2}
	a, out = Resolve(a, []models.Robot{b}, DefaultThreshold, t0.Add(5*time.Second))
	assert.False(t, out.Blocked)
	assert.Equal(t, t0, *a.Status.BlockedSince)

	// A moves away and returns to its pre-block state with the task intact.
	a.Location = &models.Location{Lat: 10 + 10*step, Lng: 20}
	a, out = Resolve(a, []models.Robot{b}, DefaultThreshold, t0.Add(10*time.Second))
	assert.True(t, out.Released)
	assert.Equal(t, models.StateActive, a.Status.State)
	assert.Empty(t, a.Status.BlockedBy)
	assert.Nil(t, a.Status.BlockedSince)
	assert.False(t, a.Task.Paused)
	assert.Equal(t, models.PhaseEnRouteToDestination, a.Task.Phase)
	assert.Equal(t, 40.0, a.Task.Progress)
}

func TestBlockerSetAccumulates(t *testing.T) {
	b := robot("B", 10, 20, models.StateReady)
	c := robot("C", 10+2*step, 20, models.StateReady)
	a := robot("A", 10-step, 20, models.StateReady)

	a, _ = Resolve(a, []models.Robot{b, c}, DefaultThreshold, t0)
	assert.Equal(t, []string{"B"}, a.Status.BlockedBy)

	a.Location = &models.Location{Lat: 10 + step, Lng: 20}
	a, _ = Resolve(a, []models.Robot{b, c}, DefaultThreshold, t0.Add(time.Second))
	assert.Equal(t, []string{"B", "C"}, a.Status.BlockedBy)
	assert.Equal(t, t0, *a.Status.BlockedSince)
}

func TestStationaryBlockedRobotReleasedWhenBlockerLeaves(t *testing.T) {
	b := robot("B", 10, 20, models.StateReady)
	a := robot("A", 10+step, 20, models.StateReady)
	a, _ = Resolve(a, []models.Robot{b}, DefaultThreshold, t0)
	require.Equal(t, models.StateBlocked, a.Status.State)
	assert.Equal(t, []string{"A"}, Yielding("B", []models.Robot{a}))

	b.Location = &models.Location{Lat: 10 - 10*step, Lng: 20}
	a, out := Resolve(a, []models.Robot{b}, DefaultThreshold, t0.Add(time.Second))
	assert.True(t, out.Released)
	assert.Equal(t, models.StateReady, a.Status.State)
}

func TestNoLocationNoCheck(t *testing.T) {
	a := models.Robot{ID: "A", Status: models.RobotStatus{State: models.StateReady}}
	b := robot("B", 10, 20, models.StateReady)
	out, outcome := Resolve(a, []models.Robot{b}, DefaultThreshold, t0)
	assert.Equal(t, a, out)
	assert.Empty(t, outcome.Contacts)
}

func TestNotifierThrottlesPerPair(t *testing.T) {
	n := NewNotifier(DefaultNotifyWindow)
	ab := Contact{DeviceID: "dev-1", RobotID: "A", PeerID: "B", Distance: 1, At: t0}
	ba := Contact{DeviceID: "dev-1", RobotID: "B", PeerID: "A", Distance: 1, At: t0.Add(time.Second)}
	ac := Contact{DeviceID: "dev-1", RobotID: "A", PeerID: "C", Distance: 1, At: t0.Add(time.Second)}

	assert.Len(t, n.Filter([]Contact{ab}), 1)
	assert.Equal(t, []Contact{ac}, n.Filter([]Contact{ba, ac}))

	later := ab
	later.At = t0.Add(31 * time.Second)
	assert.Len(t, n.Filter([]Contact{later}), 1)
	assert.Contains(t, ab.Message(), "A is 1.0m from B")
}
