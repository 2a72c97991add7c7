package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/fleet"
	"fleet-service/internal/models"
)

func registry() fleet.Registry {
	return fleet.Registry{Devices: []fleet.DeviceSpec{{
		ID:   "dev-1",
		Zone: "north",
		Robots: []fleet.RobotSpec{
			{ID: "R-001", Name: "Alpha"},
			{ID: "R-002", Name: "Beta"},
		},
	}}}
}

func TestRegisteredRobotsExistBeforeTelemetry(t *testing.T) {
	s := New(registry())
	d, err := s.Device("dev-1")
	require.NoError(t, err)
	assert.Equal(t, "north", d.Zone)
	require.Len(t, d.Robots, 2)
	assert.Equal(t, models.StateReady, d.Robots["R-001"].Status.State)
	assert.Equal(t, []string{"R-001", "R-002"}, d.RobotOrder)
}

func TestUnknownDeviceGetsDefaultFleet(t *testing.T) {
	s := New(registry())
	s.EnsureDevice("dev-9")
	d, err := s.Device("dev-9")
	require.NoError(t, err)
	assert.Len(t, d.Robots, fleet.DefaultFleetSize)
}

func TestUpdateRobotAutoRegisters(t *testing.T) {
	s := New(registry())
	r := s.UpdateRobot("dev-1", "R-777", func(r models.Robot) models.Robot {
		r.Status.Battery = models.Float(50)
		return r
	})
	assert.Equal(t, "R-777", r.ID)
	assert.Equal(t, "dev-1", r.DeviceID)

	got, err := s.Robot("dev-1", "R-777")
	require.NoError(t, err)
	assert.Equal(t, 50.0, *got.Status.Battery)
}

func TestReadsAreCopies(t *testing.T) {
	s := New(registry())
	s.UpdateRobot("dev-1", "R-001", func(r models.Robot) models.Robot {
		r.Location = &models.Location{Lat: 1, Lng: 2}
		return r
	})

	r, err := s.Robot("dev-1", "R-001")
	require.NoError(t, err)
	r.Location.Lat = 99

	again, err := s.Robot("dev-1", "R-001")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Location.Lat)
}

func TestUpdateRobotWithPeersExcludesSelf(t *testing.T) {
	s := New(registry())
	before := s.Revision("dev-1")
	s.UpdateRobotWithPeers("dev-1", "R-001", func(r models.Robot, peers []models.Robot) models.Robot {
		require.Len(t, peers, 1)
		assert.Equal(t, "R-002", peers[0].ID)
		return r
	})
	assert.Equal(t, before+1, s.Revision("dev-1"))
}

func TestUpdateDeviceKeepsRobots(t *testing.T) {
	s := New(registry())
	d := s.UpdateDevice("dev-1", func(d models.Device) models.Device {
		d.Control.ACPower = models.PowerOn
		d.Robots = nil
		return d
	})
	assert.Equal(t, models.PowerOn, d.Control.ACPower)
	assert.Len(t, d.Robots, 2)
}
