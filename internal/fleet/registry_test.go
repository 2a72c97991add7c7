package fleet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
rooms:
  - name: Lobby
    center: {lat: 1, lng: 1}
    radius: 4
devices:
  - id: dev-1
    zone: north
    robots:
      - {id: R-100, name: Runner, type: delivery, zone: north}
    rooms:
      - name: Bay-3
        polygon:
          - {lat: 0, lng: 0}
          - {lat: 0, lng: 1}
          - {lat: 1, lng: 1}
`

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"dev-1"}, reg.DeviceIDs())
	assert.Equal(t, "north", reg.Zone("dev-1"))
	assert.Equal(t, "R-100", reg.RobotsFor("dev-1")[0].ID)

	rooms := reg.RoomsFor("dev-1")
	_, ok := rooms.Lookup("bay-3")
	assert.True(t, ok)
	_, ok = rooms.Lookup("LOBBY")
	assert.True(t, ok)

	_, ok = reg.RoomsFor("dev-2").Lookup("Bay-3")
	assert.False(t, ok)
}

func TestUnknownDeviceGetsDefaultFleet(t *testing.T) {
	robots := Registry{}.RobotsFor("anything")
	require.Len(t, robots, DefaultFleetSize)
	assert.Equal(t, "R-001", robots[0].ID)
	assert.Equal(t, "R-005", robots[4].ID)
}

func TestLoadEmptyPath(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, reg.Devices)
}
