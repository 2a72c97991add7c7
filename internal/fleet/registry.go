// Package fleet loads the static registry of devices, robots and rooms.
package fleet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fleet-service/internal/geo"
)

// DefaultFleetSize is the number of robots given to devices missing from the registry.
const DefaultFleetSize = 5

type RobotSpec struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
	Zone string `yaml:"zone" json:"zone"`
}

type DeviceSpec struct {
	ID     string      `yaml:"id"`
	Zone   string      `yaml:"zone"`
	Robots []RobotSpec `yaml:"robots"`
	Rooms  []geo.Room  `yaml:"rooms"`
}

// Registry maps device id to its ordered robot list and room geometry.
type Registry struct {
	Devices []DeviceSpec `yaml:"devices"`
	Rooms   []geo.Room   `yaml:"rooms"`
}

// Load parses a YAML registry file. An empty path yields an empty registry.
func Load(path string) (Registry, error) {
	if path == "" {
		return Registry{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("read registry: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse registry: %w", err)
	}
	for i, d := range reg.Devices {
		if d.ID == "" {
			return Registry{}, fmt.Errorf("registry device %d has no id", i)
		}
	}
	return reg, nil
}

// DeviceIDs lists registered devices in file order.
func (r Registry) DeviceIDs() []string {
	ids := make([]string, 0, len(r.Devices))
	for _, d := range r.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}

func (r Registry) device(id string) (DeviceSpec, bool) {
	for _, d := range r.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceSpec{}, false
}

// Zone returns the zone label of a device.
func (r Registry) Zone(deviceID string) string {
	d, _ := r.device(deviceID)
	return d.Zone
}

// RobotsFor returns the registered robots of a device, or the default fleet.
func (r Registry) RobotsFor(deviceID string) []RobotSpec {
	if d, ok := r.device(deviceID); ok && len(d.Robots) > 0 {
		return append([]RobotSpec(nil), d.Robots...)
	}
	return DefaultFleet()
}

// RoomsFor indexes the global rooms overlaid with the device's own rooms.
func (r Registry) RoomsFor(deviceID string) geo.Rooms {
	rooms := append([]geo.Room(nil), r.Rooms...)
	if d, ok := r.device(deviceID); ok {
		rooms = append(rooms, d.Rooms...)
	}
	return geo.NewRooms(rooms...)
}

// DefaultFleet is the generic fleet for devices absent from the registry.
func DefaultFleet() []RobotSpec {
	out := make([]RobotSpec, 0, DefaultFleetSize)
	for i := 1; i <= DefaultFleetSize; i++ {
		out = append(out, RobotSpec{
			ID:   fmt.Sprintf("R-%03d", i),
			Name: fmt.Sprintf("Robot %d", i),
			Type: "delivery",
		})
	}
	return out
}
