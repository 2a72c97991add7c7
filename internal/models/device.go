package models

import "time"

// EnvironmentSeverity grades each environment metric.
type EnvironmentSeverity struct {
	Temperature Severity `json:"temperature"`
	Humidity    Severity `json:"humidity"`
	Pressure    Severity `json:"pressure"`
}

// EnvironmentReading is the latest ambient reading of a device.
type EnvironmentReading struct {
	AmbientTemp     *float64            `json:"ambient_temp,omitempty"`
	AmbientHumidity *float64            `json:"ambient_humidity,omitempty"`
	Pressure        *float64            `json:"pressure,omitempty"`
	Severity        EnvironmentSeverity `json:"severity"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Actuator states reported and requested for a device.
const (
	PowerOn          = "ON"
	PowerOff         = "OFF"
	PurifierActive   = "ACTIVE"
	PurifierInactive = "INACTIVE"
)

// DeviceControlState holds the actuator and health fields of a device.
type DeviceControlState struct {
	ACPower       string    `json:"ac_power,omitempty"`
	AirPurifier   string    `json:"air_purifier,omitempty"`
	Status        string    `json:"status,omitempty"`
	GatewayHealth string    `json:"gateway_health,omitempty"`
	WifiRSSI      *float64  `json:"wifi_rssi,omitempty"`
	ActiveAlert   bool      `json:"active_alert"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Device is a host device owning a fleet of robots.
type Device struct {
	ID          string             `json:"id"`
	Zone        string             `json:"zone,omitempty"`
	Environment EnvironmentReading `json:"environment"`
	Control     DeviceControlState `json:"control"`
	Robots      map[string]Robot   `json:"robots"`
	RobotOrder  []string           `json:"-"`
}

// Clone returns a deep copy of d.
func (d Device) Clone() Device {
	out := d
	out.Environment.AmbientTemp = cloneFloat(d.Environment.AmbientTemp)
	out.Environment.AmbientHumidity = cloneFloat(d.Environment.AmbientHumidity)
	out.Environment.Pressure = cloneFloat(d.Environment.Pressure)
	out.Control.WifiRSSI = cloneFloat(d.Control.WifiRSSI)
	out.Robots = make(map[string]Robot, len(d.Robots))
	for id, r := range d.Robots {
		out.Robots[id] = r.Clone()
	}
	out.RobotOrder = append([]string(nil), d.RobotOrder...)
	return out
}

// OrderedRobots returns robots in registry order followed by late registrations.
func (d Device) OrderedRobots() []Robot {
	out := make([]Robot, 0, len(d.Robots))
	for _, id := range d.RobotOrder {
		if r, ok := d.Robots[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
