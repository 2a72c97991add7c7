// Package autocontrol turns environment readings into actuator commands in
// AUTOMATIC mode and into operator advisories in MANUAL mode.
package autocontrol

import (
	"fmt"
	"time"

	"fleet-service/internal/models"
	"fleet-service/internal/throttle"
)

// Policy selects how temperature maps onto the climate unit.
type Policy string

const (
	// PolicyLiteral turns the climate unit ON below the minimum temperature
	// and OFF above the maximum.
	PolicyLiteral Policy = "literal"
	// PolicyCooling treats the climate unit as a cooler: ON above the
	// maximum, OFF below the minimum.
	PolicyCooling Policy = "cooling"

	DefaultPolicy = PolicyLiteral
	DefaultWindow = 60 * time.Second
)

// ParsePolicy falls back to DefaultPolicy for unknown names.
func ParsePolicy(s string) Policy {
	switch Policy(s) {
	case PolicyCooling:
		return PolicyCooling
	default:
		return DefaultPolicy
	}
}

// Actuator topics understood by the state API.
const (
	TopicACPower     = "ac_power"
	TopicAirPurifier = "air_purifier"
)

// Command is one actuator request.
type Command struct {
	DeviceID string
	Topic    string
	Value    string
	Reason   string
}

// Payload is the body sent to the state API.
func (c Command) Payload() map[string]any {
	return map[string]any{"value": c.Value, "reason": c.Reason, "source": "auto-control"}
}

// Advisory asks the operator to perform a command by hand.
type Advisory struct {
	DeviceID string
	Command  Command
	Message  string
}

// Decision is the result of one evaluation. At most one of the two slices
// is populated.
type Decision struct {
	Commands   []Command
	Advisories []Advisory
}

// Desired lists the commands the reading calls for, leaving out actuators
// already in the requested state.
func Desired(policy Policy, deviceID string, r models.EnvironmentReading, ctl models.DeviceControlState, th models.Thresholds) []Command {
	var cmds []Command
	add := func(topic, current, value, reason string) {
		if current == value {
			return
		}
		cmds = append(cmds, Command{DeviceID: deviceID, Topic: topic, Value: value, Reason: reason})
	}

	if t := r.AmbientTemp; t != nil {
		low, high := models.PowerOn, models.PowerOff
		if policy == PolicyCooling {
			low, high = models.PowerOff, models.PowerOn
		}
		switch {
		case *t < th.Temperature.Min:
			add(TopicACPower, ctl.ACPower, low,
				fmt.Sprintf("temperature %.1f°C below minimum %.1f°C", *t, th.Temperature.Min))
		case *t > th.Temperature.Max:
			add(TopicACPower, ctl.ACPower, high,
				fmt.Sprintf("temperature %.1f°C above maximum %.1f°C", *t, th.Temperature.Max))
		}
	}

	h := r.AmbientHumidity
	switch {
	case h != nil && *h > th.Humidity.Max:
		add(TopicAirPurifier, ctl.AirPurifier, models.PurifierActive,
			fmt.Sprintf("humidity %.1f%% above maximum %.1f%%", *h, th.Humidity.Max))
	case ctl.ActiveAlert:
		add(TopicAirPurifier, ctl.AirPurifier, models.PurifierActive, "device reports an active alert")
	case h != nil && *h < th.Humidity.Min:
		add(TopicAirPurifier, ctl.AirPurifier, models.PurifierInactive,
			fmt.Sprintf("humidity %.1f%% below minimum %.1f%%", *h, th.Humidity.Min))
	}
	return cmds
}

// Controller holds the per-device throttles. Safe for use from one
// goroutine at a time per device; the gates themselves are locked.
type Controller struct {
	policy   Policy
	commands *throttle.Gate
	advisory *throttle.Gate
}

func NewController(policy Policy, window time.Duration) *Controller {
	return &Controller{
		policy:   policy,
		commands: throttle.New(window),
		advisory: throttle.New(window),
	}
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// Evaluate decides what to do for one environment update.
func (c *Controller) Evaluate(mode models.SystemMode, deviceID string, r models.EnvironmentReading, ctl models.DeviceControlState, th models.Thresholds, now time.Time) Decision {
	cmds := Desired(c.policy, deviceID, r, ctl, th)
	if len(cmds) == 0 {
		return Decision{}
	}

	if mode == models.ModeAutomatic {
		if !c.commands.Allow(deviceID, now) {
			return Decision{}
		}
		return Decision{Commands: cmds}
	}

	var d Decision
	for _, cmd := range cmds {
		if !c.advisory.Allow(deviceID+"/"+cmd.Topic, now) {
			continue
		}
		d.Advisories = append(d.Advisories, Advisory{
			DeviceID: deviceID,
			Command:  cmd,
			Message:  fmt.Sprintf("Device %s: %s, set %s to %s", deviceID, cmd.Reason, cmd.Topic, cmd.Value),
		})
	}
	return d
}

// Reset forgets throttle state for a device.
func (c *Controller) Reset(deviceID string) {
	c.commands.Reset(deviceID)
	c.advisory.Reset(deviceID + "/")
}
