package autocontrol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func reading(temp, humidity float64) models.EnvironmentReading {
	return models.EnvironmentReading{AmbientTemp: models.Float(temp), AmbientHumidity: models.Float(humidity)}
}

func TestLiteralPolicyPolarity(t *testing.T) {
	th := models.DefaultThresholds()

	cold := Desired(PolicyLiteral, "dev-1", reading(15, 45), models.DeviceControlState{}, th)
	require.Len(t, cold, 1)
	assert.Equal(t, TopicACPower, cold[0].Topic)
	assert.Equal(t, models.PowerOn, cold[0].Value)

	hot := Desired(PolicyLiteral, "dev-1", reading(30, 45), models.DeviceControlState{}, th)
	require.Len(t, hot, 1)
	assert.Equal(t, models.PowerOff, hot[0].Value)
}

func TestCoolingPolicyPolarity(t *testing.T) {
	th := models.DefaultThresholds()

	hot := Desired(PolicyCooling, "dev-1", reading(30, 45), models.DeviceControlState{}, th)
	require.Len(t, hot, 1)
	assert.Equal(t, models.PowerOn, hot[0].Value)

	cold := Desired(PolicyCooling, "dev-1", reading(15, 45), models.DeviceControlState{}, th)
	require.Len(t, cold, 1)
	assert.Equal(t, models.PowerOff, cold[0].Value)
}

func TestHumidityAndActiveAlert(t *testing.T) {
	th := models.DefaultThresholds()

	humid := Desired(PolicyLiteral, "dev-1", reading(22, 70), models.DeviceControlState{}, th)
	require.Len(t, humid, 1)
	assert.Equal(t, Command{DeviceID: "dev-1", Topic: TopicAirPurifier, Value: models.PurifierActive, Reason: "humidity 70.0% above maximum 60.0%"}, humid[0])

	alerting := Desired(PolicyLiteral, "dev-1", reading(22, 20), models.DeviceControlState{ActiveAlert: true}, th)
	require.Len(t, alerting, 1)
	assert.Equal(t, models.PurifierActive, alerting[0].Value)

	dry := Desired(PolicyLiteral, "dev-1", reading(22, 20), models.DeviceControlState{}, th)
	require.Len(t, dry, 1)
	assert.Equal(t, models.PurifierInactive, dry[0].Value)
}

func TestAlreadyInStateIsSkipped(t *testing.T) {
	th := models.DefaultThresholds()
	ctl := models.DeviceControlState{ACPower: models.PowerOn, AirPurifier: models.PurifierActive}
	assert.Empty(t, Desired(PolicyLiteral, "dev-1", reading(15, 70), ctl, th))
	assert.Empty(t, Desired(PolicyLiteral, "dev-1", reading(22, 45), models.DeviceControlState{}, th))
}

func TestAutomaticModeThrottledPerDevice(t *testing.T) {
	c := NewController(PolicyLiteral, DefaultWindow)
	th := models.DefaultThresholds()
	r := reading(15, 70)

	d := c.Evaluate(models.ModeAutomatic, "dev-1", r, models.DeviceControlState{}, th, t0)
	assert.Len(t, d.Commands, 2)
	assert.Empty(t, d.Advisories)

	d = c.Evaluate(models.ModeAutomatic, "dev-1", r, models.DeviceControlState{}, th, t0.Add(30*time.Second))
	assert.Empty(t, d.Commands)

	d = c.Evaluate(models.ModeAutomatic, "dev-2", r, models.DeviceControlState{}, th, t0.Add(30*time.Second))
	assert.Len(t, d.Commands, 2)

	d = c.Evaluate(models.ModeAutomatic, "dev-1", r, models.DeviceControlState{}, th, t0.Add(61*time.Second))
	assert.Len(t, d.Commands, 2)
}

func TestManualModeEmitsAdvisoriesOnly(t *testing.T) {
	c := NewController(PolicyLiteral, DefaultWindow)
	th := models.DefaultThresholds()

	d := c.Evaluate(models.ModeManual, "dev-1", reading(15, 45), models.DeviceControlState{}, th, t0)
	assert.Empty(t, d.Commands)
	require.Len(t, d.Advisories, 1)
	assert.Equal(t, "Device dev-1: temperature 15.0°C below minimum 18.0°C, set ac_power to ON", d.Advisories[0].Message)

	d = c.Evaluate(models.ModeManual, "dev-1", reading(15, 45), models.DeviceControlState{}, th, t0.Add(time.Second))
	assert.Empty(t, d.Advisories)

	c.Reset("dev-1")
	d = c.Evaluate(models.ModeManual, "dev-1", reading(15, 45), models.DeviceControlState{}, th, t0.Add(2*time.Second))
	assert.Len(t, d.Advisories, 1)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyCooling, ParsePolicy("cooling"))
	assert.Equal(t, PolicyLiteral, ParsePolicy("literal"))
	assert.Equal(t, DefaultPolicy, ParsePolicy("bogus"))
}
