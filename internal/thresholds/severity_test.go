package thresholds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/models"
)

func TestGrade(t *testing.T) {
	b := models.MetricBounds{Min: 18, Max: 28, Critical: 32}
	cases := []struct {
		v    float64
		want models.Severity
	}{
		{22, models.SeverityGood},
		{28, models.SeverityGood},
		{28.5, models.SeverityWarning},
		{17, models.SeverityWarning},
		{32, models.SeverityCritical},
		{40, models.SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Grade(tc.v, b), "value %v", tc.v)
	}
}

func TestGradeBattery(t *testing.T) {
	th := models.DefaultThresholds()
	for battery := 0.0; battery <= 100; battery++ {
		got := GradeBattery(battery, th.Battery)
		switch {
		case battery <= th.Battery.Critical:
			assert.Equal(t, models.SeverityCritical, got, "battery %v", battery)
		case battery <= th.Battery.Low:
			assert.Equal(t, models.SeverityWarning, got, "battery %v", battery)
		default:
			assert.Equal(t, models.SeverityGood, got, "battery %v", battery)
		}
	}
}

func TestCriticalTemperatureAlert(t *testing.T) {
	th := models.DefaultThresholds()
	th.Temperature = models.MetricBounds{Min: 18, Max: 28, Critical: 32}
	reading := models.EnvironmentReading{AmbientTemp: models.Float(33)}

	sev := EnvironmentSeverity(reading, th)
	assert.Equal(t, models.SeverityCritical, sev.Temperature)
	assert.Equal(t, models.SeverityGood, sev.Humidity)

	alerts := EnvironmentAlerts("dev-1", reading, th)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCritical, alerts[0].Level)
	assert.Contains(t, alerts[0].Message, "33")
	assert.Contains(t, alerts[0].Message, "32")
}

func TestWarningNamesViolatedBound(t *testing.T) {
	th := models.DefaultThresholds()
	reading := models.EnvironmentReading{
		AmbientTemp:     models.Float(15),
		AmbientHumidity: models.Float(65),
		Pressure:        models.Float(1060),
	}
	alerts := EnvironmentAlerts("dev-1", reading, th)
	require.Len(t, alerts, 3)
	assert.Contains(t, alerts[0].Message, "below minimum 18.0")
	assert.Contains(t, alerts[1].Message, "above maximum 60.0")
	assert.Contains(t, alerts[2].Message, "above maximum 1050.0")
	for _, a := range alerts {
		assert.Equal(t, models.AlertWarning, a.Level)
	}
}

func TestBatteryAlert(t *testing.T) {
	th := models.DefaultThresholds()

	c, ok := BatteryAlert("R-001", 8, th)
	require.True(t, ok)
	assert.Equal(t, models.AlertCritical, c.Level)
	assert.Equal(t, "R-001", c.RobotID)

	c, ok = BatteryAlert("R-001", 15, th)
	require.True(t, ok)
	assert.Equal(t, models.AlertWarning, c.Level)

	_, ok = BatteryAlert("R-001", 80, th)
	assert.False(t, ok)
}
