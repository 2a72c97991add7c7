// Package thresholds grades metrics against operator thresholds and derives
// the alerts those grades imply.
package thresholds

import (
	"fmt"

	"fleet-service/internal/models"
)

// Grade applies the band rule: critical at or above the critical bound,
// warning outside [min,max], good otherwise.
func Grade(v float64, b models.MetricBounds) models.Severity {
	switch {
	case v >= b.Critical:
		return models.SeverityCritical
	case v > b.Max || v < b.Min:
		return models.SeverityWarning
	default:
		return models.SeverityGood
	}
}

// GradeRange grades a metric that has no critical bound.
func GradeRange(v float64, b models.RangeBounds) models.Severity {
	if v > b.Max || v < b.Min {
		return models.SeverityWarning
	}
	return models.SeverityGood
}

// GradeBattery grades charge level: critical at or below the critical bound,
// warning at or below low.
func GradeBattery(v float64, b models.BatteryBounds) models.Severity {
	switch {
	case v <= b.Critical:
		return models.SeverityCritical
	case v <= b.Low:
		return models.SeverityWarning
	default:
		return models.SeverityGood
	}
}

// EnvironmentSeverity grades every present metric of a reading. Absent
// metrics grade as good.
func EnvironmentSeverity(r models.EnvironmentReading, th models.Thresholds) models.EnvironmentSeverity {
	sev := models.EnvironmentSeverity{
		Temperature: models.SeverityGood,
		Humidity:    models.SeverityGood,
		Pressure:    models.SeverityGood,
	}
	if r.AmbientTemp != nil {
		sev.Temperature = Grade(*r.AmbientTemp, th.Temperature)
	}
	if r.AmbientHumidity != nil {
		sev.Humidity = Grade(*r.AmbientHumidity, th.Humidity)
	}
	if r.Pressure != nil {
		sev.Pressure = GradeRange(*r.Pressure, th.Pressure)
	}
	return sev
}

func RobotSeverity(r models.Robot, th models.Thresholds) models.RobotSeverity {
	sev := models.RobotSeverity{
		Battery:     models.SeverityGood,
		Temperature: models.SeverityGood,
	}
	if r.Status.Battery != nil {
		sev.Battery = GradeBattery(*r.Status.Battery, th.Battery)
	}
	if r.Environment.Temp != nil {
		sev.Temperature = Grade(*r.Environment.Temp, th.Temperature)
	}
	return sev
}

// Candidate is an alert implied by a reading, before deduplication.
type Candidate struct {
	Level   models.AlertLevel
	RobotID string
	Message string
}

func bandAlert(subject, metric, unit string, v float64, b models.MetricBounds) (Candidate, bool) {
	switch {
	case v >= b.Critical:
		return Candidate{
			Level:   models.AlertCritical,
			Message: fmt.Sprintf("%s: critical %s %.1f%s (critical threshold %.1f%s)", subject, metric, v, unit, b.Critical, unit),
		}, true
	case v > b.Max:
		return Candidate{
			Level:   models.AlertWarning,
			Message: fmt.Sprintf("%s: %s %.1f%s above maximum %.1f%s", subject, metric, v, unit, b.Max, unit),
		}, true
	case v < b.Min:
		return Candidate{
			Level:   models.AlertWarning,
			Message: fmt.Sprintf("%s: %s %.1f%s below minimum %.1f%s", subject, metric, v, unit, b.Min, unit),
		}, true
	}
	return Candidate{}, false
}

// EnvironmentAlerts lists alerts implied by a device reading.
func EnvironmentAlerts(deviceID string, r models.EnvironmentReading, th models.Thresholds) []Candidate {
	subject := "Device " + deviceID
	var out []Candidate
	if r.AmbientTemp != nil {
		if c, ok := bandAlert(subject, "temperature", "°C", *r.AmbientTemp, th.Temperature); ok {
			out = append(out, c)
		}
	}
	if r.AmbientHumidity != nil {
		if c, ok := bandAlert(subject, "humidity", "%", *r.AmbientHumidity, th.Humidity); ok {
			out = append(out, c)
		}
	}
	if r.Pressure != nil {
		p := *r.Pressure
		switch {
		case p > th.Pressure.Max:
			out = append(out, Candidate{
				Level:   models.AlertWarning,
				Message: fmt.Sprintf("%s: pressure %.1f hPa above maximum %.1f hPa", subject, p, th.Pressure.Max),
			})
		case p < th.Pressure.Min:
			out = append(out, Candidate{
				Level:   models.AlertWarning,
				Message: fmt.Sprintf("%s: pressure %.1f hPa below minimum %.1f hPa", subject, p, th.Pressure.Min),
			})
		}
	}
	return out
}

// BatteryAlert returns the alert implied by a robot's charge level.
func BatteryAlert(robotID string, battery float64, th models.Thresholds) (Candidate, bool) {
	switch GradeBattery(battery, th.Battery) {
	case models.SeverityCritical:
		return Candidate{
			Level:   models.AlertCritical,
			RobotID: robotID,
			Message: fmt.Sprintf("Robot %s: battery critical at %.0f%% (critical threshold %.0f%%)", robotID, battery, th.Battery.Critical),
		}, true
	case models.SeverityWarning:
		return Candidate{
			Level:   models.AlertWarning,
			RobotID: robotID,
			Message: fmt.Sprintf("Robot %s: battery low at %.0f%% (low threshold %.0f%%)", robotID, battery, th.Battery.Low),
		}, true
	}
	return Candidate{}, false
}

// RobotTemperatureAlert returns the alert implied by a robot's temperature.
func RobotTemperatureAlert(robotID string, temp float64, th models.Thresholds) (Candidate, bool) {
	c, ok := bandAlert("Robot "+robotID, "temperature", "°C", temp, th.Temperature)
	c.RobotID = robotID
	return c, ok
}
