package models

// Severity grades a metric against its thresholds.
type Severity string

const (
	SeverityGood     Severity = "good"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// MetricBounds is a [min,max] comfort band with a critical ceiling.
type MetricBounds struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Critical float64 `json:"critical"`
}

type BatteryBounds struct {
	Low      float64 `json:"low"`
	Critical float64 `json:"critical"`
}

type RangeBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Thresholds drive severity grading, alerting and auto-control.
type Thresholds struct {
	Temperature MetricBounds  `json:"temperature"`
	Humidity    MetricBounds  `json:"humidity"`
	Battery     BatteryBounds `json:"battery"`
	Pressure    RangeBounds   `json:"pressure"`
}

// DefaultThresholds is used when no settings have been persisted.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: MetricBounds{Min: 18, Max: 28, Critical: 32},
		Humidity:    MetricBounds{Min: 30, Max: 60, Critical: 75},
		Battery:     BatteryBounds{Low: 20, Critical: 10},
		Pressure:    RangeBounds{Min: 980, Max: 1050},
	}
}

// SystemMode selects whether auto-control issues commands or advisories.
type SystemMode string

const (
	ModeAutomatic SystemMode = "AUTOMATIC"
	ModeManual    SystemMode = "MANUAL"
)

// Settings is the persisted operator configuration.
type Settings struct {
	Thresholds Thresholds `json:"thresholds"`
	SystemMode SystemMode `json:"systemMode"`
}

func DefaultSettings() Settings {
	return Settings{Thresholds: DefaultThresholds(), SystemMode: ModeManual}
}
