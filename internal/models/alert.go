package models

import "time"

// AlertLevel is the severity class of an operator alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is an operator-facing notification held in the alert log.
type Alert struct {
	ID        string     `json:"id"`
	Level     AlertLevel `json:"level"`
	DeviceID  string     `json:"device_id"`
	RobotID   string     `json:"robot_id,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
}

// HistorySample is one timestamped value of a charted metric.
type HistorySample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}
