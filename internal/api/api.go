// Package api serves the operator REST surface, metrics and live streams.
package api

import (
	"context"

	"fleet-service/internal/actuator"
	"fleet-service/internal/alerts"
	"fleet-service/internal/history"
	"fleet-service/internal/logging"
	"fleet-service/internal/metrics"
	"fleet-service/internal/models"
	"fleet-service/internal/store"
	"fleet-service/internal/websocket"
)

// Engine is the part of engine.Engine the handlers drive.
type Engine interface {
	Submit(cmd any) bool
	Settings() models.Settings
	SetSettings(s models.Settings)
}

// SettingsStore persists operator settings.
type SettingsStore interface {
	Save(ctx context.Context, s models.Settings) error
}

// RemoteHistory fetches series the local ring does not hold.
type RemoteHistory interface {
	GetTopicStreamData(ctx context.Context, deviceID, topic string, r actuator.Range) ([]actuator.Sample, error)
}

type Deps struct {
	Store    *store.Store
	History  *history.Store
	Tasks    *history.TaskLog
	Alerts   *alerts.Log
	Engine   Engine
	Settings SettingsStore
	Remote   RemoteHistory
	Streams  *websocket.Manager
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}
