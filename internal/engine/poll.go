package engine

import (
	"context"
	"time"

	"fleet-service/internal/actuator"
	"fleet-service/internal/logging"
	"fleet-service/internal/telemetry"
)

// applyPoll merges a polled state document. Environment and device fields
// always apply; a robot entry applies only when its reported time is newer
// than the robot's last live update.
func (e *Engine) applyPoll(p PollResult) {
	if p.Details.Data == nil {
		return
	}
	f := telemetry.Fields(p.Details.Data)
	at := p.FetchedAt
	if at.IsZero() {
		at = e.now()
	}

	if f.Has("temperature", "temp", "humidity", "pressure", "ambient_temp", "ambient_humidity") {
		e.handleEnvironment(p.DeviceID, f, at)
	}

	list, _ := f["robots"].([]any)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rf := telemetry.Fields(m)
		id, ok := rf.String("id", "robot_id", "robotId")
		if !ok {
			continue
		}
		reported, hasTime := rf.Timestamp("timestamp", "updated_at", "updatedAt", "last_update", "lastUpdate")
		cur, err := e.store.Robot(p.DeviceID, id)
		if err == nil && !cur.LastUpdate.IsZero() && (!hasTime || !reported.After(cur.LastUpdate)) {
			e.metrics.StaleDiscard()
			e.logger.Device(p.DeviceID, id).Debugf("Discarding stale poll data (reported %s, live %s)", reported, cur.LastUpdate)
			continue
		}
		if !hasTime {
			reported = at
		}
		for _, re := range telemetry.RobotEvents(p.DeviceID, id, rf) {
			e.handleRobot(re, reported)
		}
	}

	e.handleDeviceStatus(p.DeviceID, map[string]any(f), at, len(list) > 0)
}

// StateSource fetches device state documents.
type StateSource interface {
	GetStateDetails(ctx context.Context, deviceID string) (actuator.StateDetails, error)
}

// Poller fetches the state of every device once at start and then on a
// fixed interval, posting the results to the engine.
type Poller struct {
	source   StateSource
	engine   *Engine
	devices  func() []string
	interval time.Duration
	logger   *logging.Logger
}

func NewPoller(source StateSource, e *Engine, devices func() []string, interval time.Duration, logger *logging.Logger) *Poller {
	return &Poller{source: source, engine: e, devices: devices, interval: interval, logger: logger}
}

func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Infof("Poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every device. Errors are logged and the device is
// skipped until the next cycle.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, id := range p.devices() {
		details, err := p.source.GetStateDetails(ctx, id)
		if err != nil {
			p.logger.Warnf("Failed to poll state for device %s: %v", id, err)
			continue
		}
		p.engine.Submit(PollResult{DeviceID: id, Details: details, FetchedAt: time.Now()})
	}
}
