package engine

import (
	"context"
	"fmt"
	"time"

	"fleet-service/internal/events"
	"fleet-service/internal/lifecycle"
	"fleet-service/internal/models"
)

const (
	taskTopic     = "task"
	recordTimeout = 2 * time.Second
)

// applyEffects carries out what the lifecycle asked for after r was
// committed.
func (e *Engine) applyEffects(r models.Robot, effects []lifecycle.Effect, now time.Time) {
	log := e.logger.Device(r.DeviceID, r.ID)
	for _, eff := range effects {
		switch eff := eff.(type) {
		case lifecycle.Schedule:
			e.scheduler.Schedule(eff.After, eff.Command)
		case lifecycle.Transition:
			if eff.From != eff.Task.Phase {
				e.metrics.Transition(string(eff.Task.Phase))
				log.Infof("Task %s: %s -> %s", eff.Task.ID, phaseName(eff.From), phaseName(eff.Task.Phase))
			}
			e.recordTask(r, eff.Task, now)
			if eff.Task.Phase != "" {
				e.history.RecordRobot(r.DeviceID, r.ID, "task", now, string(eff.Task.Phase))
			}
		case lifecycle.Recorded:
			log.Infof("Task %s arrived finished (%s), recorded only", eff.Task.ID, taskOutcome(eff.Task))
			e.recordTask(r, eff.Task, now)
		case lifecycle.Queued:
			log.Infof("Task %s queued at position %d", eff.Task.ID, eff.Position)
			e.recordTask(r, eff.Task, now)
		case lifecycle.Completed:
			e.raise(models.AlertInfo, r.DeviceID, r.ID, fmt.Sprintf("Robot %s completed task %s", r.ID, eff.Task.ID), now)
			e.publish(events.Event{Kind: events.KindTaskCompleted, DeviceID: r.DeviceID, RobotID: r.ID, At: now, Data: eff.Task})
			e.sendCommand(r.DeviceID, taskTopic, map[string]any{
				"robot_id":     r.ID,
				"task_id":      eff.Task.ID,
				"status":       models.TaskStatusCompleted,
				"completed_at": now.UTC().Format(time.RFC3339),
			})
		case lifecycle.Failed:
			msg := fmt.Sprintf("Robot %s: task %s timed out during %s", r.ID, eff.Task.ID, phaseName(eff.StalledIn))
			e.raise(models.AlertWarning, r.DeviceID, r.ID, msg, now)
			e.publish(events.Event{Kind: events.KindTaskFailed, DeviceID: r.DeviceID, RobotID: r.ID, At: now, Data: eff.Task})
		}
	}
}

func taskOutcome(t models.Task) string {
	if t.Legacy() {
		return t.Status
	}
	return string(t.Phase)
}

func phaseName(p models.Phase) string {
	if p == "" {
		return "-"
	}
	return string(p)
}

func (e *Engine) recordTask(r models.Robot, t models.Task, now time.Time) {
	if e.tasks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(e.runContext(), recordTimeout)
	defer cancel()
	if _, err := e.tasks.Record(ctx, r.DeviceID, r.ID, t, now); err != nil {
		e.logger.Device(r.DeviceID, r.ID).Errorf("Failed to record task history: %v", err)
	}
}

// raise adds an alert to the log and publishes it when accepted.
func (e *Engine) raise(level models.AlertLevel, deviceID, robotID, message string, now time.Time) {
	alert, ok := e.alerts.Emit(level, deviceID, robotID, message, now)
	e.metrics.Alert(string(level), ok)
	if !ok {
		return
	}
	e.logger.Device(deviceID, robotID).Infof("Alert [%s] %s", level, message)
	e.publish(events.Event{Kind: events.KindAlert, DeviceID: deviceID, RobotID: robotID, At: now, Data: alert})
}

func (e *Engine) publish(ev events.Event) {
	if ev.Revision == 0 {
		ev.Revision = e.store.Revision(ev.DeviceID)
	}
	_ = e.sink.Publish(e.runContext(), ev)
}

func (e *Engine) publishRobot(r models.Robot, now time.Time) {
	e.publish(events.Event{Kind: events.KindRobotUpdate, DeviceID: r.DeviceID, RobotID: r.ID, At: now, Data: r})
}

func (e *Engine) publishDevice(d models.Device, now time.Time) {
	e.publish(events.Event{Kind: events.KindDeviceUpdate, DeviceID: d.ID, At: now, Data: d})
}

// sendCommand calls the actuator off the loop. Failures are logged only;
// the next telemetry cycle re-evaluates.
func (e *Engine) sendCommand(deviceID, topic string, payload any) {
	if e.actuator == nil {
		e.logger.Debugf("No actuator configured, skipping %s command for %s", topic, deviceID)
		return
	}
	ctx := e.runContext()
	e.spawn(func() {
		_, err := e.actuator.UpdateStateDetails(ctx, deviceID, topic, payload)
		e.metrics.Actuator(topic, err)
		if err != nil {
			e.logger.Errorf("Actuator command %s for device %s failed: %v", topic, deviceID, err)
			return
		}
		e.logger.Infof("Actuator command %s sent to device %s", topic, deviceID)
	})
}
