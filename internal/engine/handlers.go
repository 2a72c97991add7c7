package engine

import (
	"strings"
	"time"

	"fleet-service/internal/collision"
	"fleet-service/internal/events"
	"fleet-service/internal/lifecycle"
	"fleet-service/internal/models"
	"fleet-service/internal/telemetry"
	"fleet-service/internal/thresholds"
)

// Handle classifies one inbound message and runs every handler it routes to.
func (e *Engine) Handle(msg telemetry.Message) {
	at := msg.ReceivedAt
	if at.IsZero() {
		at = e.now()
	}
	evs := telemetry.Classify(msg)

	robotScoped := false
	for _, ev := range evs {
		switch ev.(type) {
		case telemetry.RobotEvent, telemetry.DiscoveryEvent:
			robotScoped = true
		}
	}
	for _, ev := range evs {
		e.dispatch(ev, at, robotScoped)
	}
}

func (e *Engine) dispatch(ev telemetry.Event, at time.Time, robotScoped bool) {
	switch ev := ev.(type) {
	case telemetry.EnvironmentEvent:
		e.metrics.Message("environment")
		e.handleEnvironment(ev.DeviceID, ev.Fields, at)
	case telemetry.RobotEvent:
		e.metrics.Message("robot_" + string(ev.Metric))
		e.handleRobot(ev, at)
	case telemetry.DiscoveryEvent:
		e.metrics.Message("discovery")
		e.handleDiscovery(ev, at)
	case telemetry.DeviceStatusEvent:
		e.handleDeviceStatus(ev.DeviceID, ev.Payload, at, robotScoped)
	case telemetry.Unrecognized:
		e.metrics.Unrecognized()
		e.logger.Debugf("Unrecognized message from %s (topic=%q): %s", ev.DeviceID, ev.Topic, ev.Reason)
	}
}

func (e *Engine) handleEnvironment(deviceID string, f telemetry.Fields, at time.Time) {
	var partial models.EnvironmentReading
	sample := map[string]any{}
	if v, ok := f.Number("temperature", "temp", "ambient_temp", "ambientTemp"); ok {
		partial.AmbientTemp = models.Float(v)
		sample["temperature"] = v
	}
	if v, ok := f.Number("humidity", "ambient_humidity", "ambientHumidity"); ok {
		partial.AmbientHumidity = models.Float(v)
		sample["humidity"] = v
	}
	if v, ok := f.Number("pressure"); ok {
		partial.Pressure = models.Float(v)
		sample["pressure"] = v
	}
	if len(sample) == 0 {
		return
	}

	settings := e.Settings()
	th := settings.Thresholds
	d := e.store.UpdateDevice(deviceID, func(d models.Device) models.Device {
		if partial.AmbientTemp != nil {
			d.Environment.AmbientTemp = partial.AmbientTemp
		}
		if partial.AmbientHumidity != nil {
			d.Environment.AmbientHumidity = partial.AmbientHumidity
		}
		if partial.Pressure != nil {
			d.Environment.Pressure = partial.Pressure
		}
		d.Environment.Severity = thresholds.EnvironmentSeverity(d.Environment, th)
		d.Environment.UpdatedAt = at
		return d
	})
	e.history.RecordEnvironment(deviceID, at, sample)

	now := e.now()
	for _, c := range thresholds.EnvironmentAlerts(deviceID, partial, th) {
		e.raise(c.Level, deviceID, c.RobotID, c.Message, now)
	}

	decision := e.control.Evaluate(settings.SystemMode, deviceID, d.Environment, d.Control, th, now)
	for _, cmd := range decision.Commands {
		e.sendCommand(cmd.DeviceID, cmd.Topic, cmd.Payload())
	}
	for _, adv := range decision.Advisories {
		e.raise(models.AlertWarning, deviceID, "", adv.Message, now)
	}
	e.publishDevice(d, now)
}

// handleDeviceStatus reads device-level status fields riding on any
// message. A plain "status" key only counts when the message is not about
// a robot.
func (e *Engine) handleDeviceStatus(deviceID string, payload any, at time.Time, robotScoped bool) {
	f, ok := telemetry.AsFields(payload)
	if !ok {
		return
	}

	statusKeys := []string{"device_status", "deviceStatus", "gateway_status"}
	if !robotScoped {
		statusKeys = append(statusKeys, "status")
	}
	status, hasStatus := f.String(statusKeys...)
	health, hasHealth := f.String("gateway_health", "gatewayHealth", "health")
	rssi, hasRSSI := f.Number("wifi_rssi", "wifiRssi", "rssi")
	alert, hasAlert := f.Bool("active_alert", "activeAlert", "alert")
	ac, hasAC := f.String("ac_power", "acPower")
	purifier, hasPurifier := f.String("air_purifier", "airPurifier")
	if !hasStatus && !hasHealth && !hasRSSI && !hasAlert && !hasAC && !hasPurifier {
		return
	}

	d := e.store.UpdateDevice(deviceID, func(d models.Device) models.Device {
		if hasStatus {
			d.Control.Status = status
		}
		if hasHealth {
			d.Control.GatewayHealth = health
		}
		if hasRSSI {
			d.Control.WifiRSSI = models.Float(rssi)
		}
		if hasAlert {
			d.Control.ActiveAlert = alert
		}
		if hasAC {
			d.Control.ACPower = strings.ToUpper(ac)
		}
		if hasPurifier {
			d.Control.AirPurifier = strings.ToUpper(purifier)
		}
		d.Control.UpdatedAt = at
		return d
	})
	e.publishDevice(d, e.now())
}

func (e *Engine) handleDiscovery(ev telemetry.DiscoveryEvent, at time.Time) {
	for _, rf := range ev.Robots {
		id, ok := rf.String("id", "robot_id", "robotId")
		if !ok {
			continue
		}
		r := e.store.UpdateRobot(ev.DeviceID, id, func(r models.Robot) models.Robot {
			if name, ok := rf.String("name"); ok {
				r.Name = name
			} else if r.Name == "" {
				r.Name = id
			}
			if typ, ok := rf.String("type"); ok {
				r.Type = typ
			}
			if zone, ok := rf.String("zone"); ok {
				r.Zone = zone
			}
			return r
		})
		e.logger.Device(ev.DeviceID, id).Debugf("Discovered robot %s", r.Name)
		for _, re := range telemetry.RobotEvents(ev.DeviceID, id, rf) {
			e.handleRobot(re, at)
		}
	}
}

func (e *Engine) handleRobot(ev telemetry.RobotEvent, at time.Time) {
	switch ev.Metric {
	case telemetry.MetricLocation:
		e.handleLocation(ev, at)
	case telemetry.MetricTask:
		task, ok := telemetry.DecodeTask(ev.Payload)
		if !ok {
			e.logger.Device(ev.DeviceID, ev.RobotID).Debugf("Task payload without task id ignored")
			return
		}
		e.assignTask(ev.DeviceID, ev.RobotID, task, at)
	case telemetry.MetricTemperature:
		e.handleRobotTemperature(ev, at)
	case telemetry.MetricBattery:
		e.handleBattery(ev, at)
	case telemetry.MetricStatus:
		e.handleRobotStatus(ev, at)
	}
}

func (e *Engine) handleRobotTemperature(ev telemetry.RobotEvent, at time.Time) {
	temp, ok := telemetry.Scalar(ev.Payload, "temperature", "temp")
	if !ok {
		return
	}
	th := e.Settings().Thresholds
	r := e.store.UpdateRobot(ev.DeviceID, ev.RobotID, func(r models.Robot) models.Robot {
		r.Environment.Temp = models.Float(temp)
		if f, ok := telemetry.AsFields(ev.Payload); ok {
			if h, ok := f.Number("humidity"); ok {
				r.Environment.Humidity = models.Float(h)
			}
		}
		r.Status.Severity = thresholds.RobotSeverity(r, th)
		r.LastUpdate = at
		return r
	})
	e.history.RecordRobot(ev.DeviceID, ev.RobotID, string(telemetry.MetricTemperature), at, temp)
	now := e.now()
	if c, ok := thresholds.RobotTemperatureAlert(ev.RobotID, temp, th); ok {
		e.raise(c.Level, ev.DeviceID, c.RobotID, c.Message, now)
	}
	e.publishRobot(r, now)
}

func (e *Engine) handleBattery(ev telemetry.RobotEvent, at time.Time) {
	level, ok := telemetry.Scalar(ev.Payload, "battery", "level")
	if !ok {
		return
	}
	th := e.Settings().Thresholds
	r := e.store.UpdateRobot(ev.DeviceID, ev.RobotID, func(r models.Robot) models.Robot {
		r.Status.Battery = models.Float(level)
		r.Status.Severity = thresholds.RobotSeverity(r, th)
		r.LastUpdate = at
		return r
	})
	e.history.RecordRobot(ev.DeviceID, ev.RobotID, string(telemetry.MetricBattery), at, level)
	now := e.now()
	if c, ok := thresholds.BatteryAlert(ev.RobotID, level, th); ok {
		e.raise(c.Level, ev.DeviceID, c.RobotID, c.Message, now)
	}
	e.publishRobot(r, now)
}

var knownStates = map[models.RobotState]bool{
	models.StateReady:    true,
	models.StateIdle:     true,
	models.StateActive:   true,
	models.StateCharging: true,
	models.StateError:    true,
	models.StateOffline:  true,
}

// handleRobotStatus applies a reported state. BLOCKED is owned by the
// collision guard: a blocked robot only records the state to return to.
func (e *Engine) handleRobotStatus(ev telemetry.RobotEvent, at time.Time) {
	var raw string
	var f telemetry.Fields
	if s, ok := ev.Payload.(string); ok {
		raw = s
	} else if fields, ok := telemetry.AsFields(ev.Payload); ok {
		f = fields
		raw, _ = f.String("status", "state")
	}
	state := models.RobotState(strings.ToUpper(strings.TrimSpace(raw)))

	r := e.store.UpdateRobot(ev.DeviceID, ev.RobotID, func(r models.Robot) models.Robot {
		if knownStates[state] {
			if r.Status.State == models.StateBlocked {
				r.Status.PreBlockState = state
			} else {
				r.Status.State = state
			}
		}
		if f != nil {
			if load, ok := f.Number("load"); ok {
				r.Status.Load = models.Float(load)
			}
		}
		r.LastUpdate = at
		return r
	})
	if raw != "" {
		e.history.RecordRobot(ev.DeviceID, ev.RobotID, string(telemetry.MetricStatus), at, raw)
	}
	e.publishRobot(r, e.now())
}

// handleLocation commits the new position, the collision decision and the
// task progression in one store write.
func (e *Engine) handleLocation(ev telemetry.RobotEvent, at time.Time) {
	f, ok := telemetry.AsFields(ev.Payload)
	if !ok {
		return
	}
	loc, ok := f.Location()
	if !ok {
		return
	}
	heading, hasHeading := f.Number("heading", "yaw", "theta")

	now := e.now()
	rooms := e.registry.RoomsFor(ev.DeviceID)
	var (
		outcome   collision.Outcome
		effects   []lifecycle.Effect
		yielding  []string
		threshold = e.timings.CollisionThreshold
	)
	r := e.store.UpdateRobotWithPeers(ev.DeviceID, ev.RobotID, func(r models.Robot, peers []models.Robot) models.Robot {
		r.Location = &loc
		if hasHeading {
			r.Heading = models.Float(heading)
		}
		r.LastUpdate = at
		r, outcome = collision.Resolve(r, peers, threshold, now)
		r, effects = e.machine.Locate(r, rooms, now)
		yielding = collision.Yielding(r.ID, peers)
		return r
	})
	e.history.RecordRobot(ev.DeviceID, ev.RobotID, string(telemetry.MetricLocation), at, loc)

	e.afterCollision(r, outcome, now)
	e.applyEffects(r, effects, now)
	e.publishRobot(r, now)

	// Robots blocked by this one may be free now that it moved.
	for _, peerID := range yielding {
		e.recheckBlocked(ev.DeviceID, peerID, now)
	}
}

func (e *Engine) recheckBlocked(deviceID, robotID string, now time.Time) {
	var outcome collision.Outcome
	r := e.store.UpdateRobotWithPeers(deviceID, robotID, func(r models.Robot, peers []models.Robot) models.Robot {
		r, outcome = collision.Resolve(r, peers, e.timings.CollisionThreshold, now)
		return r
	})
	e.afterCollision(r, outcome, now)
	if outcome.Released || outcome.Blocked {
		e.publishRobot(r, now)
	}
}

func (e *Engine) afterCollision(r models.Robot, outcome collision.Outcome, now time.Time) {
	log := e.logger.Device(r.DeviceID, r.ID)
	if outcome.Blocked {
		e.metrics.Collision()
		log.Warnf("Robot blocked by %s", strings.Join(r.Status.BlockedBy, ","))
	}
	if outcome.Released {
		log.Infof("Robot released, resuming as %s", r.Status.State)
	}
	if outcome.Blocked || outcome.Released {
		e.updateBlockedGauge(r.DeviceID)
	}

	for _, c := range e.notifier.Filter(outcome.Contacts) {
		e.raise(models.AlertWarning, c.DeviceID, c.RobotID, c.Message(), now)
		e.publish(events.Event{
			Kind:     events.KindCollision,
			DeviceID: c.DeviceID,
			RobotID:  c.RobotID,
			At:       now,
			Data: map[string]any{
				"robot_id": c.RobotID,
				"peer_id":  c.PeerID,
				"distance": c.Distance,
			},
		})
	}
}

func (e *Engine) updateBlockedGauge(deviceID string) {
	d, err := e.store.Device(deviceID)
	if err != nil {
		return
	}
	n := 0
	for _, r := range d.Robots {
		if r.Status.State == models.StateBlocked {
			n++
		}
	}
	e.metrics.Blocked(deviceID, n)
}

func (e *Engine) assignTask(deviceID, robotID string, task models.Task, at time.Time) {
	now := e.now()
	rooms := e.registry.RoomsFor(deviceID)
	var effects []lifecycle.Effect
	r := e.store.UpdateRobot(deviceID, robotID, func(r models.Robot) models.Robot {
		r, effects = e.machine.Assign(r, task, rooms, now)
		r.LastUpdate = at
		return r
	})
	e.applyEffects(r, effects, now)
	e.publishRobot(r, now)
}
