package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-service/internal/actuator"
	"fleet-service/internal/engine"
	"fleet-service/internal/models"
	"fleet-service/internal/store"
	"fleet-service/internal/telemetry"
)

// DefaultRemoteRange is used when a remote history request has no from.
const DefaultRemoteRange = 24 * time.Hour

type Handler struct {
	deps Deps
	now  func() time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, now: time.Now}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "devices": len(h.deps.Store.DeviceIDs())})
}

func (h *Handler) ListDevices(c *gin.Context) {
	ids := h.deps.Store.DeviceIDs()
	devices := make([]models.Device, 0, len(ids))
	for _, id := range ids {
		d, err := h.deps.Store.Device(id)
		if err != nil {
			continue
		}
		devices = append(devices, d)
	}
	c.JSON(http.StatusOK, devices)
}

func (h *Handler) GetDevice(c *gin.Context) {
	d, err := h.deps.Store.Device(c.Param("id"))
	if err != nil {
		h.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": d, "revision": h.deps.Store.Revision(d.ID)})
}

func (h *Handler) GetRobot(c *gin.Context) {
	r, err := h.deps.Store.Robot(c.Param("id"), c.Param("robotId"))
	if err != nil {
		h.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// AssignTask accepts the same task document a telemetry task message
// carries and hands it to the engine.
func (h *Handler) AssignTask(c *gin.Context) {
	deviceID, robotID := c.Param("id"), c.Param("robotId")
	if _, err := h.deps.Store.Device(deviceID); err != nil {
		h.notFound(c, err)
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		h.deps.Logger.Errorf("Invalid task body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	task, ok := telemetry.DecodeTask(body)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id is required"})
		return
	}
	if !h.deps.Engine.Submit(engine.AssignTask{DeviceID: deviceID, RobotID: robotID, Task: task}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Engine busy, retry later"})
		return
	}
	h.deps.Logger.Device(deviceID, robotID).Infof("Task %s submitted by operator", task.ID)
	c.JSON(http.StatusAccepted, task)
}

func (h *Handler) EnvironmentHistory(c *gin.Context) {
	deviceID := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "samples": h.deps.History.Environment(deviceID)})
}

func (h *Handler) RobotHistory(c *gin.Context) {
	deviceID, robotID, metric := c.Param("id"), c.Param("robotId"), c.Param("metric")
	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"robot_id":  robotID,
		"metric":    metric,
		"samples":   h.deps.History.Robot(deviceID, robotID, metric),
	})
}

// ResetDevice clears the transient caches when the operator switches away
// from a device.
func (h *Handler) ResetDevice(c *gin.Context) {
	deviceID := c.Param("id")
	if !h.deps.Engine.Submit(engine.ResetDevice{DeviceID: deviceID}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Engine busy, retry later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Reset queued"})
}

func (h *Handler) TaskHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Tasks.Device(c.Param("id")))
}

func (h *Handler) RemoteHistory(c *gin.Context) {
	if h.deps.Remote == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "State API not configured"})
		return
	}
	deviceID, topic := c.Param("id"), c.Param("topic")

	now := h.now()
	rng := actuator.Range{From: now.Add(-DefaultRemoteRange), To: now}
	for key, dst := range map[string]*time.Time{"from": &rng.From, "to": &rng.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key + " timestamp"})
			return
		}
		*dst = t
	}
	if !rng.From.Before(rng.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	samples, err := h.deps.Remote.GetTopicStreamData(c.Request.Context(), deviceID, topic, rng)
	if err != nil {
		h.deps.Logger.Device(deviceID, "").Errorf("Remote history for %s failed: %v", topic, err)
		status := http.StatusBadGateway
		if errors.Is(err, actuator.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "topic": topic, "samples": samples})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": h.deps.Alerts.List(), "unread": h.deps.Alerts.Unread()})
}

func (h *Handler) MarkAlertRead(c *gin.Context) {
	id := c.Param("id")
	if !h.deps.Alerts.MarkRead(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": h.deps.Alerts.Unread()})
}

func (h *Handler) MarkAllAlertsRead(c *gin.Context) {
	h.deps.Alerts.MarkAllRead()
	c.JSON(http.StatusOK, gin.H{"unread": 0})
}

func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Engine.Settings())
}

// UpdateSettings replaces thresholds and mode wholesale.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var s models.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		h.deps.Logger.Errorf("Invalid settings body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if s.SystemMode != models.ModeAutomatic && s.SystemMode != models.ModeManual {
		c.JSON(http.StatusBadRequest, gin.H{"error": "systemMode must be AUTOMATIC or MANUAL"})
		return
	}
	if h.deps.Settings != nil {
		if err := h.deps.Settings.Save(c.Request.Context(), s); err != nil {
			h.deps.Logger.Errorf("Save settings failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
			return
		}
	}
	h.deps.Engine.SetSettings(s)
	c.JSON(http.StatusOK, s)
}

// StreamDevice upgrades to a websocket that starts with the device
// snapshot and then carries every event for the device.
func (h *Handler) StreamDevice(c *gin.Context) {
	d, err := h.deps.Store.Device(c.Param("id"))
	if err != nil {
		h.notFound(c, err)
		return
	}
	snapshot := gin.H{"kind": "snapshot", "device": d, "revision": h.deps.Store.Revision(d.ID)}
	if err := h.deps.Streams.Serve(c.Writer, c.Request, d.ID, snapshot); err != nil {
		h.deps.Logger.Device(d.ID, "").Warnf("Stream ended: %v", err)
	}
}

func (h *Handler) notFound(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
	case errors.Is(err, store.ErrRobotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Robot not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
