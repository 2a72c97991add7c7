package telemetry

import (
	"strconv"
	"strings"
	"time"

	"fleet-service/internal/models"
)

// Fields is a decoded JSON object.
type Fields map[string]any

// AsFields returns the payload as an object, unwrapping one level of a
// nested "payload" key.
func AsFields(payload any) (Fields, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	if inner, ok := m["payload"].(map[string]any); ok {
		return Fields(inner), true
	}
	return Fields(m), true
}

// Has reports whether any of keys is present.
func (f Fields) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := f[k]; ok {
			return true
		}
	}
	return false
}

// Number returns the first of keys that holds a number or numeric string.
func (f Fields) Number(keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			if n, ok := ToNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// String returns the first of keys that holds a non-empty string.
func (f Fields) String(keys ...string) (string, bool) {
	for _, k := range keys {
		switch v := f[k].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}

func (f Fields) Bool(keys ...string) (bool, bool) {
	for _, k := range keys {
		switch v := f[k].(type) {
		case bool:
			return v, true
		case float64:
			return v != 0, true
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

func (f Fields) Object(keys ...string) (Fields, bool) {
	for _, k := range keys {
		if m, ok := f[k].(map[string]any); ok {
			return Fields(m), true
		}
	}
	return nil, false
}

// ToNumber accepts float64 values and numeric strings.
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	}
	return 0, false
}

// Scalar reads a metric that may arrive bare, as a raw string, or inside
// an object under one of keys.
func Scalar(payload any, keys ...string) (float64, bool) {
	if n, ok := ToNumber(payload); ok {
		return n, true
	}
	if f, ok := AsFields(payload); ok {
		return f.Number(append(keys, "value")...)
	}
	return 0, false
}

// Location reads lat/lng either at the top level or under "location"/"position".
func (f Fields) Location() (models.Location, bool) {
	src := f
	if nested, ok := f.Object("location", "position", "pos"); ok {
		src = nested
	}
	lat, okLat := src.Number("lat", "latitude")
	lng, okLng := src.Number("lng", "lon", "longitude")
	if !okLat || !okLng {
		return models.Location{}, false
	}
	z, _ := src.Number("z", "alt", "floor")
	return models.Location{Lat: lat, Lng: lng, Z: z}, true
}

// Timestamp reads a reported time in RFC3339 or epoch seconds/milliseconds.
func (f Fields) Timestamp(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch v := f[k].(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return ts, true
			}
		case float64:
			if v > 1e12 {
				return time.UnixMilli(int64(v)), true
			}
			if v > 0 {
				return time.Unix(int64(v), 0), true
			}
		}
	}
	return time.Time{}, false
}

func endpoint(f Fields, prefix string) models.Endpoint {
	var e models.Endpoint
	if obj, ok := f.Object(prefix); ok {
		e.ID, _ = obj.String("id", "name")
		e.Room, _ = obj.String("room", "room_name", "roomName")
		if loc, ok := obj.Location(); ok {
			e.Location = &loc
		}
		return e
	}
	e.ID, _ = f.String(prefix, prefix+"_id", prefix+"Id")
	e.Room, _ = f.String(prefix+"_room", prefix+"Room")
	if obj, ok := f.Object(prefix+"_location", prefix+"Location"); ok {
		if loc, ok := obj.Location(); ok {
			e.Location = &loc
		}
	}
	return e
}

// DecodeTask reads a task object. The payload may be the task itself or
// carry it under "task", either as an object or as a bare task id. A
// present but empty or null "task" means no task.
func DecodeTask(payload any) (models.Task, bool) {
	f, ok := AsFields(payload)
	if !ok {
		return models.Task{}, false
	}
	if raw, nested := f["task"]; nested {
		switch v := raw.(type) {
		case map[string]any:
			f = Fields(v)
		case string:
			if v == "" {
				return models.Task{}, false
			}
			f = Fields{"task_id": v}
		default:
			return models.Task{}, false
		}
	}
	id, ok := f.String("task_id", "taskId", "id")
	if !ok {
		return models.Task{}, false
	}
	t := models.Task{
		ID:          id,
		Type:        models.TaskTypeDeliver,
		Source:      endpoint(f, "source"),
		Destination: endpoint(f, "destination"),
	}
	if typ, ok := f.String("type", "task_type"); ok {
		t.Type = typ
	}
	if phase, ok := f.String("phase"); ok {
		p := models.Phase(strings.ToUpper(phase))
		if p.Valid() {
			t.Phase = p
		}
	}
	if status, ok := f.String("status"); ok {
		t.Status = strings.ToLower(status)
	}
	if p, ok := f.Number("progress"); ok {
		t.Progress = p
	}
	if ts, ok := f.Timestamp("assigned_at", "assignedAt"); ok {
		t.Timestamps.AssignedAt = &ts
	}
	return t, true
}
