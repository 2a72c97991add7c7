// Package telemetry classifies inbound stream messages into typed events.
package telemetry

import (
	"bytes"
	"encoding/json"
	"time"
)

// Message is one inbound message. Topic may be empty when the transport
// carries no topic path.
type Message struct {
	DeviceID   string
	Topic      string
	Payload    any
	ReceivedAt time.Time
}

// Decode builds a Message from a raw body. Bodies that are not JSON are
// passed through as a string so handlers can still read scalar values.
func Decode(deviceID, topic string, body []byte, at time.Time) Message {
	msg := Message{DeviceID: deviceID, Topic: topic, ReceivedAt: at}
	trimmed := bytes.TrimSpace(body)
	var v any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		msg.Payload = string(trimmed)
		return msg
	}
	msg.Payload = normalize(v)
	return msg
}

// normalize converts json.Number values to float64.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
