package telemetry

import (
	"regexp"
	"strings"
)

// Metric names a per-robot handler.
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricBattery     Metric = "battery"
	MetricLocation    Metric = "location"
	MetricStatus      Metric = "status"
	MetricTask        Metric = "task"
)

// Event is a classified message. Exactly one of the concrete types below.
type Event interface {
	event()
}

// EnvironmentEvent carries device ambient readings.
type EnvironmentEvent struct {
	DeviceID string
	Fields   Fields
}

// RobotEvent routes a payload to one per-metric robot handler.
type RobotEvent struct {
	DeviceID string
	RobotID  string
	Metric   Metric
	Payload  any
}

// DiscoveryEvent lists robots reported by a device.
type DiscoveryEvent struct {
	DeviceID string
	Robots   []Fields
}

// DeviceStatusEvent is attached to every message so status, health and
// alert fields are read whatever else the payload carries.
type DeviceStatusEvent struct {
	DeviceID string
	Payload  any
}

// Unrecognized records a message no route matched.
type Unrecognized struct {
	DeviceID string
	Topic    string
	Reason   string
}

func (EnvironmentEvent) event()  {}
func (RobotEvent) event()        {}
func (DiscoveryEvent) event()    {}
func (DeviceStatusEvent) event() {}
func (Unrecognized) event()      {}

var robotTopic = regexp.MustCompile(`(?:^|/)robots/([^/]+)(?:/([^/]+))?/?$`)

var environmentSuffixes = map[string]bool{
	"temperature": true,
	"humidity":    true,
	"pressure":    true,
	"environment": true,
	"env":         true,
}

var metricAliases = map[string]Metric{
	"temperature": MetricTemperature,
	"temp":        MetricTemperature,
	"battery":     MetricBattery,
	"location":    MetricLocation,
	"position":    MetricLocation,
	"status":      MetricStatus,
	"state":       MetricStatus,
	"task":        MetricTask,
}

// Classify routes msg. The result always ends with a DeviceStatusEvent;
// when nothing else matched it also holds an Unrecognized event.
func Classify(msg Message) []Event {
	var events []Event
	if msg.Topic != "" {
		events = classifyTopic(msg)
	} else {
		events = classifyShape(msg)
	}
	return append(events, DeviceStatusEvent{DeviceID: msg.DeviceID, Payload: msg.Payload})
}

func classifyTopic(msg Message) []Event {
	topic := strings.Trim(msg.Topic, "/")
	if m := robotTopic.FindStringSubmatch(topic); m != nil {
		robotID, suffix := m[1], strings.ToLower(m[2])
		if suffix == "" {
			return inferRobotEvents(msg.DeviceID, robotID, msg.Payload, msg.Topic)
		}
		metric, ok := metricAliases[suffix]
		if !ok {
			return []Event{Unrecognized{DeviceID: msg.DeviceID, Topic: msg.Topic, Reason: "unknown robot metric " + suffix}}
		}
		return []Event{RobotEvent{DeviceID: msg.DeviceID, RobotID: robotID, Metric: metric, Payload: msg.Payload}}
	}

	last := topic
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		last = topic[i+1:]
	}
	if environmentSuffixes[strings.ToLower(last)] {
		fields, ok := AsFields(msg.Payload)
		if !ok {
			// A bare value on a metric topic: name it after the topic.
			n, isNum := ToNumber(msg.Payload)
			if !isNum {
				return []Event{Unrecognized{DeviceID: msg.DeviceID, Topic: msg.Topic, Reason: "non-numeric environment payload"}}
			}
			fields = Fields{strings.ToLower(last): n}
		}
		return []Event{EnvironmentEvent{DeviceID: msg.DeviceID, Fields: fields}}
	}
	return []Event{Unrecognized{DeviceID: msg.DeviceID, Topic: msg.Topic, Reason: "no route for topic"}}
}

// inferRobotEvents picks handlers by payload keys. Status goes first so an
// operator-visible state change is applied before sensor processing.
func inferRobotEvents(deviceID, robotID string, payload any, topic string) []Event {
	f, ok := AsFields(payload)
	if !ok {
		return []Event{Unrecognized{DeviceID: deviceID, Topic: topic, Reason: "robot payload is not an object"}}
	}
	var events []Event
	add := func(m Metric) {
		events = append(events, RobotEvent{DeviceID: deviceID, RobotID: robotID, Metric: m, Payload: map[string]any(f)})
	}
	if f.Has("status", "state") {
		add(MetricStatus)
	}
	if f.Has("temperature", "temp") {
		add(MetricTemperature)
	}
	if f.Has("battery", "level") {
		add(MetricBattery)
	}
	if f.Has("lat", "lng", "location", "position") {
		add(MetricLocation)
	}
	if f["task"] != nil {
		add(MetricTask)
	}
	if len(events) == 0 {
		return []Event{Unrecognized{DeviceID: deviceID, Topic: topic, Reason: "no robot fields"}}
	}
	return events
}

// classifyShape handles messages without a topic.
func classifyShape(msg Message) []Event {
	f, ok := AsFields(msg.Payload)
	if !ok {
		return []Event{Unrecognized{DeviceID: msg.DeviceID, Reason: "payload is not an object"}}
	}

	if list, ok := f["robots"].([]any); ok {
		var robots []Fields
		for _, item := range list {
			if rf, ok := item.(map[string]any); ok {
				robots = append(robots, Fields(rf))
			}
		}
		return []Event{DiscoveryEvent{DeviceID: msg.DeviceID, Robots: robots}}
	}

	if robotID, ok := f.String("robotId", "robot_id"); ok {
		return inferRobotEvents(msg.DeviceID, robotID, map[string]any(f), "")
	}

	if f.Has("temperature", "temp", "humidity", "pressure", "ambient_temp", "ambient_humidity") {
		return []Event{EnvironmentEvent{DeviceID: msg.DeviceID, Fields: f}}
	}
	return []Event{Unrecognized{DeviceID: msg.DeviceID, Reason: "unknown payload shape"}}
}

// RobotEvents infers the per-metric events carried by one robot object,
// as listed in a discovery or poll payload.
func RobotEvents(deviceID, robotID string, f Fields) []RobotEvent {
	var out []RobotEvent
	for _, ev := range inferRobotEvents(deviceID, robotID, map[string]any(f), "") {
		if re, ok := ev.(RobotEvent); ok {
			out = append(out, re)
		}
	}
	return out
}
