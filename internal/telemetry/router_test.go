package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/models"
)

func decode(topic, body string) Message {
	return Decode("dev-1", topic, []byte(body), time.Now())
}

func withoutStatus(t *testing.T, events []Event) []Event {
	t.Helper()
	require.NotEmpty(t, events)
	last, ok := events[len(events)-1].(DeviceStatusEvent)
	require.True(t, ok, "last event must be the device status fallback")
	assert.Equal(t, "dev-1", last.DeviceID)
	return events[:len(events)-1]
}

func TestEnvironmentTopicUnwrapsPayload(t *testing.T) {
	events := withoutStatus(t, Classify(decode("fleet/dev-1/environment", `{"payload":{"temperature":24.5,"humidity":40}}`)))
	require.Len(t, events, 1)
	env, ok := events[0].(EnvironmentEvent)
	require.True(t, ok)
	v, _ := env.Fields.Number("temperature")
	assert.Equal(t, 24.5, v)
}

func TestEnvironmentTopicBareValue(t *testing.T) {
	events := withoutStatus(t, Classify(decode("fleet/dev-1/humidity", `55`)))
	require.Len(t, events, 1)
	env := events[0].(EnvironmentEvent)
	v, ok := env.Fields.Number("humidity")
	require.True(t, ok)
	assert.Equal(t, 55.0, v)
}

func TestRobotMetricTopic(t *testing.T) {
	events := withoutStatus(t, Classify(decode("fleet/dev-1/robots/R-001/location", `{"lat":1,"lng":2}`)))
	require.Len(t, events, 1)
	ev := events[0].(RobotEvent)
	assert.Equal(t, "R-001", ev.RobotID)
	assert.Equal(t, MetricLocation, ev.Metric)

	events = withoutStatus(t, Classify(decode("fleet/dev-1/robots/R-001/state", `"CHARGING"`)))
	assert.Equal(t, MetricStatus, events[0].(RobotEvent).Metric)
}

func TestUnknownRobotMetricIsUnrecognized(t *testing.T) {
	events := withoutStatus(t, Classify(decode("fleet/dev-1/robots/R-001/lidar", `{}`)))
	require.Len(t, events, 1)
	_, ok := events[0].(Unrecognized)
	assert.True(t, ok)
}

func TestRobotTopicInfersStatusFirst(t *testing.T) {
	body := `{"lat":1,"lng":2,"battery":50,"temperature":30,"status":"ACTIVE","task":{"task_id":"T-1"}}`
	events := withoutStatus(t, Classify(decode("fleet/dev-1/robots/R-002", body)))
	var metrics []Metric
	for _, ev := range events {
		metrics = append(metrics, ev.(RobotEvent).Metric)
	}
	assert.Equal(t, []Metric{MetricStatus, MetricTemperature, MetricBattery, MetricLocation, MetricTask}, metrics)
}

func TestNoTopicDiscovery(t *testing.T) {
	events := withoutStatus(t, Classify(decode("", `{"robots":[{"id":"R-001","battery":80},{"id":"R-002"}]}`)))
	require.Len(t, events, 1)
	disc := events[0].(DiscoveryEvent)
	assert.Len(t, disc.Robots, 2)
}

func TestNoTopicRobotShape(t *testing.T) {
	events := withoutStatus(t, Classify(decode("", `{"robotId":"R-003","battery":12}`)))
	require.Len(t, events, 1)
	ev := events[0].(RobotEvent)
	assert.Equal(t, "R-003", ev.RobotID)
	assert.Equal(t, MetricBattery, ev.Metric)
}

func TestNoTopicBareEnvironment(t *testing.T) {
	events := withoutStatus(t, Classify(decode("", `{"temperature":21}`)))
	_, ok := events[0].(EnvironmentEvent)
	assert.True(t, ok)
}

func TestBareEnvironmentKeysNeedMissingTopic(t *testing.T) {
	events := withoutStatus(t, Classify(decode("fleet/dev-1/misc", `{"temperature":21}`)))
	_, ok := events[0].(Unrecognized)
	assert.True(t, ok)
}

func TestUnparseableBodyIsPassedThrough(t *testing.T) {
	msg := decode("fleet/dev-1/robots/R-001/battery", `87 percent`)
	assert.Equal(t, "87 percent", msg.Payload)

	msg = decode("fleet/dev-1/robots/R-001/battery", ` 87 `)
	v, ok := Scalar(msg.Payload, "battery")
	require.True(t, ok)
	assert.Equal(t, 87.0, v)
}

func TestDecodeTask(t *testing.T) {
	task, ok := DecodeTask(map[string]any{
		"task": map[string]any{
			"task_id":     "T-1",
			"phase":       "en_route_to_destination",
			"destination": map[string]any{"id": "D-1", "room": "Bay-3"},
			"source_location": map[string]any{
				"lat": 1.0, "lng": 2.0,
			},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "T-1", task.ID)
	assert.Equal(t, models.PhaseEnRouteToDestination, task.Phase)
	assert.Equal(t, "Bay-3", task.Destination.Room)
	require.NotNil(t, task.Source.Location)
	assert.Equal(t, 2.0, task.Source.Location.Lng)

	_, ok = DecodeTask(map[string]any{"phase": "ASSIGNED"})
	assert.False(t, ok)
}

func TestDecodeTaskInsideRobotObject(t *testing.T) {
	_, ok := DecodeTask(map[string]any{"id": "R-001", "status": "ACTIVE", "task": nil})
	assert.False(t, ok)

	_, ok = DecodeTask(map[string]any{"id": "R-001", "task": ""})
	assert.False(t, ok)

	_, ok = DecodeTask(map[string]any{"id": "R-001", "task": 42.0})
	assert.False(t, ok)

	task, ok := DecodeTask(map[string]any{"id": "R-002", "battery": 80.0, "task": "T-7"})
	require.True(t, ok)
	assert.Equal(t, "T-7", task.ID)
	assert.Empty(t, task.Phase)
	assert.Empty(t, task.Status)
}

func TestNullTaskIsNotATaskEvent(t *testing.T) {
	events := withoutStatus(t, Classify(decode("fleet/dev-1/robots/R-002", `{"battery":50,"task":null}`)))
	require.Len(t, events, 1)
	assert.Equal(t, MetricBattery, events[0].(RobotEvent).Metric)
}

func TestTimestampFormats(t *testing.T) {
	f := Fields{"a": "2026-01-02T03:04:05Z", "b": 1767323045000.0, "c": 1767323045.0}
	for _, k := range []string{"a", "b", "c"} {
		ts, ok := f.Timestamp(k)
		require.True(t, ok, k)
		assert.Equal(t, int64(1767323045), ts.Unix(), k)
	}
}
