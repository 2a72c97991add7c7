package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/events"
)

func TestDecodeUsesKeyAndTopicHeader(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	msg, ok := Decode(kafka.Message{
		Key:     []byte("dev-1"),
		Value:   []byte(`{"level": 15}`),
		Time:    at,
		Headers: []kafka.Header{{Key: TopicHeader, Value: []byte("robots/R-001/battery")}},
	})
	require.True(t, ok)
	assert.Equal(t, "dev-1", msg.DeviceID)
	assert.Equal(t, "robots/R-001/battery", msg.Topic)
	assert.Equal(t, at, msg.ReceivedAt)
	assert.Equal(t, map[string]any{"level": 15.0}, msg.Payload)
}

func TestDecodeWithoutHeaderLeavesTopicEmpty(t *testing.T) {
	msg, ok := Decode(kafka.Message{Key: []byte("dev-1"), Value: []byte(`{"temperature": 22}`)})
	require.True(t, ok)
	assert.Empty(t, msg.Topic)
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestDecodeRequiresKey(t *testing.T) {
	_, ok := Decode(kafka.Message{Value: []byte(`{}`)})
	assert.False(t, ok)
}

func TestEncodeFiltersKinds(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	_, ok, err := Encode(events.Event{Kind: events.KindRobotUpdate, DeviceID: "dev-1", At: at})
	require.NoError(t, err)
	assert.False(t, ok)

	msg, ok, err := Encode(events.Event{Kind: events.KindCollision, DeviceID: "dev-1", RobotID: "R-001", At: at})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("dev-1"), msg.Key)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("collision"), msg.Headers[0].Value)

	var decoded events.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "R-001", decoded.RobotID)
}
