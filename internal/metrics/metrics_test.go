package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Message("environment")
	m.Message("environment")
	m.Alert("critical", true)
	m.Alert("critical", false)
	m.Actuator("ac_power", nil)
	m.Actuator("ac_power", errors.New("down"))
	m.Blocked("dev-1", 2)
	m.Collision()

	body := scrape(t, m)
	assert.Contains(t, body, `fleet_messages_total{route="environment"} 2`)
	assert.Contains(t, body, `fleet_alerts_total{level="critical"} 1`)
	assert.Contains(t, body, `fleet_alerts_suppressed_total{level="critical"} 1`)
	assert.Contains(t, body, `fleet_actuator_commands_total{result="error",topic="ac_power"} 1`)
	assert.Contains(t, body, `fleet_robots_blocked{device="dev-1"} 2`)
	assert.Contains(t, body, "fleet_collisions_total 1")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Message("x")
		m.Unrecognized()
		m.Alert("info", true)
		m.Collision()
		m.Transition("ASSIGNED")
		m.Actuator("t", nil)
		m.QueueDrop()
		m.StaleDiscard()
		m.Blocked("d", 1)
	})
}
