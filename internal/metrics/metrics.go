// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	messages      *prometheus.CounterVec
	unrecognized  prometheus.Counter
	alerts        *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	collisions    prometheus.Counter
	transitions   *prometheus.CounterVec
	actuator      *prometheus.CounterVec
	queueDrops    prometheus.Counter
	staleDiscards prometheus.Counter
	blocked       *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_messages_total",
			Help: "Classified telemetry events by route",
		}, []string{"route"}),
		unrecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_messages_unrecognized_total",
			Help: "Messages no route matched",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_alerts_total",
			Help: "Alerts added to the log by level",
		}, []string{"level"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_alerts_suppressed_total",
			Help: "Alerts dropped by deduplication by level",
		}, []string{"level"}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_collisions_total",
			Help: "Robots newly blocked by the collision guard",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_task_transitions_total",
			Help: "Task phase transitions by target phase",
		}, []string{"phase"}),
		actuator: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_actuator_commands_total",
			Help: "Actuator commands by topic and result",
		}, []string{"topic", "result"}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_engine_queue_drops_total",
			Help: "Commands dropped because the engine queue was full",
		}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_poll_stale_discards_total",
			Help: "Poll results older than the last live update",
		}),
		blocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_robots_blocked",
			Help: "Robots currently blocked per device",
		}, []string{"device"}),
	}
	m.registry.MustRegister(
		m.messages, m.unrecognized, m.alerts, m.suppressed, m.collisions,
		m.transitions, m.actuator, m.queueDrops, m.staleDiscards, m.blocked,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Message(route string) {
	if m != nil {
		m.messages.WithLabelValues(route).Inc()
	}
}

func (m *Metrics) Unrecognized() {
	if m != nil {
		m.unrecognized.Inc()
	}
}

func (m *Metrics) Alert(level string, accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.alerts.WithLabelValues(level).Inc()
		return
	}
	m.suppressed.WithLabelValues(level).Inc()
}

func (m *Metrics) Collision() {
	if m != nil {
		m.collisions.Inc()
	}
}

func (m *Metrics) Transition(phase string) {
	if m != nil {
		m.transitions.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) Actuator(topic string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.actuator.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) QueueDrop() {
	if m != nil {
		m.queueDrops.Inc()
	}
}

func (m *Metrics) StaleDiscard() {
	if m != nil {
		m.staleDiscards.Inc()
	}
}

func (m *Metrics) Blocked(deviceID string, n int) {
	if m != nil {
		m.blocked.WithLabelValues(deviceID).Set(float64(n))
	}
}
