// Package events defines what the engine emits to the outside world and
// fans it out to every configured sink.
package events

import (
	"context"
	"time"

	"fleet-service/internal/logging"
)

// Kind names an outbound event.
type Kind string

const (
	KindAlert         Kind = "alert"
	KindCollision     Kind = "collision"
	KindTaskCompleted Kind = "task_completed"
	KindTaskFailed    Kind = "task_failed"
	KindDeviceUpdate  Kind = "device_update"
	KindRobotUpdate   Kind = "robot_update"
)

// Event is published after a state change has been committed.
type Event struct {
	Kind     Kind      `json:"kind"`
	DeviceID string    `json:"device_id"`
	RobotID  string    `json:"robot_id,omitempty"`
	Revision uint64    `json:"revision,omitempty"`
	At       time.Time `json:"at"`
	Data     any       `json:"data,omitempty"`
}

// Sink receives events. Publish must not block for long; sinks that do
// real I/O queue internally.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Fanout publishes to every sink and logs failures.
type Fanout struct {
	sinks  []Sink
	logger *logging.Logger
}

func NewFanout(logger *logging.Logger, sinks ...Sink) *Fanout {
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, e); err != nil {
			f.logger.Errorf("Failed to publish %s event for device %s: %v", e.Kind, e.DeviceID, err)
		}
	}
	return nil
}

// Recorder is an in-memory Sink for tests and debugging.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
