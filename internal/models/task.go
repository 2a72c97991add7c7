package models

import "time"

// Phase is a stage of the delivery lifecycle.
type Phase string

const (
	PhaseAssigned             Phase = "ASSIGNED"
	PhaseEnRouteToSource      Phase = "EN_ROUTE_TO_SOURCE"
	PhasePickingUp            Phase = "PICKING_UP"
	PhaseEnRouteToDestination Phase = "EN_ROUTE_TO_DESTINATION"
	PhaseDelivering           Phase = "DELIVERING"
	PhaseCompleted            Phase = "COMPLETED"
	PhaseFailed               Phase = "FAILED"
)

var phaseRank = map[Phase]int{
	PhaseAssigned:             1,
	PhaseEnRouteToSource:      2,
	PhasePickingUp:            3,
	PhaseEnRouteToDestination: 4,
	PhaseDelivering:           5,
	PhaseCompleted:            6,
}

// Rank orders phases along the happy path. Unknown phases and FAILED rank 0.
func (p Phase) Rank() int {
	return phaseRank[p]
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhaseFailed || phaseRank[p] > 0
}

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

const TaskTypeDeliver = "Deliver"

// Legacy task status values, used by payloads that carry no phase.
const (
	TaskStatusActive    = "active"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

const PauseReasonCollision = "collision"

// Endpoint is a task source or destination.
type Endpoint struct {
	ID       string    `json:"id,omitempty"`
	Room     string    `json:"room,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Empty reports whether nothing identifies the endpoint.
func (e Endpoint) Empty() bool {
	return e.ID == "" && e.Room == "" && e.Location == nil
}

type PhaseTimestamps struct {
	AssignedAt           *time.Time `json:"assigned_at,omitempty"`
	SourceArrivedAt      *time.Time `json:"source_arrived_at,omitempty"`
	PickedUpAt           *time.Time `json:"picked_up_at,omitempty"`
	DestinationArrivedAt *time.Time `json:"destination_arrived_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	FailedAt             *time.Time `json:"failed_at,omitempty"`
}

// Task is a delivery job assigned to one robot.
type Task struct {
	ID           string          `json:"task_id"`
	Type         string          `json:"type"`
	Phase        Phase           `json:"phase,omitempty"`
	Status       string          `json:"status,omitempty"`
	Source       Endpoint        `json:"source"`
	Destination  Endpoint        `json:"destination"`
	Progress     float64         `json:"progress"`
	Paused       bool            `json:"paused"`
	PauseReason  string          `json:"pause_reason,omitempty"`
	Timestamps   PhaseTimestamps `json:"timestamps"`
	AssignedFrom *Location       `json:"assigned_from,omitempty"`
	LegStart     *Location       `json:"leg_start,omitempty"`
	FailedPhase  Phase           `json:"failed_phase,omitempty"`
}

// Legacy reports whether the task predates phases and completes on arrival only.
func (t Task) Legacy() bool {
	return t.Phase == ""
}

// Active reports whether the task still needs progression.
func (t Task) Active() bool {
	if t.Legacy() {
		return t.Status == TaskStatusActive
	}
	return !t.Phase.Terminal()
}

// Finished reports whether the task reached COMPLETED or FAILED, or the
// legacy equivalents.
func (t Task) Finished() bool {
	if t.Legacy() {
		return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
	}
	return t.Phase.Terminal()
}

// Delivered reports whether the task completed and is in its display hold.
func (t Task) Delivered() bool {
	if t.Legacy() {
		return t.Status == TaskStatusCompleted
	}
	return t.Phase == PhaseCompleted
}

func (t Task) Clone() Task {
	out := t
	out.Source = t.Source.clone()
	out.Destination = t.Destination.clone()
	out.Timestamps = t.Timestamps.clone()
	out.AssignedFrom = cloneLocation(t.AssignedFrom)
	out.LegStart = cloneLocation(t.LegStart)
	return out
}

func (e Endpoint) clone() Endpoint {
	out := e
	out.Location = cloneLocation(e.Location)
	return out
}

func (ts PhaseTimestamps) clone() PhaseTimestamps {
	return PhaseTimestamps{
		AssignedAt:           cloneTime(ts.AssignedAt),
		SourceArrivedAt:      cloneTime(ts.SourceArrivedAt),
		PickedUpAt:           cloneTime(ts.PickedUpAt),
		DestinationArrivedAt: cloneTime(ts.DestinationArrivedAt),
		CompletedAt:          cloneTime(ts.CompletedAt),
		FailedAt:             cloneTime(ts.FailedAt),
	}
}

func cloneLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
