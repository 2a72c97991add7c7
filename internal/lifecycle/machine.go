// Package lifecycle is the delivery task state machine. Every function is
// pure: it takes a robot and returns the next robot plus the effects the
// caller must carry out. Timers are expressed as Schedule effects holding a
// conditional Command that re-validates the phase when it fires.
package lifecycle

import (
	"time"

	"fleet-service/internal/geo"
	"fleet-service/internal/models"
)

// Config holds the lifecycle delays and the arrival threshold in meters.
type Config struct {
	AdvanceDelay     time.Duration
	PickupDwell      time.Duration
	DeliveryDwell    time.Duration
	DisplayHold      time.Duration
	NextTaskDelay    time.Duration
	ArrivalThreshold float64
}

func DefaultConfig() Config {
	return Config{
		AdvanceDelay:     2 * time.Second,
		PickupDwell:      5 * time.Second,
		DeliveryDwell:    5 * time.Second,
		DisplayHold:      10 * time.Second,
		NextTaskDelay:    time.Second,
		ArrivalThreshold: 3,
	}
}

// Command is posted back to the event loop by a timer.
type Command interface {
	command()
}

// AdvancePhase moves the task out of From if it is still there.
type AdvancePhase struct {
	DeviceID string
	RobotID  string
	TaskID   string
	From     models.Phase
}

// ClearTask retires a completed task after its display hold.
type ClearTask struct {
	DeviceID string
	RobotID  string
	TaskID   string
}

// StartNextTask dequeues the next task if the robot is free.
type StartNextTask struct {
	DeviceID string
	RobotID  string
}

func (AdvancePhase) command()  {}
func (ClearTask) command()     {}
func (StartNextTask) command() {}

// Effect is an instruction returned to the caller.
type Effect interface {
	effect()
}

// Schedule asks the caller to deliver Command after a delay.
type Schedule struct {
	After   time.Duration
	Command Command
}

// Transition reports that the active task changed phase or was (re)started.
type Transition struct {
	From models.Phase
	Task models.Task
}

// Queued reports that a task was put on the robot's queue.
type Queued struct {
	Task     models.Task
	Position int
}

// Completed reports that a task finished delivery.
type Completed struct {
	Task models.Task
}

// Recorded reports a task that arrived already finished. It is kept in the
// task history only.
type Recorded struct {
	Task models.Task
}

// Failed reports that a task timed out.
type Failed struct {
	Task      models.Task
	StalledIn models.Phase
}

func (Schedule) effect()   {}
func (Transition) effect() {}
func (Queued) effect()     {}
func (Completed) effect()  {}
func (Failed) effect()     {}
func (Recorded) effect()   {}

// Machine applies lifecycle rules with a fixed Config.
type Machine struct {
	cfg Config
}

func NewMachine(cfg Config) Machine {
	return Machine{cfg: cfg}
}

func (m Machine) Config() Config {
	return m.cfg
}

// Assign handles a task message addressed to r. A message for the active
// task id is merged. A task that arrives already finished is only recorded.
// While the robot is busy (active task, completed task on display, or a
// non-empty queue) new tasks join the back of the queue; otherwise the task
// starts.
func (m Machine) Assign(r models.Robot, in models.Task, rooms geo.Rooms, now time.Time) (models.Robot, []Effect) {
	if in.ID == "" {
		return r, nil
	}
	if r.Task != nil && r.Task.ID == in.ID {
		return m.merge(r, in, now)
	}
	if in.Finished() {
		r.TaskQueue = withoutTask(r.TaskQueue, in.ID)
		return r, []Effect{Recorded{Task: in.Clone()}}
	}
	if busy(r) {
		for _, q := range r.TaskQueue {
			if q.ID == in.ID {
				return r, nil
			}
		}
		r.TaskQueue = append(r.TaskQueue, in.Clone())
		return r, []Effect{Queued{Task: in.Clone(), Position: len(r.TaskQueue)}}
	}
	return m.start(r, in, rooms, now)
}

func busy(r models.Robot) bool {
	if len(r.TaskQueue) > 0 {
		return true
	}
	return r.Task != nil && (r.Task.Active() || r.Task.Delivered())
}

func withoutTask(queue []models.Task, id string) []models.Task {
	out := queue[:0:0]
	for _, q := range queue {
		if q.ID != id {
			out = append(out, q)
		}
	}
	return out
}

func (m Machine) start(r models.Robot, in models.Task, rooms geo.Rooms, now time.Time) (models.Robot, []Effect) {
	t := in.Clone()
	if t.Type == "" {
		t.Type = models.TaskTypeDeliver
	}
	t.Paused = false
	t.PauseReason = ""
	t.FailedPhase = ""
	if t.Timestamps.AssignedAt == nil {
		t.Timestamps.AssignedAt = models.Time(now)
	}
	if r.Location != nil {
		loc := *r.Location
		t.AssignedFrom = &loc
	}

	r.TaskQueue = withoutTask(r.TaskQueue, t.ID)
	setState(&r, models.StateActive)

	if t.Legacy() && t.Status == models.TaskStatusActive {
		r.Task = &t
		return r, []Effect{Transition{Task: t.Clone()}}
	}

	if t.Phase == "" {
		t.Phase = models.PhaseAssigned
	}
	r.Task = &t
	effects := []Effect{Transition{Task: t.Clone()}}
	effects = append(effects, m.followUps(r, t, now)...)
	return r, effects
}

// followUps schedules the timer owned by the phase t is in.
func (m Machine) followUps(r models.Robot, t models.Task, now time.Time) []Effect {
	advance := func(after time.Duration) []Effect {
		return []Effect{Schedule{After: after, Command: AdvancePhase{
			DeviceID: r.DeviceID, RobotID: r.ID, TaskID: t.ID, From: t.Phase,
		}}}
	}
	switch t.Phase {
	case models.PhaseAssigned:
		return advance(m.cfg.AdvanceDelay)
	case models.PhasePickingUp:
		return advance(m.cfg.PickupDwell)
	case models.PhaseDelivering:
		return advance(m.cfg.DeliveryDwell)
	case models.PhaseCompleted:
		return []Effect{
			Completed{Task: t.Clone()},
			Schedule{After: m.cfg.DisplayHold, Command: ClearTask{DeviceID: r.DeviceID, RobotID: r.ID, TaskID: t.ID}},
		}
	}
	return nil
}

// enter moves t into phase to and stamps the phase timestamps.
func (m Machine) enter(r models.Robot, t *models.Task, to models.Phase, now time.Time) []Effect {
	from := t.Phase
	t.Phase = to
	switch to {
	case models.PhaseEnRouteToSource:
		t.Progress = 0
	case models.PhasePickingUp:
		stamp(&t.Timestamps.SourceArrivedAt, now)
		t.Progress = 100
	case models.PhaseEnRouteToDestination:
		if from == models.PhasePickingUp {
			stamp(&t.Timestamps.PickedUpAt, now)
			if r.Location != nil {
				loc := *r.Location
				t.LegStart = &loc
			}
		}
		t.Progress = 0
	case models.PhaseDelivering:
		stamp(&t.Timestamps.DestinationArrivedAt, now)
		t.Progress = 100
	case models.PhaseCompleted:
		stamp(&t.Timestamps.CompletedAt, now)
		t.Progress = 100
		t.Paused = false
		t.PauseReason = ""
	case models.PhaseFailed:
		stamp(&t.Timestamps.FailedAt, now)
		t.FailedPhase = from
	}
	effects := []Effect{Transition{From: from, Task: t.Clone()}}
	return append(effects, m.followUps(r, *t, now)...)
}

func stamp(slot **time.Time, now time.Time) {
	if *slot == nil {
		*slot = models.Time(now)
	}
}

// merge folds an update for the active task into it. Phases only move
// forward (or to FAILED) and recorded timestamps are kept.
func (m Machine) merge(r models.Robot, in models.Task, now time.Time) (models.Robot, []Effect) {
	t := r.Task.Clone()
	if in.Type != "" {
		t.Type = in.Type
	}
	if in.Status != "" {
		t.Status = in.Status
	}
	mergeEndpoint(&t.Source, in.Source)
	mergeEndpoint(&t.Destination, in.Destination)
	mergeTimestamps(&t.Timestamps, in.Timestamps)

	var effects []Effect
	switch {
	case in.Phase == "" || in.Phase == t.Phase:
		if in.Progress > t.Progress {
			t.Progress = min(in.Progress, 100)
		}
	case in.Phase == models.PhaseFailed && !t.Phase.Terminal():
		effects = m.enter(r, &t, models.PhaseFailed, now)
		effects = append(effects, m.afterFailure(&r)...)
	case in.Phase.Rank() > t.Phase.Rank() && !t.Phase.Terminal():
		effects = m.enter(r, &t, in.Phase, now)
		if in.Progress > 0 {
			t.Progress = min(in.Progress, 100)
		}
	}
	r.Task = &t
	if len(effects) == 0 {
		effects = []Effect{Transition{From: t.Phase, Task: t.Clone()}}
	}
	return r, effects
}

func mergeEndpoint(dst *models.Endpoint, src models.Endpoint) {
	if src.ID != "" {
		dst.ID = src.ID
	}
	if src.Room != "" {
		dst.Room = src.Room
	}
	if src.Location != nil {
		loc := *src.Location
		dst.Location = &loc
	}
}

func mergeTimestamps(dst *models.PhaseTimestamps, src models.PhaseTimestamps) {
	fill := func(d **time.Time, s *time.Time) {
		if *d == nil && s != nil {
			ts := *s
			*d = &ts
		}
	}
	fill(&dst.AssignedAt, src.AssignedAt)
	fill(&dst.SourceArrivedAt, src.SourceArrivedAt)
	fill(&dst.PickedUpAt, src.PickedUpAt)
	fill(&dst.DestinationArrivedAt, src.DestinationArrivedAt)
	fill(&dst.CompletedAt, src.CompletedAt)
	fill(&dst.FailedAt, src.FailedAt)
}

// Locate recomputes progress and tests arrival after r.Location changed.
// Paused tasks and unresolvable targets are left untouched.
func (m Machine) Locate(r models.Robot, rooms geo.Rooms, now time.Time) (models.Robot, []Effect) {
	if r.Task == nil || r.Location == nil || r.Task.Paused || !r.Task.Active() {
		return r, nil
	}
	t := r.Task.Clone()
	pos := *r.Location
	if t.AssignedFrom == nil {
		start := pos
		t.AssignedFrom = &start
	}

	if t.Legacy() {
		return m.locateLegacy(r, t, rooms, pos, now)
	}

	var (
		endpoint models.Endpoint
		arrive   models.Phase
		start    = *t.AssignedFrom
	)
	switch t.Phase {
	case models.PhaseEnRouteToSource:
		endpoint, arrive = t.Source, models.PhasePickingUp
	case models.PhaseEnRouteToDestination:
		endpoint, arrive = t.Destination, models.PhaseDelivering
		if t.LegStart != nil {
			start = *t.LegStart
		}
	default:
		r.Task = &t
		return r, nil
	}

	target, ok := rooms.Resolve(endpoint)
	if !ok {
		r.Task = &t
		return r, nil
	}
	if target.Arrived(pos, m.cfg.ArrivalThreshold) {
		effects := m.enter(r, &t, arrive, now)
		r.Task = &t
		return r, effects
	}
	if target.Location != nil {
		if p := geo.Progress(start, pos, *target.Location); p > t.Progress {
			t.Progress = p
		}
	}
	r.Task = &t
	return r, nil
}

// locateLegacy completes a phase-less task on a pure distance check.
func (m Machine) locateLegacy(r models.Robot, t models.Task, rooms geo.Rooms, pos models.Location, now time.Time) (models.Robot, []Effect) {
	target, ok := rooms.Resolve(t.Destination)
	if !ok || target.Location == nil {
		r.Task = &t
		return r, nil
	}
	if geo.Haversine(pos, *target.Location) > m.cfg.ArrivalThreshold {
		if p := geo.Progress(*t.AssignedFrom, pos, *target.Location); p > t.Progress {
			t.Progress = p
		}
		r.Task = &t
		return r, nil
	}
	t.Status = models.TaskStatusCompleted
	t.Progress = 100
	stamp(&t.Timestamps.CompletedAt, now)
	r.Task = &t
	return r, []Effect{
		Transition{Task: t.Clone()},
		Completed{Task: t.Clone()},
		Schedule{After: m.cfg.DisplayHold, Command: ClearTask{DeviceID: r.DeviceID, RobotID: r.ID, TaskID: t.ID}},
	}
}

// Apply executes a timer command. Commands whose precondition no longer
// holds are no-ops.
func (m Machine) Apply(r models.Robot, cmd Command, rooms geo.Rooms, now time.Time) (models.Robot, []Effect) {
	switch c := cmd.(type) {
	case AdvancePhase:
		return m.advance(r, c, rooms, now)
	case ClearTask:
		return m.clear(r, c)
	case StartNextTask:
		return m.startNext(r, rooms, now)
	}
	return r, nil
}

func (m Machine) advance(r models.Robot, c AdvancePhase, rooms geo.Rooms, now time.Time) (models.Robot, []Effect) {
	if r.Task == nil || r.Task.ID != c.TaskID || r.Task.Phase != c.From {
		return r, nil
	}
	t := r.Task.Clone()
	if t.Paused {
		// Re-arm; the dwell restarts once the pause clears.
		return r, []Effect{Schedule{After: m.delayFor(c.From), Command: c}}
	}

	var to models.Phase
	switch c.From {
	case models.PhaseAssigned:
		to = models.PhaseEnRouteToDestination
		if _, ok := rooms.Resolve(t.Source); ok {
			to = models.PhaseEnRouteToSource
		}
	case models.PhasePickingUp:
		to = models.PhaseEnRouteToDestination
	case models.PhaseDelivering:
		to = models.PhaseCompleted
	default:
		return r, nil
	}
	effects := m.enter(r, &t, to, now)
	r.Task = &t
	return r, effects
}

func (m Machine) delayFor(p models.Phase) time.Duration {
	switch p {
	case models.PhasePickingUp:
		return m.cfg.PickupDwell
	case models.PhaseDelivering:
		return m.cfg.DeliveryDwell
	default:
		return m.cfg.AdvanceDelay
	}
}

func (m Machine) clear(r models.Robot, c ClearTask) (models.Robot, []Effect) {
	if r.Task == nil || r.Task.ID != c.TaskID {
		return r, nil
	}
	done := r.Task.Phase == models.PhaseCompleted ||
		(r.Task.Legacy() && r.Task.Status == models.TaskStatusCompleted)
	if !done {
		return r, nil
	}
	r.Task = nil
	if len(r.TaskQueue) > 0 {
		return r, []Effect{Schedule{After: m.cfg.NextTaskDelay, Command: StartNextTask{DeviceID: r.DeviceID, RobotID: r.ID}}}
	}
	setState(&r, models.StateReady)
	return r, nil
}

func (m Machine) startNext(r models.Robot, rooms geo.Rooms, now time.Time) (models.Robot, []Effect) {
	if (r.Task != nil && r.Task.Active()) || len(r.TaskQueue) == 0 {
		return r, nil
	}
	next := r.TaskQueue[0]
	return m.start(r, next, rooms, now)
}

// Sweep fails the active task when the robot has been silent for longer
// than timeout.
func (m Machine) Sweep(r models.Robot, timeout time.Duration, now time.Time) (models.Robot, []Effect) {
	if r.Task == nil || !r.Task.Active() {
		return r, nil
	}
	ref := r.LastUpdate
	if ref.IsZero() && r.Task.Timestamps.AssignedAt != nil {
		ref = *r.Task.Timestamps.AssignedAt
	}
	if ref.IsZero() || now.Sub(ref) <= timeout {
		return r, nil
	}

	t := r.Task.Clone()
	stalled := t.Phase
	var effects []Effect
	if t.Legacy() {
		t.Status = models.TaskStatusFailed
		stamp(&t.Timestamps.FailedAt, now)
		effects = []Effect{Transition{Task: t.Clone()}}
	} else {
		effects = m.enter(r, &t, models.PhaseFailed, now)
	}
	r.Task = &t
	effects = append(effects, Failed{Task: t.Clone(), StalledIn: stalled})
	effects = append(effects, m.afterFailure(&r)...)
	return r, effects
}

// afterFailure moves on from a failed task: the next queued task is
// scheduled, or the robot becomes READY.
func (m Machine) afterFailure(r *models.Robot) []Effect {
	if len(r.TaskQueue) > 0 {
		return []Effect{Schedule{After: m.cfg.NextTaskDelay, Command: StartNextTask{DeviceID: r.DeviceID, RobotID: r.ID}}}
	}
	setState(r, models.StateReady)
	return nil
}

// setState changes the robot state, deferring to the collision guard while
// the robot is blocked.
func setState(r *models.Robot, s models.RobotState) {
	if r.Status.State == models.StateBlocked {
		r.Status.PreBlockState = s
		return
	}
	r.Status.State = s
}
