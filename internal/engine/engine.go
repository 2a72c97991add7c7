// Package engine is the single event loop that owns every state change.
// Inbound messages, timer commands, poll results and operator requests are
// queued and executed one at a time.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fleet-service/internal/actuator"
	"fleet-service/internal/alerts"
	"fleet-service/internal/autocontrol"
	"fleet-service/internal/collision"
	"fleet-service/internal/events"
	"fleet-service/internal/fleet"
	"fleet-service/internal/history"
	"fleet-service/internal/lifecycle"
	"fleet-service/internal/logging"
	"fleet-service/internal/metrics"
	"fleet-service/internal/models"
	"fleet-service/internal/store"
	"fleet-service/internal/telemetry"
)

// Timings groups the engine's delays, windows and distances.
type Timings struct {
	Lifecycle          lifecycle.Config
	TaskTimeout        time.Duration
	SweepInterval      time.Duration
	PollInterval       time.Duration
	CollisionThreshold float64
	CollisionWindow    time.Duration
	AutoControlWindow  time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Lifecycle:          lifecycle.DefaultConfig(),
		TaskTimeout:        5 * time.Minute,
		SweepInterval:      30 * time.Second,
		PollInterval:       10 * time.Second,
		CollisionThreshold: collision.DefaultThreshold,
		CollisionWindow:    collision.DefaultNotifyWindow,
		AutoControlWindow:  autocontrol.DefaultWindow,
	}
}

// Actuator sends commands to the external state API.
type Actuator interface {
	UpdateStateDetails(ctx context.Context, deviceID, topic string, payload any) (actuator.Ack, error)
}

// Scheduler delivers cmd back to the engine after a delay.
type Scheduler interface {
	Schedule(after time.Duration, cmd any)
}

// Deps are the collaborators of the engine. Actuator, Sink and Metrics
// may be nil.
type Deps struct {
	Store    *store.Store
	Registry fleet.Registry
	History  *history.Store
	Tasks    *history.TaskLog
	Alerts   *alerts.Log
	Actuator Actuator
	Sink     events.Sink
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Options tune the engine. Zero values select defaults.
type Options struct {
	Timings   Timings
	Policy    autocontrol.Policy
	QueueSize int
	Settings  models.Settings
	Clock     func() time.Time
	Scheduler Scheduler
	// Spawn runs fire-and-forget work such as actuator calls.
	Spawn func(func())
}

// PollResult is a state document fetched by the poller.
type PollResult struct {
	DeviceID  string
	Details   actuator.StateDetails
	FetchedAt time.Time
}

// AssignTask is an operator task assignment.
type AssignTask struct {
	DeviceID string
	RobotID  string
	Task     models.Task
}

// ResetDevice drops the transient caches of a device.
type ResetDevice struct {
	DeviceID string
}

// Sweep runs the task timeout sweep.
type Sweep struct{}

type Engine struct {
	store    *store.Store
	registry fleet.Registry
	history  *history.Store
	tasks    *history.TaskLog
	alerts   *alerts.Log
	actuator Actuator
	sink     events.Sink
	metrics  *metrics.Metrics
	logger   *logging.Logger

	timings   Timings
	machine   lifecycle.Machine
	notifier  *collision.Notifier
	control   *autocontrol.Controller
	settings  atomic.Pointer[models.Settings]
	queue     chan any
	clock     func() time.Time
	scheduler Scheduler
	spawn     func(func())

	ctx atomic.Pointer[context.Context]
	wg  sync.WaitGroup
}

func New(deps Deps, opts Options) *Engine {
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Policy == "" {
		opts.Policy = autocontrol.DefaultPolicy
	}
	if opts.Settings.SystemMode == "" {
		opts.Settings = models.DefaultSettings()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = events.NewFanout(deps.Logger)
	}

	e := &Engine{
		store:    deps.Store,
		registry: deps.Registry,
		history:  deps.History,
		tasks:    deps.Tasks,
		alerts:   deps.Alerts,
		actuator: deps.Actuator,
		sink:     deps.Sink,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		timings:  opts.Timings,
		machine:  lifecycle.NewMachine(opts.Timings.Lifecycle),
		notifier: collision.NewNotifier(opts.Timings.CollisionWindow),
		control:  autocontrol.NewController(opts.Policy, opts.Timings.AutoControlWindow),
		queue:    make(chan any, opts.QueueSize),
		clock:    opts.Clock,
	}
	settings := opts.Settings
	e.settings.Store(&settings)

	e.scheduler = opts.Scheduler
	if e.scheduler == nil {
		e.scheduler = timerScheduler{e: e}
	}
	e.spawn = opts.Spawn
	if e.spawn == nil {
		e.spawn = func(fn func()) {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				fn()
			}()
		}
	}
	return e
}

// timerScheduler posts commands back through the queue from time.AfterFunc.
type timerScheduler struct {
	e *Engine
}

func (s timerScheduler) Schedule(after time.Duration, cmd any) {
	time.AfterFunc(after, func() {
		select {
		case s.e.queue <- cmd:
		case <-s.e.runContext().Done():
		}
	})
}

// runContext is the context passed to Run, or Background before Run.
func (e *Engine) runContext() context.Context {
	if ctx := e.ctx.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

// Settings returns the current thresholds and mode.
func (e *Engine) Settings() models.Settings {
	return *e.settings.Load()
}

// SetSettings replaces thresholds and mode wholesale.
func (e *Engine) SetSettings(s models.Settings) {
	e.settings.Store(&s)
	e.logger.Infof("Settings updated: mode=%s", s.SystemMode)
}

// Policy reports the climate policy in use.
func (e *Engine) Policy() autocontrol.Policy {
	return e.control.Policy()
}

// Submit queues cmd for the loop. It never blocks; a full queue drops cmd.
func (e *Engine) Submit(cmd any) bool {
	select {
	case e.queue <- cmd:
		return true
	default:
		e.logger.Errorf("Engine queue full, dropping %T", cmd)
		e.metrics.QueueDrop()
		return false
	}
}

// Run executes queued commands and the timeout sweep until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.ctx.Store(&ctx)
	sweep := time.NewTicker(e.timings.SweepInterval)
	defer sweep.Stop()

	e.logger.Infof("Engine started (policy=%s, queue=%d)", e.control.Policy(), cap(e.queue))
	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			e.logger.Infof("Engine stopped")
			return
		case cmd := <-e.queue:
			e.Execute(cmd)
		case <-sweep.C:
			e.Execute(Sweep{})
		}
	}
}

// Execute runs one command synchronously. It must only be called from the
// loop goroutine, or from tests that own the engine.
func (e *Engine) Execute(cmd any) {
	switch c := cmd.(type) {
	case telemetry.Message:
		e.Handle(c)
	case lifecycle.AdvancePhase:
		e.applyTimer(c.DeviceID, c.RobotID, c)
	case lifecycle.ClearTask:
		e.applyTimer(c.DeviceID, c.RobotID, c)
	case lifecycle.StartNextTask:
		e.applyTimer(c.DeviceID, c.RobotID, c)
	case PollResult:
		e.applyPoll(c)
	case AssignTask:
		e.assignTask(c.DeviceID, c.RobotID, c.Task, e.now())
	case ResetDevice:
		e.resetDevice(c.DeviceID)
	case Sweep:
		e.sweep()
	default:
		e.logger.Warnf("Engine ignoring unknown command %T", cmd)
	}
}

func (e *Engine) now() time.Time {
	return e.clock()
}

func (e *Engine) applyTimer(deviceID, robotID string, cmd lifecycle.Command) {
	now := e.now()
	var effects []lifecycle.Effect
	rooms := e.registry.RoomsFor(deviceID)
	r := e.store.UpdateRobot(deviceID, robotID, func(r models.Robot) models.Robot {
		r, effects = e.machine.Apply(r, cmd, rooms, now)
		return r
	})
	if len(effects) == 0 {
		return
	}
	e.applyEffects(r, effects, now)
	e.publishRobot(r, now)
}

func (e *Engine) resetDevice(deviceID string) {
	e.history.ResetDevice(deviceID)
	e.control.Reset(deviceID)
	e.notifier.Reset(deviceID)
	e.logger.Infof("Reset transient caches for device %s", deviceID)
}

func (e *Engine) sweep() {
	now := e.now()
	var stale []models.Robot
	e.store.EachRobot(func(r models.Robot) {
		if _, effects := e.machine.Sweep(r, e.timings.TaskTimeout, now); len(effects) > 0 {
			stale = append(stale, r)
		}
	})
	for _, s := range stale {
		var effects []lifecycle.Effect
		r := e.store.UpdateRobot(s.DeviceID, s.ID, func(r models.Robot) models.Robot {
			r, effects = e.machine.Sweep(r, e.timings.TaskTimeout, now)
			return r
		})
		e.applyEffects(r, effects, now)
		e.publishRobot(r, now)
	}
}
