package notification

import (
	"context"
	"sort"
	"sync"

	"fleet-service/internal/events"
	"fleet-service/internal/logging"
	"fleet-service/internal/models"
)

// Sender delivers one alert through an external channel.
type Sender interface {
	Send(ctx context.Context, a models.Alert) error
}

type Config struct {
	QueueSize  int
	MaxWorkers int
	MinLevel   models.AlertLevel
}

var levelRank = map[models.AlertLevel]int{
	models.AlertInfo:     1,
	models.AlertWarning:  2,
	models.AlertCritical: 3,
}

// Service forwards accepted alerts to the registered providers from a
// worker pool.
type Service struct {
	logger        *logging.Logger
	config        Config
	tasks         chan models.Alert
	ctx           context.Context
	cancel        context.CancelFunc
	wg            *sync.WaitGroup
	providerFuncs map[string]func(context.Context, models.Alert) error
}

func New(logger *logging.Logger, cfg Config) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}
	if levelRank[cfg.MinLevel] == 0 {
		cfg.MinLevel = models.AlertCritical
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		logger:        logger,
		config:        cfg,
		tasks:         make(chan models.Alert, cfg.QueueSize),
		ctx:           ctx,
		cancel:        cancel,
		providerFuncs: make(map[string]func(context.Context, models.Alert) error),
	}
}

// Register adds a provider under name. Call before Start.
func (s *Service) Register(name string, sender Sender) {
	s.providerFuncs[name] = sender.Send
	s.logger.Infof("Alert provider %s registered", name)
}

// Providers lists registered provider names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providerFuncs))
	for name := range s.providerFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.config.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels in-flight sends and stops the workers.
func (s *Service) Stop() {
	s.cancel()
}

// QueueTask enqueues an alert for forwarding.
func (s *Service) QueueTask(a models.Alert) bool {
	select {
	case s.tasks <- a:
		s.logger.Debugf("Queued alert: id=%s", a.ID)
		return true
	default:
		s.logger.Errorf("Queue full, dropping alert: id=%s", a.ID)
		return false
	}
}

// Publish implements events.Sink. Only alerts at or above the configured
// level are forwarded.
func (s *Service) Publish(_ context.Context, e events.Event) error {
	if e.Kind != events.KindAlert || len(s.providerFuncs) == 0 {
		return nil
	}
	a, ok := e.Data.(models.Alert)
	if !ok || levelRank[a.Level] < levelRank[s.config.MinLevel] {
		return nil
	}
	s.QueueTask(a)
	return nil
}

func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case a := <-s.tasks:
			s.handleTask(a)
		}
	}
}

func (s *Service) handleTask(a models.Alert) {
	for _, name := range s.Providers() {
		final := "success"
		if err := s.providerFuncs[name](s.ctx, a); err != nil {
			final = "failed"
			s.logger.Errorf("Dispatch error via %s: %v", name, err)
		}
		s.logger.Device(a.DeviceID, a.RobotID).Infof("Alert %s dispatched %s via %s", a.ID, final, name)
	}
}
