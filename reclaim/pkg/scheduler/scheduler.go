package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/metrics"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
)

// CycleRunner runs one discover, evaluate and reclaim pass.
type CycleRunner interface {
	RunFullCycle(ctx context.Context) reclaimer.CycleResult
}

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Runner   CycleRunner
	Interval time.Duration
	// RunOnStart runs a cycle immediately instead of waiting one interval.
	RunOnStart bool
	// OnCycle, if set, is called after every scheduled cycle completes.
	OnCycle func(ctx context.Context, cycle reclaimer.CycleResult)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Runner == nil {
		return errors.New("cycle runner is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Scheduler runs full cycles on a fixed interval and keeps the most recent
// result for presentation surfaces.
type Scheduler struct {
	log *slog.Logger
	cfg Config

	mu   sync.RWMutex
	last *reclaimer.CycleResult

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

// Ready reports whether at least one cycle has completed.
func (s *Scheduler) Ready() bool {
	select {
	case <-s.readyCh:
		return true
	default:
		return false
	}
}

func (s *Scheduler) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for first cycle: %w", ctx.Err())
	}
}

// Last returns the most recent completed cycle, or nil if none has completed.
func (s *Scheduler) Last() *reclaimer.CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Record stores a cycle run outside the loop, such as one triggered over the
// API, as the most recent result.
func (s *Scheduler) Record(cycle reclaimer.CycleResult) {
	s.mu.Lock()
	s.last = &cycle
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
}

// Run blocks until ctx is done, running a cycle every interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler: starting cycle loop", "interval", s.cfg.Interval, "run_on_start", s.cfg.RunOnStart)

	if s.cfg.RunOnStart {
		s.safeRun(ctx)
	}

	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return nil
		case <-ticker.Chan():
			s.safeRun(ctx)
		}
	}
}

// Start runs the loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		_ = s.Run(ctx)
	}()
}

func (s *Scheduler) safeRun(ctx context.Context) {
	start := s.cfg.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler: cycle panicked", "panic", r)
			metrics.RecordCycle(s.cfg.Clock.Since(start), fmt.Errorf("panic: %v", r))
			sentry.CurrentHub().Recover(r)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	span := sentry.StartSpan(ctx, "reclaim.cycle", sentry.WithDescription("scheduled full cycle"))
	defer span.Finish()

	cycle := s.cfg.Runner.RunFullCycle(span.Context())
	span.SetData("cycle_id", cycle.ID)
	span.SetData("reclaimable", len(cycle.Reclaimable))
	span.Status = sentry.SpanStatusOK
	for _, res := range cycle.Results {
		if !res.Success {
			span.Status = sentry.SpanStatusInternalError
			break
		}
	}
	s.Record(cycle)

	if s.cfg.OnCycle != nil {
		s.cfg.OnCycle(ctx, cycle)
	}
}
