package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PeriodicFunc is invoked on every scheduler tick.
type PeriodicFunc func(ctx context.Context) error

// Scheduler runs periodic functions on cron specs. Overlapping runs of the same entry are skipped.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// NewScheduler constructs a scheduler evaluating specs in UTC.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	return &Scheduler{logger: logger, cron: c, entries: map[string]cron.EntryID{}}
}

// Every registers fn to run at a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn PeriodicFunc) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	return s.Add(name, "@every "+interval.String(), fn)
}

// Add registers fn under a cron spec.
func (s *Scheduler) Add(name, spec string, fn PeriodicFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("schedule %s already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.run(name, fn)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

// Start begins evaluating schedules until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Sugar().Infow("scheduler started", "entries", len(s.entries))
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Sugar().Infow("scheduler stopped")
}

func (s *Scheduler) run(name string, fn PeriodicFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Sugar().Errorw("scheduled job failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Sugar().Debugw("scheduled job finished", "job", name, "duration", time.Since(start))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
