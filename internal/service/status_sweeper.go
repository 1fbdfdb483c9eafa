package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-session-api/internal/models"
)

type sweepRepository interface {
	ListDueForStart(ctx context.Context, now time.Time, limit int) ([]models.Session, error)
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]models.Session, error)
	ListCancelledWithActiveEnrollments(ctx context.Context, cancelledBefore time.Time, limit int) ([]models.Session, error)
	TransitionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error)
}

type cascadeResumer interface {
	ResumeCascade(ctx context.Context, id string) (int, error)
}

// SweepResult counts what one sweeper run changed.
type SweepResult struct {
	Started    int `json:"started"`
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Reconciled int `json:"reconciled"`
}

// StatusSweeper advances sessions along SCHEDULED -> ONGOING -> COMPLETED as wall-clock time passes.
// Each session transitions in its own conditional update so a concurrent cancel always wins cleanly.
// With a resumer attached it also re-dispatches cancellation cascades that left enrollments behind.
type StatusSweeper struct {
	repo           sweepRepository
	events         EventNotifier
	metrics        *MetricsService
	lifecycle      SessionLifecycle
	logger         *zap.Logger
	batchSize      int
	resumer        cascadeResumer
	reconcileGrace time.Duration
	now            func() time.Time
}

// NewStatusSweeper constructs a sweeper.
func NewStatusSweeper(repo sweepRepository, events EventNotifier, metrics *MetricsService, logger *zap.Logger, batchSize int) *StatusSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopNotifier{}
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &StatusSweeper{
		repo:      repo,
		events:    events,
		metrics:   metrics,
		logger:    logger,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ReconcileCascades makes every run resume the cascade of sessions cancelled more than grace ago
// that still hold active enrollments.
func (w *StatusSweeper) ReconcileCascades(resumer cascadeResumer, grace time.Duration) *StatusSweeper {
	w.resumer = resumer
	w.reconcileGrace = grace
	return w
}

// Run performs one sweep. Running it twice at the same instant changes nothing the second time.
// A session that fails to advance is logged and counted; the rest of the batch still runs.
func (w *StatusSweeper) Run(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	started := time.Now()
	defer func() { w.metrics.ObserveSweep(time.Since(started)) }()

	now := w.now()

	due, err := w.repo.ListDueForStart(ctx, now, w.batchSize)
	if err != nil {
		return result, err
	}
	for _, session := range due {
		if !w.lifecycle.SweepToOngoing(session, now) {
			result.Skipped++
			continue
		}
		if w.advance(ctx, session, models.SessionStatusOngoing, now, &result) {
			result.Started++
			session.Status = models.SessionStatusOngoing
			w.events.Publish(ctx, sessionEvent(models.EventSessionStarted, session, map[string]any{"source": "sweeper"}))
		}
	}

	// Sessions started above are listed again here so a session whose end already passed
	// completes in the same run.
	ending, err := w.repo.ListDueForCompletion(ctx, now, w.batchSize)
	if err != nil {
		return result, err
	}
	for _, session := range ending {
		if !w.lifecycle.SweepToCompleted(session, now) {
			result.Skipped++
			continue
		}
		if w.advance(ctx, session, models.SessionStatusCompleted, now, &result) {
			result.Completed++
			session.Status = models.SessionStatusCompleted
			w.events.Publish(ctx, sessionEvent(models.EventSessionCompleted, session, map[string]any{"source": "sweeper"}))
		}
	}

	if err := w.reconcile(ctx, now, &result); err != nil {
		return result, err
	}

	if result.Started > 0 || result.Completed > 0 || result.Failed > 0 || result.Reconciled > 0 {
		w.logger.Sugar().Infow("status sweep applied", "started", result.Started, "completed", result.Completed,
			"skipped", result.Skipped, "failed", result.Failed, "reconciled", result.Reconciled)
	}
	return result, nil
}

// advance reports whether the session moved to the target status. Lost races count as skipped and
// store errors as failed.
func (w *StatusSweeper) advance(ctx context.Context, session models.Session, to models.SessionStatus, now time.Time, result *SweepResult) bool {
	ok, err := w.repo.TransitionStatus(ctx, session.ID, session.Status, to, now)
	if err != nil {
		result.Failed++
		w.metrics.ObserveSweepFailure()
		w.logger.Sugar().Errorw("status sweep transition failed", "session_id", session.ID, "to", to, "error", err)
		return false
	}
	if !ok {
		result.Skipped++
		return false
	}
	w.metrics.ObserveSessionTransition(string(session.Status), string(to), "sweeper")
	return true
}

func (w *StatusSweeper) reconcile(ctx context.Context, now time.Time, result *SweepResult) error {
	if w.resumer == nil {
		return nil
	}
	stale, err := w.repo.ListCancelledWithActiveEnrollments(ctx, now.Add(-w.reconcileGrace), w.batchSize)
	if err != nil {
		return err
	}
	for _, session := range stale {
		dispatched, err := w.resumer.ResumeCascade(ctx, session.ID)
		if err != nil {
			result.Failed++
			w.metrics.ObserveSweepFailure()
			w.logger.Sugar().Errorw("cascade reconcile failed", "session_id", session.ID, "error", err)
			continue
		}
		result.Reconciled++
		w.logger.Sugar().Warnw("cascade reconciled", "session_id", session.ID, "enrollments", dispatched)
	}
	return nil
}
