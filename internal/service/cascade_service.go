package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-session-api/pkg/jobs"
)

type enrollmentCanceller interface {
	CancelForSession(ctx context.Context, enrollmentID, reason string) error
}

// CascadeConfig tunes the cancellation fan-out queue.
type CascadeConfig struct {
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
	DrainTimeout time.Duration
}

type cascadeTask struct {
	SessionID    string
	EnrollmentID string
	Reason       string
}

// CascadeService fans a session cancellation out to its enrollments, one unit of work per enrollment.
// Each unit commits on its own; a failed unit is retried without touching its siblings.
type CascadeService struct {
	canceller enrollmentCanceller
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewCascadeService constructs the dispatcher and its queue.
func NewCascadeService(canceller enrollmentCanceller, cfg CascadeConfig, metrics *MetricsService, logger *zap.Logger) *CascadeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CascadeService{canceller: canceller, metrics: metrics, logger: logger}
	c.queue = jobs.NewQueue("session-cascade", c.handle, jobs.QueueConfig{
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		DrainTimeout: cfg.DrainTimeout,
		OnGiveUp:     c.giveUp,
		Logger:       logger,
	})
	return c
}

// Start launches cascade workers. Before Start, Dispatch runs inline.
func (c *CascadeService) Start(ctx context.Context) {
	c.queue.Start(ctx)
}

// Stop runs every queued and backed-off unit before returning. Units still pending at the drain
// deadline are counted as failures; the status sweeper reconciles them later.
func (c *CascadeService) Stop() {
	c.queue.Stop()
}

// Dispatch schedules cancellation of every listed enrollment. It returns the number of units that
// failed inline; queued units that exhaust their retries are counted by the give-up hook.
func (c *CascadeService) Dispatch(ctx context.Context, sessionID, reason string, enrollmentIDs []string) int {
	failed := 0
	for _, id := range enrollmentIDs {
		task := cascadeTask{SessionID: sessionID, EnrollmentID: id, Reason: reason}
		if c.queue.Running() {
			err := c.queue.Enqueue(ctx, jobs.Job{ID: fmt.Sprintf("%s:%s", sessionID, id), Type: "enrollment.cancel", Payload: task})
			if err == nil {
				continue
			}
			c.logger.Sugar().Warnw("cascade enqueue failed, cancelling inline", "session_id", sessionID, "enrollment_id", id, "error", err)
		}
		if err := c.run(ctx, task); err != nil {
			c.metrics.ObserveCascadeFailure()
			failed++
		}
	}
	return failed
}

func (c *CascadeService) handle(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(cascadeTask)
	if !ok {
		c.logger.Sugar().Errorw("unexpected cascade job payload", "job_id", job.ID)
		return nil
	}
	return c.run(ctx, task)
}

func (c *CascadeService) run(ctx context.Context, task cascadeTask) error {
	if err := c.canceller.CancelForSession(ctx, task.EnrollmentID, task.Reason); err != nil {
		c.logger.Sugar().Warnw("cascade cancel failed", "session_id", task.SessionID, "enrollment_id", task.EnrollmentID, "error", err)
		return err
	}
	return nil
}

func (c *CascadeService) giveUp(job jobs.Job, err error) {
	c.metrics.ObserveCascadeFailure()
	task, _ := job.Payload.(cascadeTask)
	c.logger.Sugar().Errorw("cascade cancel abandoned, left for the sweeper to reconcile",
		"session_id", task.SessionID, "enrollment_id", task.EnrollmentID, "attempts", job.Attempt, "error", err)
}
