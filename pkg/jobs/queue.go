package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueStopped is handed to the give-up hook for jobs still pending when the drain deadline passes.
var ErrQueueStopped = errors.New("queue stopped before job completed")

// Job is one unit of background work. Payload is opaque to the queue.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A non-nil error schedules a retry.
type Handler func(context.Context, Job) error

// GiveUpFunc is called once for every job the queue abandons: retries exhausted, failed while
// draining, or still pending at the drain deadline.
type GiveUpFunc func(job Job, err error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	DrainTimeout  time.Duration
	OnGiveUp      GiveUpFunc
	Logger        *zap.Logger
}

// Queue is an in-memory worker pool with exponential retry backoff. Stop drains it: buffered jobs
// run, jobs waiting out a backoff run once more immediately, and whatever is left at the drain
// deadline goes to OnGiveUp. A job is therefore either handled or reported, never silently dropped.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	mu       sync.Mutex
	jobs     chan Job
	draining chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	closing  bool
	workers  sync.WaitGroup
	senders  sync.WaitGroup
	retries  sync.WaitGroup
}

// NewQueue builds a queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{name: name, handler: handler, cfg: cfg, logger: cfg.Logger}
}

// Start launches the workers. ctx supplies values only: the queue lives until Stop so that a
// cancelled parent does not cut the drain short. Calling Start on a running queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.jobs = make(chan Job, q.cfg.BufferSize)
	q.draining = make(chan struct{})
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.closing = false
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.worker(q.ctx, i+1, q.jobs)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.cfg.Workers)
}

// Running reports whether the queue accepts jobs.
func (q *Queue) Running() bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started && !q.closing && q.ctx.Err() == nil
}

// Pending returns the number of buffered jobs.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.jobs == nil {
		return 0
	}
	return len(q.jobs)
}

// Stop refuses new jobs and drains the queue, waiting at most DrainTimeout before cancelling
// the remaining work. It returns once every accepted job was handled or given up.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.closing {
		q.mu.Unlock()
		return
	}
	q.closing = true
	close(q.draining)
	jobs := q.jobs
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.senders.Wait()
		q.retries.Wait()
		close(jobs)
		q.workers.Wait()
		close(drained)
	}()

	timer := time.NewTimer(q.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		q.logger.Sugar().Warnw("queue drain timed out", "queue", q.name, "pending", len(jobs))
		q.cancel()
		<-drained
	}

	abandoned := 0
	for job := range jobs {
		abandoned++
		q.giveUp(job, ErrQueueStopped)
	}
	q.cancel()

	q.mu.Lock()
	q.started = false
	q.mu.Unlock()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name, "abandoned", abandoned)
}

// Enqueue pushes a job, blocking while the buffer is full until ctx or the queue is done.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if !q.started || q.closing {
		q.mu.Unlock()
		return fmt.Errorf("queue %s not accepting jobs", q.name)
	}
	q.senders.Add(1)
	jobs, qctx := q.jobs, q.ctx
	q.mu.Unlock()
	defer q.senders.Done()

	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case jobs <- job:
		return nil
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", q.name, ctx.Err())
	case <-qctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, qctx.Err())
	case jobs <- job:
		return nil
	}
}

func (q *Queue) worker(ctx context.Context, workerID int, jobs <-chan Job) {
	defer q.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := q.handler(ctx, job); err != nil {
				q.retry(job, err)
				continue
			}
			q.logger.Sugar().Debugw("job done", "queue", q.name, "worker", workerID, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt)
		}
	}
}

// backoff doubles the delay per attempt up to MaxRetryDelay.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < q.cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > q.cfg.MaxRetryDelay {
		delay = q.cfg.MaxRetryDelay
	}
	return delay
}

func (q *Queue) retry(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.giveUp(job, err)
		return
	}

	q.mu.Lock()
	if q.closing {
		q.mu.Unlock()
		q.giveUp(job, err)
		return
	}
	q.retries.Add(1)
	jobs, draining, qctx := q.jobs, q.draining, q.ctx
	q.mu.Unlock()

	delay := q.backoff(job.Attempt)
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "delay", delay, "error", err)

	go func(j Job) {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-draining:
		}
		select {
		case jobs <- j:
		case <-qctx.Done():
			q.giveUp(j, ErrQueueStopped)
		}
	}(job)
}

func (q *Queue) giveUp(job Job, err error) {
	q.logger.Sugar().Errorw("job abandoned", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)
	if q.cfg.OnGiveUp != nil {
		q.cfg.OnGiveUp(job, err)
	}
}
