package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/class-session-api/internal/models"
	"github.com/noah-isme/class-session-api/pkg/jobs"
	"github.com/noah-isme/class-session-api/pkg/middleware/requestid"
)

// EventNotifier announces committed facts. Implementations must not be called inside a store transaction.
type EventNotifier interface {
	Publish(ctx context.Context, event models.Event)
}

// EventSink delivers events to one downstream collaborator.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, event models.Event) error
}

// EventOutbox persists announced facts until every sink accepted them.
type EventOutbox interface {
	Append(ctx context.Context, event models.Event) error
	Pending(ctx context.Context, cutoff time.Time, limit int) ([]models.Event, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id, cause string) error
}

// EventServiceConfig tunes asynchronous delivery and the outbox relay.
type EventServiceConfig struct {
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
	RatePerSec   int
	DrainTimeout time.Duration
	RelayGrace   time.Duration
	RelayBatch   int
}

// eventDelivery is shared across retries of one job so sinks that already accepted the event
// are not sent it again.
type eventDelivery struct {
	event   models.Event
	pending []EventSink
}

// EventService fans events out to sinks through a retrying job queue. Every event is first written
// to the outbox; rows still undelivered after RelayGrace are re-sent by Relay, so a crash or an
// exhausted retry budget delays a fact but never loses it. Delivery is at-least-once; consumers
// deduplicate on Event.ID.
type EventService struct {
	sinks   []EventSink
	outbox  EventOutbox
	cfg     EventServiceConfig
	queue   *jobs.Queue
	limiter *rate.Limiter
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewEventService constructs the notifier and its delivery queue. A nil outbox disables persistence.
func NewEventService(sinks []EventSink, outbox EventOutbox, cfg EventServiceConfig, metrics *MetricsService, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 50
	}
	if cfg.RelayGrace <= 0 {
		cfg.RelayGrace = time.Minute
	}
	if cfg.RelayBatch <= 0 {
		cfg.RelayBatch = 100
	}
	s := &EventService{
		sinks:   sinks,
		outbox:  outbox,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.queue = jobs.NewQueue("events", s.handle, jobs.QueueConfig{
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		DrainTimeout: cfg.DrainTimeout,
		OnGiveUp:     s.giveUp,
		Logger:       logger,
	})
	return s
}

// Start launches delivery workers. Before Start, Publish delivers synchronously.
func (s *EventService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains queued and backed-off deliveries.
func (s *EventService) Stop() {
	s.queue.Stop()
}

// Publish stamps the event, records it in the outbox and dispatches it to every sink.
// The request context only bounds the enqueue; persistence and inline delivery outlive it.
func (s *EventService) Publish(ctx context.Context, event models.Event) {
	if s == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if event.RequestID == "" {
		event.RequestID = requestid.FromContext(ctx)
	}
	detached := context.WithoutCancel(ctx)

	if s.outbox != nil {
		if err := s.outbox.Append(detached, event); err != nil {
			s.logger.Sugar().Errorw("event not recorded in outbox", "event_id", event.ID, "type", event.Type, "error", err)
		}
	}

	delivery := &eventDelivery{event: event, pending: append([]EventSink(nil), s.sinks...)}
	if s.queue.Running() {
		err := s.queue.Enqueue(ctx, jobs.Job{ID: event.ID, Type: string(event.Type), Payload: delivery})
		if err == nil {
			return
		}
		s.logger.Sugar().Warnw("event enqueue failed, delivering inline", "event_id", event.ID, "error", err)
	}
	if err := s.deliver(detached, delivery); err != nil {
		s.logger.Sugar().Errorw("event delivery failed", "event_id", event.ID, "type", event.Type, "error", err)
	}
}

// Relay re-sends outbox events older than RelayGrace that no sink run has completed.
// It returns how many were fully delivered.
func (s *EventService) Relay(ctx context.Context) (int, error) {
	if s.outbox == nil {
		return 0, nil
	}
	events, err := s.outbox.Pending(ctx, s.now().Add(-s.cfg.RelayGrace), s.cfg.RelayBatch)
	if err != nil {
		return 0, fmt.Errorf("list undelivered events: %w", err)
	}
	delivered := 0
	for _, event := range events {
		if err := s.deliver(ctx, &eventDelivery{event: event, pending: s.sinks}); err != nil {
			s.logger.Sugar().Warnw("event relay failed", "event_id", event.ID, "type", event.Type, "error", err)
			continue
		}
		delivered++
	}
	if len(events) > 0 {
		s.logger.Sugar().Infow("event relay finished", "delivered", delivered, "pending", len(events)-delivered)
	}
	return delivered, nil
}

func (s *EventService) handle(ctx context.Context, job jobs.Job) error {
	delivery, ok := job.Payload.(*eventDelivery)
	if !ok {
		s.logger.Sugar().Errorw("unexpected event job payload", "job_id", job.ID)
		return nil
	}
	return s.deliver(ctx, delivery)
}

// deliver sends the event to the sinks still pending and narrows the list to those that failed.
func (s *EventService) deliver(ctx context.Context, d *eventDelivery) error {
	var failed []EventSink
	var errs []error
	for i, sink := range d.pending {
		if err := s.limiter.Wait(ctx); err != nil {
			failed = append(failed, d.pending[i:]...)
			errs = append(errs, fmt.Errorf("event rate limit: %w", err))
			break
		}
		err := sink.Deliver(ctx, d.event)
		s.metrics.ObserveEventDelivery(string(d.event.Type), sink.Name(), err)
		if err != nil {
			failed = append(failed, sink)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	d.pending = failed

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.record(ctx, d.event.ID, func(ctx context.Context) error { return s.outbox.RecordFailure(ctx, d.event.ID, err.Error()) })
		return err
	}
	s.record(ctx, d.event.ID, func(ctx context.Context) error { return s.outbox.MarkDelivered(ctx, d.event.ID, s.now()) })
	return nil
}

func (s *EventService) record(ctx context.Context, eventID string, write func(context.Context) error) {
	if s.outbox == nil {
		return
	}
	if err := write(context.WithoutCancel(ctx)); err != nil {
		s.logger.Sugar().Warnw("event outbox update failed", "event_id", eventID, "error", err)
	}
}

func (s *EventService) giveUp(job jobs.Job, err error) {
	s.metrics.ObserveEventAbandoned(job.Type)
	if s.outbox == nil {
		s.logger.Sugar().Errorw("event dropped", "event_id", job.ID, "type", job.Type, "attempts", job.Attempt, "error", err)
		return
	}
	s.logger.Sugar().Warnw("event left in outbox for relay", "event_id", job.ID, "type", job.Type, "attempts", job.Attempt, "error", err)
}

// LogEventSink writes every event to the structured log.
type LogEventSink struct {
	logger *zap.Logger
}

// NewLogEventSink constructs a log sink.
func NewLogEventSink(logger *zap.Logger) *LogEventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventSink{logger: logger}
}

// Name identifies the sink.
func (l *LogEventSink) Name() string { return "log" }

// Deliver logs the event.
func (l *LogEventSink) Deliver(ctx context.Context, event models.Event) error {
	l.logger.Info("domain_event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("session_id", event.SessionID),
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("student_id", event.StudentID),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

func sessionEvent(eventType models.EventType, session models.Session, payload map[string]any) models.Event {
	return models.Event{
		Type:         eventType,
		SessionID:    session.ID,
		InstructorID: session.InstructorID,
		Payload:      payload,
	}
}

func enrollmentEvent(eventType models.EventType, enrollment models.Enrollment, payload map[string]any) models.Event {
	return models.Event{
		Type:         eventType,
		SessionID:    enrollment.SessionID,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		Payload:      payload,
	}
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, models.Event) {}
