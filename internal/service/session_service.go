package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	CreateExclusive(ctx context.Context, session *models.Session, check func(existing []models.Session) error) error
	Cancel(ctx context.Context, session *models.Session) (bool, error)
	TransitionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error)
	ListByInstructor(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
}

type classCatalog interface {
	Get(ctx context.Context, id string) (*models.ClassDefinition, error)
}

type sessionEnrollmentLister interface {
	ListBySession(ctx context.Context, sessionID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error)
}

type cascadeDispatcher interface {
	Dispatch(ctx context.Context, sessionID, reason string, enrollmentIDs []string) int
}

// ScheduleSessionRequest describes payload for scheduling a session from a class definition.
// Omitted instructor, title, location and capacity fall back to the class definition.
type ScheduleSessionRequest struct {
	ClassDefinitionID string    `json:"class_definition_id" validate:"required"`
	InstructorID      string    `json:"instructor_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Timezone          string    `json:"timezone" validate:"omitempty,timezone"`
	Title             string    `json:"title" validate:"omitempty,max=200"`
	LocationType      string    `json:"location_type" validate:"omitempty,oneof=ONLINE IN_PERSON HYBRID"`
	MaxParticipants   *int      `json:"max_participants" validate:"omitempty,min=1"`
	WaitlistEnabled   *bool     `json:"waitlist_enabled"`
}

// CancelSessionRequest carries the mandatory cancellation reason.
type CancelSessionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SetSessionStatusRequest is an administrative status override.
type SetSessionStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SessionServiceConfig holds scheduling defaults.
type SessionServiceConfig struct {
	WaitlistDefault bool
}

// SessionService coordinates scheduling, cancellation and status overrides of sessions.
type SessionService struct {
	repo        sessionRepository
	catalog     classCatalog
	enrollments sessionEnrollmentLister
	cascade     cascadeDispatcher
	events      EventNotifier
	metrics     *MetricsService
	lifecycle   SessionLifecycle
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         SessionServiceConfig
	now         func() time.Time
}

// NewSessionService instantiates SessionService.
func NewSessionService(repo sessionRepository, catalog classCatalog, enrollments sessionEnrollmentLister, cascade cascadeDispatcher, events EventNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SessionServiceConfig) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopNotifier{}
	}
	return &SessionService{
		repo:        repo,
		catalog:     catalog,
		enrollments: enrollments,
		cascade:     cascade,
		events:      events,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.load(ctx, id)
}

// Schedule creates a session after checking the instructor's calendar.
func (s *SessionService) Schedule(ctx context.Context, req ScheduleSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if err := ValidateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	def, err := s.catalog.Get(ctx, req.ClassDefinitionID)
	if err != nil {
		return nil, err
	}

	session := models.Session{
		ClassDefinitionID: def.ID,
		InstructorID:      strings.TrimSpace(req.InstructorID),
		StartTime:         req.StartTime.UTC(),
		EndTime:           req.EndTime.UTC(),
		Timezone:          req.Timezone,
		Title:             strings.TrimSpace(req.Title),
		LocationType:      models.LocationType(req.LocationType),
		MaxParticipants:   def.DefaultCapacity,
		WaitlistEnabled:   s.cfg.WaitlistDefault,
		Status:            models.SessionStatusScheduled,
	}
	if session.InstructorID == "" && def.DefaultInstructorID != nil {
		session.InstructorID = *def.DefaultInstructorID
	}
	if session.Title == "" {
		session.Title = def.Title
	}
	if session.LocationType == "" {
		session.LocationType = def.LocationType
	}
	if session.Timezone == "" {
		session.Timezone = "UTC"
	}
	if req.MaxParticipants != nil {
		session.MaxParticipants = *req.MaxParticipants
	}
	if req.WaitlistEnabled != nil {
		session.WaitlistEnabled = *req.WaitlistEnabled
	}
	if session.InstructorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instructor is required")
	}
	if session.MaxParticipants < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "max participants must be at least 1")
	}

	err = s.repo.CreateExclusive(ctx, &session, func(existing []models.Session) error {
		return s.lifecycle.CheckCreate(session, existing)
	})
	if err != nil {
		return nil, s.fail(err, "failed to create session")
	}

	s.metrics.ObserveSessionTransition("", string(models.SessionStatusScheduled), "request")
	s.events.Publish(ctx, sessionEvent(models.EventSessionScheduled, session, map[string]any{
		"start_time":       session.StartTime,
		"end_time":         session.EndTime,
		"title":            session.Title,
		"max_participants": session.MaxParticipants,
	}))
	return &session, nil
}

// Cancel cancels a live session and cascades the cancellation to its active enrollments.
// Cascade failures never undo the session's cancellation.
func (s *SessionService) Cancel(ctx context.Context, id string, req CancelSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, session, req.Reason)
}

// ResumeCascade re-runs the enrollment cascade of an already cancelled session.
// Only enrollments still ENROLLED or WAITLISTED are touched.
func (s *SessionService) ResumeCascade(ctx context.Context, id string) (int, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if session.Status != models.SessionStatusCancelled {
		return 0, appErrors.Clone(appErrors.ErrInvalidState, "session is not cancelled")
	}
	reason := overrideCancelReason
	if session.CancellationReason != nil {
		reason = *session.CancellationReason
	}
	return s.fanOut(ctx, session.ID, reason)
}

// SetStatus applies an administrative status override.
func (s *SessionService) SetStatus(ctx context.Context, id string, req SetSessionStatusRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	target := models.SessionStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := s.lifecycle.Override(*session, target)
	if err != nil {
		return nil, s.fail(err, "")
	}
	if !changed {
		return session, nil
	}
	if target == models.SessionStatusCancelled {
		return s.cancel(ctx, session, overrideCancelReason)
	}

	from := session.Status
	now := s.now()
	ok, err := s.repo.TransitionStatus(ctx, session.ID, from, target, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
	}
	if !ok {
		return nil, s.fail(appErrors.Clone(appErrors.ErrInvalidState, "session status changed concurrently"), "")
	}
	session.Status = target
	session.UpdatedAt = now
	s.metrics.ObserveSessionTransition(string(from), string(target), "override")

	switch target {
	case models.SessionStatusOngoing:
		s.events.Publish(ctx, sessionEvent(models.EventSessionStarted, *session, map[string]any{"source": "override"}))
	case models.SessionStatusCompleted:
		s.events.Publish(ctx, sessionEvent(models.EventSessionCompleted, *session, map[string]any{"source": "override"}))
	}
	return session, nil
}

// ListForInstructor returns the instructor's sessions overlapping [from, to) ordered by start.
func (s *SessionService) ListForInstructor(ctx context.Context, instructorID string, from, to time.Time) ([]models.Session, error) {
	if strings.TrimSpace(instructorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instructor is required")
	}
	if err := ValidateWindow(from, to); err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListByInstructor(ctx, models.SessionFilter{InstructorID: instructorID, Range: models.TimeRange{From: from.UTC(), To: to.UTC()}})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructor sessions")
	}
	return sessions, nil
}

func (s *SessionService) cancel(ctx context.Context, session *models.Session, reason string) (*models.Session, error) {
	from := session.Status
	if err := s.lifecycle.Cancel(session, reason, s.now()); err != nil {
		return nil, s.fail(err, "")
	}
	ok, err := s.repo.Cancel(ctx, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	if !ok {
		return nil, s.fail(appErrors.Clone(appErrors.ErrInvalidState, "session already finished or cancelled"), "")
	}

	s.metrics.ObserveSessionTransition(string(from), string(models.SessionStatusCancelled), "request")
	s.events.Publish(ctx, sessionEvent(models.EventSessionCancelled, *session, map[string]any{"reason": *session.CancellationReason}))

	if _, err := s.fanOut(ctx, session.ID, *session.CancellationReason); err != nil {
		s.logger.Sugar().Errorw("session cancelled but cascade could not be dispatched", "session_id", session.ID, "error", err)
	}
	return session, nil
}

func (s *SessionService) fanOut(ctx context.Context, sessionID, reason string) (int, error) {
	active, err := s.enrollments.ListBySession(ctx, sessionID, []models.EnrollmentStatus{models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session enrollments")
	}
	ids := make([]string, 0, len(active))
	for _, e := range active {
		ids = append(ids, e.ID)
	}
	if failed := s.cascade.Dispatch(ctx, sessionID, reason, ids); failed > 0 {
		s.logger.Sugar().Warnw("cascade finished with failures", "session_id", sessionID, "failed", failed, "total", len(ids))
	}
	return len(ids), nil
}

func (s *SessionService) load(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// fail passes domain errors through unchanged (recording conflicts) and wraps anything else as internal.
func (s *SessionService) fail(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		if appErr.Status == appErrors.ErrConflict.Status {
			s.metrics.ObserveRejection(appErr.Code)
		}
		return err
	}
	if message == "" {
		message = appErrors.ErrInternal.Message
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
