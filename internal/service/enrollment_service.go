package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-session-api/internal/models"
	"github.com/noah-isme/class-session-api/internal/repository"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Admit(ctx context.Context, sessionID, studentID string, decide repository.AdmissionDecider) (*models.Enrollment, *models.Session, error)
	UpdateIfStatus(ctx context.Context, enrollment *models.Enrollment, expected models.EnrollmentStatus) (bool, error)
	CountOccupied(ctx context.Context, sessionID string) (int, error)
	ListBySession(ctx context.Context, sessionID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error)
	ListForStudent(ctx context.Context, studentID string, rng models.TimeRange) ([]models.StudentSession, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

// EnrollRequest identifies the student claiming a seat.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
}

// CancelEnrollmentRequest carries the mandatory cancellation reason.
type CancelEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// MarkAttendanceRequest records whether the student attended.
type MarkAttendanceRequest struct {
	Attended *bool `json:"attended" validate:"required"`
}

// EnrollmentService orchestrates enrollment workflows against sessions.
type EnrollmentService struct {
	repo      enrollmentRepository
	sessions  sessionReader
	events    EventNotifier
	metrics   *MetricsService
	lifecycle EnrollmentLifecycle
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, sessions sessionReader, events EventNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopNotifier{}
	}
	return &EnrollmentService{
		repo:      repo,
		sessions:  sessions,
		events:    events,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns an enrollment by id.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	return s.load(ctx, id)
}

// Enroll claims a seat for the student in the session.
func (s *EnrollmentService) Enroll(ctx context.Context, sessionID string, req EnrollRequest) (*models.Enrollment, error) {
	return s.admit(ctx, sessionID, req, false)
}

// JoinWaitlist places the student on a full session's waitlist.
func (s *EnrollmentService) JoinWaitlist(ctx context.Context, sessionID string, req EnrollRequest) (*models.Enrollment, error) {
	return s.admit(ctx, sessionID, req, true)
}

func (s *EnrollmentService) admit(ctx context.Context, sessionID string, req EnrollRequest, waitlist bool) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is required")
	}

	now := s.now()
	enrollment, session, err := s.repo.Admit(ctx, sessionID, studentID, func(snapshot models.AdmissionSnapshot) (*models.Enrollment, error) {
		return s.lifecycle.Admit(snapshot, studentID, waitlist, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			err = appErrors.ErrDuplicateEnrollment
		}
		return nil, s.fail(err, "failed to create enrollment")
	}

	s.metrics.ObserveEnrollment(string(enrollment.Status))
	s.events.Publish(ctx, enrollmentEvent(models.EventStudentEnrolled, *enrollment, map[string]any{
		"status":        enrollment.Status,
		"instructor_id": session.InstructorID,
	}))
	return enrollment, nil
}

// Cancel cancels an ENROLLED or WAITLISTED enrollment. Freed seats are not handed to the waitlist.
func (s *EnrollmentService) Cancel(ctx context.Context, id string, req CancelEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, enrollment, func(e *models.Enrollment) error {
		return s.lifecycle.Cancel(e, req.Reason, s.now())
	}); err != nil {
		return nil, err
	}
	s.announceCancel(ctx, *enrollment, "request")
	return enrollment, nil
}

// CancelForSession cancels one enrollment as part of a session cascade. Enrollments that already
// left ENROLLED or WAITLISTED are skipped so retries stay idempotent.
func (s *EnrollmentService) CancelForSession(ctx context.Context, enrollmentID, reason string) error {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled && enrollment.Status != models.EnrollmentStatusWaitlisted {
		return nil
	}
	expected := enrollment.Status
	if err := s.lifecycle.Cancel(enrollment, reason, s.now()); err != nil {
		return err
	}
	ok, err := s.repo.UpdateIfStatus(ctx, enrollment, expected)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}
	if !ok {
		return fmt.Errorf("enrollment %s changed during cascade", enrollmentID)
	}
	s.announceCancel(ctx, *enrollment, "session_cancelled")
	return nil
}

// MarkAttendance records ATTENDED or ABSENT for an ENROLLED enrollment exactly once.
func (s *EnrollmentService) MarkAttendance(ctx context.Context, id string, req MarkAttendanceRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, enrollment, func(e *models.Enrollment) error {
		return s.lifecycle.MarkAttendance(e, *req.Attended, s.now())
	}); err != nil {
		return nil, err
	}

	s.metrics.ObserveEnrollment(string(enrollment.Status))
	s.events.Publish(ctx, enrollmentEvent(models.EventAttendanceMarked, *enrollment, map[string]any{
		"status":    enrollment.Status,
		"marked_at": enrollment.AttendanceMarkedAt,
	}))
	return enrollment, nil
}

// Capacity summarises seat usage for the session: the occupied count and whether a seat is free.
func (s *EnrollmentService) Capacity(ctx context.Context, sessionID string) (*models.SessionCapacity, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountOccupied(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	summary := CapacityGate{MaxParticipants: session.MaxParticipants, Occupied: count}.Summary(session.ID)
	return &summary, nil
}

// ListBySession returns the session's enrollments, optionally filtered by status.
func (s *EnrollmentService) ListBySession(ctx context.Context, sessionID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enrollment status %q", st))
		}
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListBySession(ctx, sessionID, statuses)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ListForStudent returns the student's non-cancelled enrollments whose sessions overlap [from, to).
func (s *EnrollmentService) ListForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.StudentSession, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is required")
	}
	if err := ValidateWindow(from, to); err != nil {
		return nil, err
	}
	items, err := s.repo.ListForStudent(ctx, studentID, models.TimeRange{From: from.UTC(), To: to.UTC()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student sessions")
	}
	return items, nil
}

// transition applies mutate and persists it conditionally. When another writer got there first the
// enrollment is reloaded and mutate re-run so the caller sees the error matching the new state.
func (s *EnrollmentService) transition(ctx context.Context, enrollment *models.Enrollment, mutate func(*models.Enrollment) error) error {
	expected := enrollment.Status
	if err := mutate(enrollment); err != nil {
		return s.fail(err, "")
	}
	ok, err := s.repo.UpdateIfStatus(ctx, enrollment, expected)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	if ok {
		return nil
	}

	current, err := s.load(ctx, enrollment.ID)
	if err != nil {
		return err
	}
	if err := mutate(current); err != nil {
		return s.fail(err, "")
	}
	return s.fail(appErrors.Clone(appErrors.ErrInvalidState, "enrollment changed concurrently"), "")
}

func (s *EnrollmentService) announceCancel(ctx context.Context, enrollment models.Enrollment, source string) {
	s.metrics.ObserveEnrollment(string(enrollment.Status))
	payload := map[string]any{"source": source}
	if enrollment.CancellationReason != nil {
		payload["reason"] = *enrollment.CancellationReason
	}
	s.events.Publish(ctx, enrollmentEvent(models.EventEnrollmentCancelled, enrollment, payload))
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) loadSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *EnrollmentService) fail(err error, message string) error {
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
