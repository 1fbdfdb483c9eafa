package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

// EnrollmentLifecycle validates enrollment state transitions against a locked admission snapshot.
type EnrollmentLifecycle struct{}

// Admit decides the initial status of a new enrollment. waitlist requests a WAITLISTED seat.
func (EnrollmentLifecycle) Admit(snapshot models.AdmissionSnapshot, studentID string, waitlist bool, now time.Time) (*models.Enrollment, error) {
	session := snapshot.Session
	if session.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("session is %s", strings.ToLower(string(session.Status))))
	}
	if snapshot.Active != nil {
		return nil, appErrors.ErrDuplicateEnrollment
	}
	gate := CapacityGate{MaxParticipants: session.MaxParticipants, Occupied: snapshot.Occupied}

	status := models.EnrollmentStatusEnrolled
	if waitlist {
		if !session.WaitlistEnabled {
			return nil, appErrors.ErrWaitlistDisabled
		}
		if gate.HasSeat() {
			return nil, appErrors.ErrSeatsAvailable
		}
		status = models.EnrollmentStatusWaitlisted
	} else {
		if !gate.HasSeat() {
			return nil, appErrors.ErrCapacityExceeded
		}
		target := Window{ID: session.ID, Start: session.StartTime, End: session.EndTime}
		if hit, ok := FirstConflict(target, occupiedWindows(snapshot.Windows), session.ID); ok {
			return nil, appErrors.Conflict(appErrors.ErrStudentConflict, hit.ID)
		}
	}

	return &models.Enrollment{
		SessionID:  session.ID,
		StudentID:  studentID,
		Status:     status,
		EnrolledAt: now,
		UpdatedAt:  now,
	}, nil
}

// Cancel moves an ENROLLED or WAITLISTED enrollment to CANCELLED.
func (EnrollmentLifecycle) Cancel(enrollment *models.Enrollment, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}
	switch enrollment.Status {
	case models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted:
	default:
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("enrollment is %s", strings.ToLower(string(enrollment.Status))))
	}
	enrollment.Status = models.EnrollmentStatusCancelled
	enrollment.CancellationReason = &reason
	enrollment.CancelledAt = &now
	enrollment.UpdatedAt = now
	return nil
}

// MarkAttendance records ATTENDED or ABSENT exactly once.
func (EnrollmentLifecycle) MarkAttendance(enrollment *models.Enrollment, attended bool, now time.Time) error {
	if enrollment.AttendanceMarkedAt != nil ||
		enrollment.Status == models.EnrollmentStatusAttended ||
		enrollment.Status == models.EnrollmentStatusAbsent {
		return appErrors.ErrAlreadyMarked
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("enrollment is %s", strings.ToLower(string(enrollment.Status))))
	}
	enrollment.Status = models.EnrollmentStatusAbsent
	if attended {
		enrollment.Status = models.EnrollmentStatusAttended
	}
	enrollment.AttendanceMarkedAt = &now
	enrollment.UpdatedAt = now
	return nil
}
