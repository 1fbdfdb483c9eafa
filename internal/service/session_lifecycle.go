package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

// overrideCancelReason is recorded when an administrator forces CANCELLED through a status override.
const overrideCancelReason = "administrative override"

// SessionLifecycle validates session state transitions. It never touches storage.
type SessionLifecycle struct{}

// CheckCreate validates a new session against the instructor's existing sessions.
func (SessionLifecycle) CheckCreate(session models.Session, existing []models.Session) error {
	if strings.TrimSpace(session.ClassDefinitionID) == "" || strings.TrimSpace(session.InstructorID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "class definition and instructor are required")
	}
	if err := ValidateWindow(session.StartTime, session.EndTime); err != nil {
		return err
	}
	target := Window{ID: session.ID, Start: session.StartTime, End: session.EndTime}
	if hit, ok := FirstConflict(target, sessionWindows(existing), session.ID); ok {
		return appErrors.Conflict(appErrors.ErrInstructorConflict, hit.ID)
	}
	return nil
}

// Cancel moves a live session to CANCELLED recording the reason.
func (SessionLifecycle) Cancel(session *models.Session, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}
	if session.Status.Terminal() {
		return terminalError(session.Status)
	}
	session.Status = models.SessionStatusCancelled
	session.CancellationReason = &reason
	session.CancelledAt = &now
	session.UpdatedAt = now
	return nil
}

// SweepToOngoing reports whether the session should start at now.
// A session that already left SCHEDULED is not an error, only not eligible.
func (SessionLifecycle) SweepToOngoing(session models.Session, now time.Time) bool {
	return session.Status == models.SessionStatusScheduled && !now.Before(session.StartTime)
}

// SweepToCompleted reports whether an ongoing session should complete at now.
func (SessionLifecycle) SweepToCompleted(session models.Session, now time.Time) bool {
	return session.Status == models.SessionStatusOngoing && !now.Before(session.EndTime)
}

// Override validates an administrative status change. It returns false when the
// session already has the requested status.
func (SessionLifecycle) Override(session models.Session, target models.SessionStatus) (bool, error) {
	if !target.Valid() {
		return false, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("unknown session status %q", target))
	}
	if session.Status.Terminal() {
		return false, terminalError(session.Status)
	}
	if session.Status == target {
		return false, nil
	}
	return true, nil
}

func terminalError(status models.SessionStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("session is %s", strings.ToLower(string(status))))
}
