package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

func admissionSnapshot(max, occupied int) models.AdmissionSnapshot {
	return models.AdmissionSnapshot{
		Session: models.Session{
			ID: "s", StartTime: at(9, 0), EndTime: at(10, 0),
			MaxParticipants: max, WaitlistEnabled: true, Status: models.SessionStatusScheduled,
		},
		Occupied: occupied,
	}
}

func TestEnrollmentLifecycleAdmit(t *testing.T) {
	var lc EnrollmentLifecycle

	enrollment, err := lc.Admit(admissionSnapshot(2, 1), "stu", false, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.Equal(t, "s", enrollment.SessionID)
	assert.Equal(t, at(8, 0), enrollment.EnrolledAt)

	_, err = lc.Admit(admissionSnapshot(1, 1), "stu", false, at(8, 0))
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))

	waitlisted, err := lc.Admit(admissionSnapshot(1, 1), "stu", true, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, waitlisted.Status)

	_, err = lc.Admit(admissionSnapshot(2, 1), "stu", true, at(8, 0))
	assert.True(t, appErrors.Is(err, appErrors.ErrSeatsAvailable))

	disabled := admissionSnapshot(1, 1)
	disabled.Session.WaitlistEnabled = false
	_, err = lc.Admit(disabled, "stu", true, at(8, 0))
	assert.True(t, appErrors.Is(err, appErrors.ErrWaitlistDisabled))
}

func TestEnrollmentLifecycleAdmitRejections(t *testing.T) {
	var lc EnrollmentLifecycle

	dup := admissionSnapshot(5, 0)
	dup.Active = &models.Enrollment{ID: "e", Status: models.EnrollmentStatusWaitlisted}
	_, err := lc.Admit(dup, "stu", false, at(8, 0))
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateEnrollment))

	busy := admissionSnapshot(5, 0)
	busy.Windows = []models.OccupiedWindow{{SessionID: "other", StartTime: at(9, 30), EndTime: at(10, 30)}}
	_, err = lc.Admit(busy, "stu", false, at(8, 0))
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentConflict))

	// waitlisting does not claim the calendar
	busyFull := admissionSnapshot(1, 1)
	busyFull.Windows = busy.Windows
	enrollment, err := lc.Admit(busyFull, "stu", true, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, enrollment.Status)

	cancelled := admissionSnapshot(5, 0)
	cancelled.Session.Status = models.SessionStatusCancelled
	_, err = lc.Admit(cancelled, "stu", false, at(8, 0))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	ongoing := admissionSnapshot(5, 0)
	ongoing.Session.Status = models.SessionStatusOngoing
	_, err = lc.Admit(ongoing, "stu", false, at(9, 15))
	assert.NoError(t, err)
}

func TestEnrollmentLifecycleCancel(t *testing.T) {
	var lc EnrollmentLifecycle

	enrollment := models.Enrollment{Status: models.EnrollmentStatusWaitlisted}
	require.NoError(t, lc.Cancel(&enrollment, "changed plans", at(8, 0)))
	assert.Equal(t, models.EnrollmentStatusCancelled, enrollment.Status)
	assert.Equal(t, "changed plans", *enrollment.CancellationReason)

	assert.True(t, appErrors.Is(lc.Cancel(&enrollment, "again", at(8, 0)), appErrors.ErrInvalidState))

	attended := models.Enrollment{Status: models.EnrollmentStatusAttended}
	assert.True(t, appErrors.Is(lc.Cancel(&attended, "late", at(8, 0)), appErrors.ErrInvalidState))

	blank := models.Enrollment{Status: models.EnrollmentStatusEnrolled}
	assert.True(t, appErrors.Is(lc.Cancel(&blank, "", at(8, 0)), appErrors.ErrValidation))
}

func TestEnrollmentLifecycleMarkAttendance(t *testing.T) {
	var lc EnrollmentLifecycle

	enrollment := models.Enrollment{Status: models.EnrollmentStatusEnrolled}
	require.NoError(t, lc.MarkAttendance(&enrollment, false, at(10, 5)))
	assert.Equal(t, models.EnrollmentStatusAbsent, enrollment.Status)
	assert.Equal(t, at(10, 5), *enrollment.AttendanceMarkedAt)

	err := lc.MarkAttendance(&enrollment, true, at(10, 6))
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyMarked))
	assert.Equal(t, models.EnrollmentStatusAbsent, enrollment.Status)

	waitlisted := models.Enrollment{Status: models.EnrollmentStatusWaitlisted}
	assert.True(t, appErrors.Is(lc.MarkAttendance(&waitlisted, true, at(10, 0)), appErrors.ErrInvalidState))
}
