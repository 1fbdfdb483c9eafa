package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

func TestSessionLifecycleCheckCreate(t *testing.T) {
	var lc SessionLifecycle
	existing := []models.Session{{ID: "s1", InstructorID: "i", StartTime: at(9, 0), EndTime: at(10, 0), Status: models.SessionStatusScheduled}}

	err := lc.CheckCreate(models.Session{ClassDefinitionID: "c", InstructorID: "i", StartTime: at(9, 30), EndTime: at(10, 30)}, existing)
	assert.True(t, appErrors.Is(err, appErrors.ErrInstructorConflict))
	assert.Equal(t, "s1", appErrors.FromError(err).Details["conflicting_session_id"])

	err = lc.CheckCreate(models.Session{ClassDefinitionID: "c", InstructorID: "i", StartTime: at(10, 0), EndTime: at(11, 0)}, existing)
	assert.NoError(t, err)

	err = lc.CheckCreate(models.Session{ClassDefinitionID: "c", InstructorID: "i", StartTime: at(11, 0), EndTime: at(10, 0)}, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidWindow))

	err = lc.CheckCreate(models.Session{ClassDefinitionID: "c", StartTime: at(10, 0), EndTime: at(11, 0)}, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSessionLifecycleCancel(t *testing.T) {
	var lc SessionLifecycle
	session := models.Session{ID: "s", Status: models.SessionStatusOngoing}

	require.True(t, appErrors.Is(lc.Cancel(&session, "  ", at(8, 0)), appErrors.ErrValidation))
	assert.Equal(t, models.SessionStatusOngoing, session.Status)

	require.NoError(t, lc.Cancel(&session, "instructor sick", at(8, 0)))
	assert.Equal(t, models.SessionStatusCancelled, session.Status)
	require.NotNil(t, session.CancellationReason)
	assert.Equal(t, "instructor sick", *session.CancellationReason)
	assert.Equal(t, at(8, 0), *session.CancelledAt)

	assert.True(t, appErrors.Is(lc.Cancel(&session, "again", at(8, 5)), appErrors.ErrInvalidState))
}

func TestSessionLifecycleSweep(t *testing.T) {
	var lc SessionLifecycle
	session := models.Session{Status: models.SessionStatusScheduled, StartTime: at(9, 0), EndTime: at(10, 0)}

	assert.False(t, lc.SweepToOngoing(session, at(8, 59)))
	assert.True(t, lc.SweepToOngoing(session, at(9, 0)))
	assert.False(t, lc.SweepToCompleted(session, at(11, 0)))

	session.Status = models.SessionStatusOngoing
	assert.False(t, lc.SweepToOngoing(session, at(9, 30)))
	assert.True(t, lc.SweepToCompleted(session, at(10, 0)))

	session.Status = models.SessionStatusCancelled
	assert.False(t, lc.SweepToCompleted(session, at(11, 0)))
}

func TestSessionLifecycleOverride(t *testing.T) {
	var lc SessionLifecycle
	session := models.Session{Status: models.SessionStatusScheduled}

	changed, err := lc.Override(session, models.SessionStatusScheduled)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = lc.Override(session, models.SessionStatusCompleted)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = lc.Override(session, "PAUSED")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	session.Status = models.SessionStatusCompleted
	_, err = lc.Override(session, models.SessionStatusOngoing)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}
