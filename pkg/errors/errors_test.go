package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeAndStatus(t *testing.T) {
	clone := Clone(ErrCapacityExceeded, "session ses-1 is full")

	assert.Equal(t, "CAPACITY_EXCEEDED", clone.Code)
	assert.Equal(t, http.StatusConflict, clone.Status)
	assert.Equal(t, "session ses-1 is full", clone.Message)
	assert.Equal(t, "session is full", ErrCapacityExceeded.Message)
	assert.Equal(t, ErrCapacityExceeded.Message, Clone(ErrCapacityExceeded, "").Message)
	assert.Nil(t, Clone(nil, "x"))
}

func TestIsMatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("admit: %w", Clone(ErrDuplicateEnrollment, "already in"))

	assert.True(t, Is(err, ErrDuplicateEnrollment))
	assert.False(t, Is(err, ErrStudentConflict))
	assert.False(t, Is(sql.ErrNoRows, ErrNotFound))
	assert.False(t, Is(nil, ErrNotFound))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)

	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
	assert.Nil(t, FromError(nil))
}

func TestWrapMessageIncludesCause(t *testing.T) {
	err := Wrap(sql.ErrTxDone, ErrInternal.Code, ErrInternal.Status, "failed to cancel session")

	assert.Equal(t, "failed to cancel session: sql: transaction has already been committed or rolled back", err.Error())
}

func TestConflictCarriesSessionDetails(t *testing.T) {
	err := Conflict(ErrStudentConflict, "ses-9")

	assert.True(t, Is(err, ErrStudentConflict))
	assert.Equal(t, "ses-9", err.Details["conflicting_session_id"])
	assert.Contains(t, err.Error(), "overlaps session ses-9")
	assert.Nil(t, ErrStudentConflict.Details)
}

func TestWithDetailsCopies(t *testing.T) {
	first := ErrValidation.WithDetails("field", "start_time")
	second := first.WithDetails("reason", "required")

	assert.Len(t, first.Details, 1)
	assert.Len(t, second.Details, 2)
	assert.Nil(t, ErrValidation.Details)
}
