package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
	"github.com/noah-isme/class-session-api/pkg/export"
)

func TestRosterServiceExportCSV(t *testing.T) {
	eng := newTestEngine()
	ctx := context.Background()
	session, err := eng.sessions.Schedule(ctx, ScheduleSessionRequest{ClassDefinitionID: "yoga", StartTime: at(9, 0), EndTime: at(10, 0), Timezone: "Europe/Berlin", MaxParticipants: intPtr(1)})
	require.NoError(t, err)
	a, err := eng.enrollments.Enroll(ctx, session.ID, EnrollRequest{StudentID: "a"})
	require.NoError(t, err)
	_, err = eng.enrollments.JoinWaitlist(ctx, session.ID, EnrollRequest{StudentID: "b"})
	require.NoError(t, err)
	_, err = eng.enrollments.Cancel(ctx, a.ID, CancelEnrollmentRequest{Reason: "sick"})
	require.NoError(t, err)

	roster := NewRosterService(sessionStore{eng.store}, enrollmentStore{eng.store}, nil)
	file, err := roster.Export(ctx, session.ID, "CSV")
	require.NoError(t, err)

	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, "roster_"+session.ID+"_20240304.csv", file.Filename)
	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "student_id,enrollment_id,status,enrolled_at,attendance_marked_at,cancellation_reason", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "a,"+a.ID+",CANCELLED,2024-03-04T09:00:00+01:00,,sick"))
	assert.Contains(t, lines[2], ",WAITLISTED,")
}

func TestRosterServiceExportPDF(t *testing.T) {
	eng := newTestEngine()
	session := scheduleYoga(t, eng, 9, 0, 10, 0)

	file, err := NewRosterService(sessionStore{eng.store}, enrollmentStore{eng.store}, nil).Export(context.Background(), session.ID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF-"))
}

func TestRosterServiceExportErrors(t *testing.T) {
	eng := newTestEngine()
	session := scheduleYoga(t, eng, 9, 0, 10, 0)
	roster := NewRosterService(sessionStore{eng.store}, enrollmentStore{eng.store}, nil, export.NewCSVRenderer())

	_, err := roster.Export(context.Background(), session.ID, "pdf")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = roster.Export(context.Background(), "missing", "csv")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	eng.store.listErr = errors.New("connection reset")
	_, err = roster.Export(context.Background(), session.ID, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}
