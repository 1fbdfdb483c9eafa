package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-session-api/internal/models"
)

var enrollmentColumnNames = []string{"id", "session_id", "student_id", "status", "attendance_marked_at", "cancellation_reason", "cancelled_at", "enrolled_at", "updated_at"}

func expectAdmissionReads(mock sqlmock.Sqlmock, start time.Time, occupied int, windows *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("student:stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_sessions WHERE id = $1 FOR UPDATE")).
		WithArgs("ses-1").
		WillReturnRows(sessionRow(sqlmock.NewRows(sessionColumnNames), "ses-1", "inst-1", start, start.Add(time.Hour), 2, models.SessionStatusScheduled))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE session_id = $1 AND status IN ($2, $3)")).
		WithArgs("ses-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(occupied))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE session_id = $1 AND student_id = $2 AND status <> $3 LIMIT 1")).
		WithArgs("ses-1", "stu-1", models.EnrollmentStatusCancelled).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN class_sessions s ON s.id = e.session_id")).
		WithArgs("stu-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended, models.SessionStatusCancelled, start.Add(time.Hour), start).
		WillReturnRows(windows)
}

func TestEnrollmentRepositoryAdmit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	windows := sqlmock.NewRows([]string{"enrollment_id", "session_id", "start_time", "end_time"}).
		AddRow("enr-9", "ses-9", start.Add(-2*time.Hour), start.Add(-time.Hour))
	expectAdmissionReads(mock, start, 1, windows)
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var snapshot models.AdmissionSnapshot
	enrollment, session, err := repo.Admit(context.Background(), "ses-1", "stu-1", func(s models.AdmissionSnapshot) (*models.Enrollment, error) {
		snapshot = s
		return &models.Enrollment{SessionID: s.Session.ID, StudentID: "stu-1", Status: models.EnrollmentStatusEnrolled}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Occupied)
	assert.Nil(t, snapshot.Active)
	require.Len(t, snapshot.Windows, 1)
	assert.Equal(t, "ses-9", snapshot.Windows[0].SessionID)
	assert.NotEmpty(t, enrollment.ID)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.Equal(t, "inst-1", session.InstructorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitMissingSession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("ses-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.Admit(context.Background(), "ses-1", "stu-1", func(models.AdmissionSnapshot) (*models.Enrollment, error) {
		t.Fatal("decider must not run")
		return nil, nil
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitRejectedByDecider(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	expectAdmissionReads(mock, start, 2, sqlmock.NewRows([]string{"enrollment_id", "session_id", "start_time", "end_time"}))
	mock.ExpectRollback()

	full := errors.New("full")
	_, _, err := repo.Admit(context.Background(), "ses-1", "stu-1", func(models.AdmissionSnapshot) (*models.Enrollment, error) {
		return nil, full
	})
	require.ErrorIs(t, err, full)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitTranslatesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	expectAdmissionReads(mock, start, 0, sqlmock.NewRows([]string{"enrollment_id", "session_id", "start_time", "end_time"}))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_active_session_student_key"})
	mock.ExpectRollback()

	_, _, err := repo.Admit(context.Background(), "ses-1", "stu-1", func(s models.AdmissionSnapshot) (*models.Enrollment, error) {
		return &models.Enrollment{SessionID: "ses-1", StudentID: "stu-1", Status: models.EnrollmentStatusEnrolled}, nil
	})
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateIfStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()
	enrollment := &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusAttended, AttendanceMarkedAt: &now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2")).
		WithArgs("enr-1", models.EnrollmentStatusAttended, now, nil, nil, now, models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateIfStatus(context.Background(), enrollment, models.EnrollmentStatusEnrolled)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListBySession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(enrollmentColumnNames).
		AddRow("enr-1", "ses-1", "stu-1", models.EnrollmentStatusWaitlisted, nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE session_id = $1 AND status = ANY($2) ORDER BY enrolled_at ASC, id ASC")).
		WithArgs("ses-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	enrollments, err := repo.ListBySession(context.Background(), "ses-1", []models.EnrollmentStatus{models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, enrollments[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountOccupied(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments")).
		WithArgs("ses-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountOccupied(context.Background(), "ses-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListForStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	start := from.Add(9 * time.Hour)

	columns := append(append([]string{}, sessionColumnNames...), "enrollment_id", "enrollment_status", "attendance_marked_at",
		"enrollment_cancellation_reason", "enrollment_cancelled_at", "enrolled_at", "enrollment_updated_at")
	rows := sqlmock.NewRows(columns).AddRow("ses-1", "yoga", "inst-1", start, start.Add(time.Hour), "UTC", "Yoga", models.LocationOnline, 5, true,
		models.SessionStatusScheduled, nil, nil, from, from,
		"enr-1", models.EnrollmentStatusEnrolled, nil, nil, nil, from, from)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.status <> $2 AND s.start_time < $3 AND s.end_time > $4")).
		WithArgs("stu-1", models.EnrollmentStatusCancelled, to, from).
		WillReturnRows(rows)

	items, err := repo.ListForStudent(context.Background(), "stu-1", models.TimeRange{From: from, To: to})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ses-1", items[0].Session.ID)
	assert.Equal(t, "enr-1", items[0].Enrollment.ID)
	assert.Equal(t, "ses-1", items[0].Enrollment.SessionID)
	assert.Equal(t, "stu-1", items[0].Enrollment.StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}
