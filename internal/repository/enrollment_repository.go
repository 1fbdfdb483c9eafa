package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/class-session-api/internal/models"
)

const enrollmentColumns = `id, session_id, student_id, status, attendance_marked_at, cancellation_reason, cancelled_at, enrolled_at, updated_at`

// AdmissionDecider inspects the locked admission snapshot and returns the enrollment to insert.
type AdmissionDecider func(snapshot models.AdmissionSnapshot) (*models.Enrollment, error)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Admit runs capacity, duplicate and student-calendar checks and the insert as one unit.
// The student's advisory lock serialises concurrent requests by the same student and the
// session row lock serialises seat admission, so two requests can never both take the last seat.
// sql.ErrNoRows is returned unchanged when the session does not exist.
func (r *EnrollmentRepository) Admit(ctx context.Context, sessionID, studentID string, decide AdmissionDecider) (enrollment *models.Enrollment, session *models.Session, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin admit enrollment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "student:"+studentID); err != nil {
		return nil, nil, fmt.Errorf("lock student calendar: %w", err)
	}

	var snapshot models.AdmissionSnapshot
	lockQuery := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &snapshot.Session, lockQuery, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock session: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE session_id = $1 AND status IN ($2, $3)`
	if err = tx.GetContext(ctx, &snapshot.Occupied, countQuery, sessionID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended); err != nil {
		return nil, nil, fmt.Errorf("count session seats: %w", err)
	}

	activeQuery := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE session_id = $1 AND student_id = $2 AND status <> $3 LIMIT 1`
	var active models.Enrollment
	if err = tx.GetContext(ctx, &active, activeQuery, sessionID, studentID, models.EnrollmentStatusCancelled); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("find active enrollment: %w", err)
		}
		err = nil
	} else {
		snapshot.Active = &active
	}

	const windowsQuery = `SELECT e.id AS enrollment_id, s.id AS session_id, s.start_time, s.end_time
        FROM enrollments e
        JOIN class_sessions s ON s.id = e.session_id
        WHERE e.student_id = $1 AND e.status IN ($2, $3) AND s.status <> $4 AND s.start_time < $5 AND s.end_time > $6`
	if err = tx.SelectContext(ctx, &snapshot.Windows, windowsQuery, studentID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended, models.SessionStatusCancelled,
		snapshot.Session.EndTime, snapshot.Session.StartTime); err != nil {
		return nil, nil, fmt.Errorf("find student windows: %w", err)
	}

	enrollment, err = decide(snapshot)
	if err != nil {
		return nil, nil, err
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.UpdatedAt.IsZero() {
		enrollment.UpdatedAt = enrollment.EnrolledAt
	}
	const insertQuery = `INSERT INTO enrollments (id, session_id, student_id, status, attendance_marked_at, cancellation_reason, cancelled_at, enrolled_at, updated_at)
        VALUES (:id, :session_id, :student_id, :status, :attendance_marked_at, :cancellation_reason, :cancelled_at, :enrolled_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertQuery, enrollment); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateEnrollment
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("create enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateEnrollment
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("commit admit enrollment: %w", err)
	}
	return enrollment, &snapshot.Session, nil
}

// UpdateIfStatus persists the enrollment's new state only if the stored status still equals expected.
// It reports whether the row changed.
func (r *EnrollmentRepository) UpdateIfStatus(ctx context.Context, enrollment *models.Enrollment, expected models.EnrollmentStatus) (bool, error) {
	const query = `UPDATE enrollments SET status = $2, attendance_marked_at = $3, cancellation_reason = $4, cancelled_at = $5, updated_at = $6
        WHERE id = $1 AND status = $7`
	res, err := r.db.ExecContext(ctx, query, enrollment.ID, enrollment.Status, enrollment.AttendanceMarkedAt,
		enrollment.CancellationReason, enrollment.CancelledAt, enrollment.UpdatedAt, expected)
	if err != nil {
		return false, fmt.Errorf("update enrollment status: %w", err)
	}
	return affected(res)
}

// CountOccupied returns the number of ENROLLED and ATTENDED seats for a session.
func (r *EnrollmentRepository) CountOccupied(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE session_id = $1 AND status IN ($2, $3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended); err != nil {
		return 0, fmt.Errorf("count session seats: %w", err)
	}
	return count, nil
}

// ListBySession returns a session's enrollments, optionally restricted to statuses, oldest first.
func (r *EnrollmentRepository) ListBySession(ctx context.Context, sessionID string, statuses []models.EnrollmentStatus) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE session_id = $1`
	args := []interface{}{sessionID}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		query += " AND status = ANY($2)"
		args = append(args, pq.Array(values))
	}
	query += " ORDER BY enrolled_at ASC, id ASC"

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list session enrollments: %w", err)
	}
	return enrollments, nil
}

type studentSessionRow struct {
	models.Session
	EnrollmentID       string                  `db:"enrollment_id"`
	EnrollmentStatus   models.EnrollmentStatus `db:"enrollment_status"`
	AttendanceMarkedAt *time.Time              `db:"attendance_marked_at"`
	EnrollmentReason   *string                 `db:"enrollment_cancellation_reason"`
	EnrollmentCancelAt *time.Time              `db:"enrollment_cancelled_at"`
	EnrolledAt         time.Time               `db:"enrolled_at"`
	EnrollmentUpdated  time.Time               `db:"enrollment_updated_at"`
}

// ListForStudent returns a student's non-cancelled enrollments whose sessions overlap the range,
// ordered by session start.
func (r *EnrollmentRepository) ListForStudent(ctx context.Context, studentID string, rng models.TimeRange) ([]models.StudentSession, error) {
	const query = `SELECT s.id, s.class_definition_id, s.instructor_id, s.start_time, s.end_time, s.timezone, s.title, s.location_type,
        s.max_participants, s.waitlist_enabled, s.status, s.cancellation_reason, s.cancelled_at, s.created_at, s.updated_at,
        e.id AS enrollment_id, e.status AS enrollment_status, e.attendance_marked_at,
        e.cancellation_reason AS enrollment_cancellation_reason, e.cancelled_at AS enrollment_cancelled_at,
        e.enrolled_at, e.updated_at AS enrollment_updated_at
        FROM enrollments e
        JOIN class_sessions s ON s.id = e.session_id
        WHERE e.student_id = $1 AND e.status <> $2 AND s.start_time < $3 AND s.end_time > $4
        ORDER BY s.start_time ASC, s.id ASC`
	var rows []studentSessionRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, models.EnrollmentStatusCancelled, rng.To, rng.From); err != nil {
		return nil, fmt.Errorf("list student sessions: %w", err)
	}

	result := make([]models.StudentSession, 0, len(rows))
	for _, row := range rows {
		result = append(result, models.StudentSession{
			Session: row.Session,
			Enrollment: models.Enrollment{
				ID:                 row.EnrollmentID,
				SessionID:          row.Session.ID,
				StudentID:          studentID,
				Status:             row.EnrollmentStatus,
				AttendanceMarkedAt: row.AttendanceMarkedAt,
				CancellationReason: row.EnrollmentReason,
				CancelledAt:        row.EnrollmentCancelAt,
				EnrolledAt:         row.EnrolledAt,
				UpdatedAt:          row.EnrollmentUpdated,
			},
		})
	}
	return result, nil
}
