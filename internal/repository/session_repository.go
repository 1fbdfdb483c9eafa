package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-session-api/internal/models"
)

const sessionColumns = `id, class_definition_id, instructor_id, start_time, end_time, timezone, title, location_type,
        max_participants, waitlist_enabled, status, cancellation_reason, cancelled_at, created_at, updated_at`

// SessionRepository provides persistence for scheduled sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateExclusive inserts a session while holding the instructor's advisory lock so that
// concurrent requests for the same instructor observe each other. check receives every
// non-cancelled session of the instructor overlapping the new window and may veto the insert.
func (r *SessionRepository) CreateExclusive(ctx context.Context, session *models.Session, check func(existing []models.Session) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "instructor:"+session.InstructorID); err != nil {
		return fmt.Errorf("lock instructor calendar: %w", err)
	}

	overlapQuery := `SELECT ` + sessionColumns + ` FROM class_sessions
        WHERE instructor_id = $1 AND status <> $2 AND start_time < $3 AND end_time > $4
        ORDER BY start_time ASC`
	var existing []models.Session
	if err = tx.SelectContext(ctx, &existing, overlapQuery, session.InstructorID, models.SessionStatusCancelled, session.EndTime, session.StartTime); err != nil {
		return fmt.Errorf("find instructor overlaps: %w", err)
	}
	if check != nil {
		if err = check(existing); err != nil {
			return err
		}
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}

	const insertQuery = `INSERT INTO class_sessions (id, class_definition_id, instructor_id, start_time, end_time, timezone, title,
        location_type, max_participants, waitlist_enabled, status, cancellation_reason, cancelled_at, created_at, updated_at)
        VALUES (:id, :class_definition_id, :instructor_id, :start_time, :end_time, :timezone, :title, :location_type,
        :max_participants, :waitlist_enabled, :status, :cancellation_reason, :cancelled_at, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertQuery, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// Cancel persists a cancellation only if the session is still live. It reports whether a row changed.
func (r *SessionRepository) Cancel(ctx context.Context, session *models.Session) (bool, error) {
	const query = `UPDATE class_sessions SET status = $2, cancellation_reason = $3, cancelled_at = $4, updated_at = $5
        WHERE id = $1 AND status IN ($6, $7)`
	res, err := r.db.ExecContext(ctx, query, session.ID, models.SessionStatusCancelled, session.CancellationReason, session.CancelledAt, session.UpdatedAt,
		models.SessionStatusScheduled, models.SessionStatusOngoing)
	if err != nil {
		return false, fmt.Errorf("cancel session: %w", err)
	}
	return affected(res)
}

// TransitionStatus moves a session from one status to another, re-checking the current status
// at commit. It reports false when the row was no longer in from.
func (r *SessionRepository) TransitionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) (bool, error) {
	const query = `UPDATE class_sessions SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, at)
	if err != nil {
		return false, fmt.Errorf("transition session status: %w", err)
	}
	return affected(res)
}

// ListByInstructor returns an instructor's sessions overlapping the range ordered by start time.
func (r *SessionRepository) ListByInstructor(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions
        WHERE instructor_id = $1 AND start_time < $2 AND end_time > $3`
	args := []interface{}{filter.InstructorID, filter.Range.To, filter.Range.From}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	query += " ORDER BY start_time ASC, id ASC"

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions by instructor: %w", err)
	}
	return sessions, nil
}

// ListDueForStart returns SCHEDULED sessions whose start has passed.
func (r *SessionRepository) ListDueForStart(ctx context.Context, now time.Time, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions
        WHERE status = $1 AND start_time <= $2 ORDER BY start_time ASC LIMIT $3`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionStatusScheduled, now, limit); err != nil {
		return nil, fmt.Errorf("list sessions due for start: %w", err)
	}
	return sessions, nil
}

// ListDueForCompletion returns ONGOING sessions whose end has passed.
func (r *SessionRepository) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions
        WHERE status = $1 AND end_time <= $2 ORDER BY end_time ASC LIMIT $3`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionStatusOngoing, now, limit); err != nil {
		return nil, fmt.Errorf("list sessions due for completion: %w", err)
	}
	return sessions, nil
}

// ListCancelledWithActiveEnrollments returns CANCELLED sessions, cancelled at or before cancelledBefore,
// that still hold ENROLLED or WAITLISTED enrollments.
func (r *SessionRepository) ListCancelledWithActiveEnrollments(ctx context.Context, cancelledBefore time.Time, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions
        WHERE status = $1 AND COALESCE(cancelled_at, updated_at) <= $2
        AND EXISTS (SELECT 1 FROM enrollments e WHERE e.session_id = class_sessions.id AND e.status IN ($3, $4))
        ORDER BY COALESCE(cancelled_at, updated_at) ASC LIMIT $5`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionStatusCancelled, cancelledBefore,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted, limit); err != nil {
		return nil, fmt.Errorf("list cancelled sessions with active enrollments: %w", err)
	}
	return sessions, nil
}
