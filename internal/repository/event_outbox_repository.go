package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-session-api/internal/models"
)

// EventOutboxRepository records every announced fact until all sinks accepted it.
type EventOutboxRepository struct {
	db *sqlx.DB
}

// NewEventOutboxRepository constructs the repository.
func NewEventOutboxRepository(db *sqlx.DB) *EventOutboxRepository {
	return &EventOutboxRepository{db: db}
}

// Append stores the event envelope. Appending an id twice keeps the first row.
func (r *EventOutboxRepository) Append(ctx context.Context, event models.Event) error {
	envelope, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event %s: %w", event.ID, err)
	}
	const query = `INSERT INTO event_outbox (id, event_type, session_id, envelope, occurred_at)
        VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, event.ID, event.Type, event.SessionID, envelope, event.OccurredAt); err != nil {
		return fmt.Errorf("append outbox event %s: %w", event.ID, err)
	}
	return nil
}

type outboxRow struct {
	ID       string `db:"id"`
	Envelope []byte `db:"envelope"`
}

// Pending returns undelivered events that occurred at or before the cutoff. Rows that failed
// least often come first so one poisoned event cannot starve the rest.
func (r *EventOutboxRepository) Pending(ctx context.Context, cutoff time.Time, limit int) ([]models.Event, error) {
	const query = `SELECT id, envelope FROM event_outbox
        WHERE delivered_at IS NULL AND occurred_at <= $1
        ORDER BY attempts ASC, occurred_at ASC, id ASC LIMIT $2`
	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list outbox events: %w", err)
	}

	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		var event models.Event
		if err := json.Unmarshal(row.Envelope, &event); err != nil {
			return nil, fmt.Errorf("decode outbox event %s: %w", row.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// MarkDelivered stamps the event as accepted by every sink.
func (r *EventOutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE event_outbox SET delivered_at = $2 WHERE id = $1 AND delivered_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark outbox event %s delivered: %w", id, err)
	}
	return nil
}

// RecordFailure counts a failed delivery attempt and keeps the last cause.
func (r *EventOutboxRepository) RecordFailure(ctx context.Context, id, cause string) error {
	const query = `UPDATE event_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1 AND delivered_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, cause); err != nil {
		return fmt.Errorf("record outbox failure %s: %w", id, err)
	}
	return nil
}
