package models

import "time"

// EventType names a committed fact announced to collaborators.
type EventType string

// Emitted fact types.
const (
	EventSessionScheduled    EventType = "session.scheduled"
	EventSessionCancelled    EventType = "session.cancelled"
	EventSessionStarted      EventType = "session.started"
	EventSessionCompleted    EventType = "session.completed"
	EventStudentEnrolled     EventType = "enrollment.created"
	EventEnrollmentCancelled EventType = "enrollment.cancelled"
	EventAttendanceMarked    EventType = "enrollment.attendance_marked"
)

// Event is the envelope delivered to notification and analytics consumers.
// Consumers must treat ID as an idempotency key; delivery is at-least-once.
type Event struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	SessionID    string         `json:"session_id"`
	EnrollmentID string         `json:"enrollment_id,omitempty"`
	StudentID    string         `json:"student_id,omitempty"`
	InstructorID string         `json:"instructor_id,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}
