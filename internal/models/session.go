package models

import "time"

// SessionStatus represents the lifecycle of a scheduled session.
type SessionStatus string

// Possible session statuses.
const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusOngoing   SessionStatus = "ONGOING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Valid reports whether the status belongs to the session state set.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusOngoing, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// LocationType describes where a session takes place.
type LocationType string

// Supported location types.
const (
	LocationOnline   LocationType = "ONLINE"
	LocationInPerson LocationType = "IN_PERSON"
	LocationHybrid   LocationType = "HYBRID"
)

// Session is one concrete, time-boxed occurrence of a class definition.
type Session struct {
	ID                 string        `db:"id" json:"id"`
	ClassDefinitionID  string        `db:"class_definition_id" json:"class_definition_id"`
	InstructorID       string        `db:"instructor_id" json:"instructor_id"`
	StartTime          time.Time     `db:"start_time" json:"start_time"`
	EndTime            time.Time     `db:"end_time" json:"end_time"`
	Timezone           string        `db:"timezone" json:"timezone"`
	Title              string        `db:"title" json:"title"`
	LocationType       LocationType  `db:"location_type" json:"location_type"`
	MaxParticipants    int           `db:"max_participants" json:"max_participants"`
	WaitlistEnabled    bool          `db:"waitlist_enabled" json:"waitlist_enabled"`
	Status             SessionStatus `db:"status" json:"status"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// TimeRange is a half-open [From, To) window.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	InstructorID string
	Status       SessionStatus
	Range        TimeRange
}

// SessionCapacity summarises seat usage for a session.
type SessionCapacity struct {
	SessionID       string `json:"session_id"`
	MaxParticipants int    `json:"max_participants"`
	Occupied        int    `json:"occupied"`
	Remaining       int    `json:"remaining"`
	HasCapacity     bool   `json:"has_capacity"`
}
