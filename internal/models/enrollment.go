package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusAttended   EnrollmentStatus = "ATTENDED"
	EnrollmentStatusAbsent     EnrollmentStatus = "ABSENT"
	EnrollmentStatusCancelled  EnrollmentStatus = "CANCELLED"
)

// Valid reports whether the status belongs to the enrollment state set.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusWaitlisted, EnrollmentStatusAttended, EnrollmentStatusAbsent, EnrollmentStatusCancelled:
		return true
	}
	return false
}

// OccupiesSeat reports whether the enrollment counts against session capacity
// and against the student's calendar.
func (s EnrollmentStatus) OccupiesSeat() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusAttended
}

// Enrollment captures a student's claim on a seat in a session.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	SessionID          string           `db:"session_id" json:"session_id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	AttendanceMarkedAt *time.Time       `db:"attendance_marked_at" json:"attendance_marked_at,omitempty"`
	CancellationReason *string          `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	EnrolledAt         time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// StudentSession pairs an enrollment with the session it belongs to.
type StudentSession struct {
	Session    Session    `json:"session"`
	Enrollment Enrollment `json:"enrollment"`
}

// OccupiedWindow is a session window already held by a student.
type OccupiedWindow struct {
	EnrollmentID string    `db:"enrollment_id"`
	SessionID    string    `db:"session_id"`
	StartTime    time.Time `db:"start_time"`
	EndTime      time.Time `db:"end_time"`
}

// AdmissionSnapshot is the locked view of a session used to admit a new enrollment.
type AdmissionSnapshot struct {
	Session  Session
	Occupied int
	Active   *Enrollment
	Windows  []OccupiedWindow
}
