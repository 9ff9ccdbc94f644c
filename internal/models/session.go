package models

import "time"

// SessionStatus represents the lifecycle of a tutoring session.
type SessionStatus string

// Session statuses. Tutors declare SCHEDULED or CANCELLED; the other two are derived from
// the clock and persisted only by reconciliation.
const (
	SessionStatusScheduled  SessionStatus = "SCHEDULED"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
)

// Declarable reports whether a tutor may set the status explicitly.
func (s SessionStatus) Declarable() bool {
	return s == SessionStatusScheduled || s == SessionStatusCancelled
}

// Open reports whether the status accepts new enrollments.
func (s SessionStatus) Open() bool {
	return s == SessionStatusScheduled || s == SessionStatusInProgress
}

// Session is a tutoring time slot owned by a tutor.
type Session struct {
	ID          string        `db:"id" json:"id"`
	TutorID     string        `db:"tutor_id" json:"tutor_id"`
	SubjectID   string        `db:"subject_id" json:"subject_id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	Date        time.Time     `db:"session_date" json:"date"`
	StartTime   TimeOfDay     `db:"start_time" json:"start_time"`
	EndTime     TimeOfDay     `db:"end_time" json:"end_time"`
	Location    string        `db:"location" json:"location"`
	MaxSeats    int           `db:"max_seats" json:"max_seats"`
	Status      SessionStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	TutorID   string
	Status    SessionStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortOrder string
}

// AvailableSessionFilter narrows the sessions a student can still book.
type AvailableSessionFilter struct {
	StudentID string
	// From is the campus date of today; sessions on that date must end after FromTime.
	From      time.Time
	FromTime  TimeOfDay
	SubjectID string
	Page      int
	PageSize  int
}

// SessionSnapshot is the persisted state of a session plus its confirmed seat count.
type SessionSnapshot struct {
	Session        `json:"session"`
	ConfirmedCount int `db:"confirmed_count" json:"confirmed_count"`
}

// SessionView is a read projection: persisted fields plus values derived at read time.
type SessionView struct {
	Session
	EffectiveStatus SessionStatus `json:"effective_status"`
	ConfirmedCount  int           `json:"confirmed_count"`
	RemainingSeats  int           `json:"remaining_seats"`
}

// SeatUpdate is pushed to realtime subscribers after a session changes.
type SeatUpdate struct {
	SessionID       string        `json:"session_id"`
	EffectiveStatus SessionStatus `json:"effective_status"`
	MaxSeats        int           `json:"max_seats"`
	RemainingSeats  int           `json:"remaining_seats"`
	At              time.Time     `json:"at"`
}

// SessionChange is the result of a guarded session update.
type SessionChange struct {
	Before   Session
	After    Session
	Cascaded int
}

// StatusChanged reports whether the declared status moved.
func (c SessionChange) StatusChanged() bool {
	return c.Before.Status != c.After.Status
}

// StatusTransition reports the outcome of a session status change.
type StatusTransition struct {
	SessionID string        `json:"session_id"`
	Previous  SessionStatus `json:"previous"`
	Current   SessionStatus `json:"current"`
	Cascaded  int           `json:"cascaded_enrollments"`
}
