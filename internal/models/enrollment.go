package models

import "time"

// EnrollmentStatus represents the state of a student's seat in a session.
type EnrollmentStatus string

const (
	EnrollmentStatusConfirmed EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
	// EnrollmentStatusCompleted is never stored; it is derived once the session has ended.
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// CancelReason records why an enrollment left the CONFIRMED state.
type CancelReason string

const (
	CancelReasonStudentWithdrew  CancelReason = "STUDENT_WITHDREW"
	CancelReasonTutorExcluded    CancelReason = "TUTOR_EXCLUDED"
	CancelReasonBanCascade       CancelReason = "BAN_CASCADE"
	CancelReasonSessionCancelled CancelReason = "SESSION_CANCELLED"
)

// Enrollment links a student to a session.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	SessionID    string           `db:"session_id" json:"session_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	CancelReason *CancelReason    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Comment      string           `db:"comment" json:"comment,omitempty"`
	EnrolledAt   time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CancelledAt  *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// Confirmed reports whether the enrollment currently holds a seat.
func (e *Enrollment) Confirmed() bool {
	return e != nil && e.Status == EnrollmentStatusConfirmed
}

// EnrollmentDetail joins an enrollment with the session fields needed to derive its status.
type EnrollmentDetail struct {
	Enrollment
	TutorID       string        `db:"tutor_id" json:"tutor_id"`
	SessionTitle  string        `db:"session_title" json:"session_title"`
	SessionDate   time.Time     `db:"session_date" json:"session_date"`
	StartTime     TimeOfDay     `db:"start_time" json:"start_time"`
	EndTime       TimeOfDay     `db:"end_time" json:"end_time"`
	Location      string        `db:"location" json:"location"`
	SessionStatus SessionStatus `db:"session_status" json:"session_status"`
}

// SessionWindow rebuilds the parts of the session used for status derivation.
func (d EnrollmentDetail) SessionWindow() Session {
	return Session{
		ID:        d.SessionID,
		TutorID:   d.TutorID,
		Title:     d.SessionTitle,
		Date:      d.SessionDate,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		Location:  d.Location,
		Status:    d.SessionStatus,
	}
}

// EnrollmentView adds derived statuses to an enrollment detail.
type EnrollmentView struct {
	EnrollmentDetail
	EffectiveStatus        EnrollmentStatus `json:"effective_status"`
	SessionEffectiveStatus SessionStatus    `json:"session_effective_status"`
}

// MyEnrollments splits a student's enrollments into upcoming and past entries.
type MyEnrollments struct {
	Active  []EnrollmentView `json:"active"`
	History []EnrollmentView `json:"history"`
}

// RosterEntry lists one confirmed student of a session.
type RosterEntry struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Comment      string    `db:"comment" json:"comment,omitempty"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// Roster is the confirmed attendee list of a session.
type Roster struct {
	Session SessionView   `json:"session"`
	Entries []RosterEntry `json:"entries"`
}

// ExclusionResult reports what an exclusion changed.
type ExclusionResult struct {
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	Banned       bool   `json:"banned"`
	Cancelled    int    `json:"cancelled_enrollments"`
	Ban          *Ban   `json:"ban,omitempty"`
}
