package models

import "time"

// Ban prevents a student from enrolling in any session of a tutor.
type Ban struct {
	ID        string    `db:"id" json:"id"`
	TutorID   string    `db:"tutor_id" json:"tutor_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Reason    string    `db:"reason" json:"reason,omitempty"`
	BannedAt  time.Time `db:"banned_at" json:"banned_at"`
}

// BanFilter narrows ban listings.
type BanFilter struct {
	TutorID   string
	StudentID string
	Page      int
	PageSize  int
}

// BanOutcome is returned when a ban is placed.
type BanOutcome struct {
	Ban       Ban `json:"ban"`
	Cancelled int `json:"cancelled_enrollments"`
}
