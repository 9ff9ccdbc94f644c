package models

import "time"

// TutorCounts are the headline numbers of a tutor's dashboard. Upcoming means not yet
// ended and not cancelled; completed means ended and not cancelled.
type TutorCounts struct {
	UpcomingSessions    int `db:"upcoming_sessions" json:"upcoming_sessions"`
	UpcomingEnrollments int `db:"upcoming_enrollments" json:"upcoming_enrollments"`
	CompletedSessions   int `db:"completed_sessions" json:"completed_sessions"`
	BannedStudents      int `db:"banned_students" json:"banned_students"`
}

// TutorDashboard is the landing summary of a tutor.
type TutorDashboard struct {
	TutorCounts
	NextSessions []SessionView `json:"next_sessions"`
}

// StudentDashboard is the landing summary of a student.
type StudentDashboard struct {
	ActiveEnrollments int              `json:"active_enrollments"`
	AvailableSessions int              `json:"available_sessions"`
	CompletedSessions int              `json:"completed_sessions"`
	NextEnrollments   []EnrollmentView `json:"next_enrollments"`
}

// CalendarRange bounds a calendar feed by campus date, both ends inclusive.
type CalendarRange struct {
	From time.Time
	To   time.Time
}

// CalendarSeats is attached to events shown to the session owner.
type CalendarSeats struct {
	Confirmed int `json:"confirmed"`
	Max       int `json:"max"`
	Remaining int `json:"remaining"`
}

// CalendarEvent is one session rendered on a calendar.
type CalendarEvent struct {
	SessionID   string         `json:"session_id"`
	Title       string         `json:"title"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Status      SessionStatus  `json:"status"`
	Color       string         `json:"color"`
	TutorID     string         `json:"tutor_id"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Location    string         `json:"location"`
	Description string         `json:"description,omitempty"`
	Seats       *CalendarSeats `json:"seats,omitempty"`
}
