package models

import "time"

// OverlapConflict describes an existing session that collides with a requested window.
type OverlapConflict struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
}

// WindowViolation names the field that broke a scheduling rule.
type WindowViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// OverlapCheck is the result of a dry-run overlap query.
type OverlapCheck struct {
	Overlaps  bool              `json:"overlaps"`
	Conflicts []OverlapConflict `json:"conflicts"`
}
