package scheduling

import (
	"time"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
)

// Bounds returns the absolute start and end instants of a session in loc.
func Bounds(s models.Session, loc *time.Location) (time.Time, time.Time) {
	return s.StartTime.On(s.Date, loc), s.EndTime.On(s.Date, loc)
}

// EffectiveSessionStatus derives the lifecycle state of s at now. Cancelled is terminal;
// otherwise only the window and now matter.
func EffectiveSessionStatus(s models.Session, now time.Time, loc *time.Location) models.SessionStatus {
	if s.Status == models.SessionStatusCancelled {
		return models.SessionStatusCancelled
	}
	start, end := Bounds(s, loc)
	switch {
	case now.After(end):
		return models.SessionStatusCompleted
	case !now.Before(start):
		return models.SessionStatusInProgress
	default:
		return models.SessionStatusScheduled
	}
}

// EffectiveEnrollmentStatus combines the declared enrollment status with its session's.
func EffectiveEnrollmentStatus(declared models.EnrollmentStatus, session models.SessionStatus) models.EnrollmentStatus {
	if declared == models.EnrollmentStatusCancelled || session == models.SessionStatusCancelled {
		return models.EnrollmentStatusCancelled
	}
	if session == models.SessionStatusCompleted {
		return models.EnrollmentStatusCompleted
	}
	return models.EnrollmentStatusConfirmed
}

// ReconcileTarget reports the status reconciliation should persist for s, and whether a
// write is needed at all.
func ReconcileTarget(s models.Session, now time.Time, loc *time.Location) (models.SessionStatus, bool) {
	if s.Status == models.SessionStatusCancelled {
		return s.Status, false
	}
	target := EffectiveSessionStatus(s, now, loc)
	return target, target != s.Status
}

// Engine binds the calendar rules to a clock.
type Engine struct {
	Rules Rules
	Clock Clock
}

// NewEngine returns an Engine, defaulting to the system clock in the rules' zone.
func NewEngine(rules Rules, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{Location: rules.location()}
	}
	return &Engine{Rules: rules, Clock: clock}
}

// Now reads the clock.
func (e *Engine) Now() time.Time { return e.Clock.Now() }

// Today returns the campus date at the current instant.
func (e *Engine) Today() time.Time { return e.Rules.Today(e.Clock.Now()) }

// Bounds returns the start and end instants of s on the campus clock.
func (e *Engine) Bounds(s models.Session) (time.Time, time.Time) {
	return Bounds(s, e.Rules.location())
}

// SessionStatus derives the effective status of s at now.
func (e *Engine) SessionStatus(s models.Session, now time.Time) models.SessionStatus {
	return EffectiveSessionStatus(s, now, e.Rules.location())
}

// ReconcileTarget reports the status reconcile would persist for s at now.
func (e *Engine) ReconcileTarget(s models.Session, now time.Time) (models.SessionStatus, bool) {
	return ReconcileTarget(s, now, e.Rules.location())
}

// View projects a persisted snapshot into its read model.
func (e *Engine) View(s models.Session, confirmed int, now time.Time) models.SessionView {
	status := e.SessionStatus(s, now)
	return models.SessionView{
		Session:         s,
		EffectiveStatus: status,
		ConfirmedCount:  confirmed,
		RemainingSeats:  RemainingSeats(s.MaxSeats, confirmed, status),
	}
}

// EnrollmentView projects an enrollment detail into its read model.
func (e *Engine) EnrollmentView(d models.EnrollmentDetail, now time.Time) models.EnrollmentView {
	sessionStatus := e.SessionStatus(d.SessionWindow(), now)
	return models.EnrollmentView{
		EnrollmentDetail:       d,
		EffectiveStatus:        EffectiveEnrollmentStatus(d.Status, sessionStatus),
		SessionEffectiveStatus: sessionStatus,
	}
}
