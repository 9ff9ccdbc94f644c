package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
)

func sessionAt(status models.SessionStatus) models.Session {
	return models.Session{
		ID:        "s-1",
		Date:      time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		StartTime: models.NewTimeOfDay(9, 0),
		EndTime:   models.NewTimeOfDay(10, 0),
		MaxSeats:  3,
		Status:    status,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 20, hour, minute, 0, 0, time.UTC)
}

func TestEffectiveSessionStatus(t *testing.T) {
	s := sessionAt(models.SessionStatusScheduled)
	assert.Equal(t, models.SessionStatusScheduled, EffectiveSessionStatus(s, at(8, 59), time.UTC))
	assert.Equal(t, models.SessionStatusInProgress, EffectiveSessionStatus(s, at(9, 0), time.UTC))
	assert.Equal(t, models.SessionStatusInProgress, EffectiveSessionStatus(s, at(10, 0), time.UTC))
	assert.Equal(t, models.SessionStatusCompleted, EffectiveSessionStatus(s, at(10, 1), time.UTC))

	cancelled := sessionAt(models.SessionStatusCancelled)
	assert.Equal(t, models.SessionStatusCancelled, EffectiveSessionStatus(cancelled, at(8, 0), time.UTC))
	assert.Equal(t, models.SessionStatusCancelled, EffectiveSessionStatus(cancelled, at(12, 0), time.UTC))
}

func TestEffectiveSessionStatusIsDeterministic(t *testing.T) {
	s := sessionAt(models.SessionStatusScheduled)
	now := at(9, 30)
	first := EffectiveSessionStatus(s, now, time.UTC)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, EffectiveSessionStatus(s, now, time.UTC))
	}
}

func TestEffectiveSessionStatusRespectsZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	s := sessionAt(models.SessionStatusScheduled)
	// 07:30 UTC is 09:30 on the campus clock.
	assert.Equal(t, models.SessionStatusInProgress, EffectiveSessionStatus(s, at(7, 30), loc))
	assert.Equal(t, models.SessionStatusScheduled, EffectiveSessionStatus(s, at(7, 30), time.UTC))
}

func TestEffectiveEnrollmentStatus(t *testing.T) {
	assert.Equal(t, models.EnrollmentStatusConfirmed, EffectiveEnrollmentStatus(models.EnrollmentStatusConfirmed, models.SessionStatusScheduled))
	assert.Equal(t, models.EnrollmentStatusConfirmed, EffectiveEnrollmentStatus(models.EnrollmentStatusConfirmed, models.SessionStatusInProgress))
	assert.Equal(t, models.EnrollmentStatusCompleted, EffectiveEnrollmentStatus(models.EnrollmentStatusConfirmed, models.SessionStatusCompleted))
	assert.Equal(t, models.EnrollmentStatusCancelled, EffectiveEnrollmentStatus(models.EnrollmentStatusConfirmed, models.SessionStatusCancelled))
	assert.Equal(t, models.EnrollmentStatusCancelled, EffectiveEnrollmentStatus(models.EnrollmentStatusCancelled, models.SessionStatusCompleted))
}

func TestReconcileTarget(t *testing.T) {
	s := sessionAt(models.SessionStatusScheduled)
	target, changed := ReconcileTarget(s, at(9, 30), time.UTC)
	assert.True(t, changed)
	assert.Equal(t, models.SessionStatusInProgress, target)

	s.Status = target
	_, changed = ReconcileTarget(s, at(9, 30), time.UTC)
	assert.False(t, changed)

	target, changed = ReconcileTarget(s, at(11, 0), time.UTC)
	assert.True(t, changed)
	assert.Equal(t, models.SessionStatusCompleted, target)

	_, changed = ReconcileTarget(sessionAt(models.SessionStatusCancelled), at(11, 0), time.UTC)
	assert.False(t, changed)
}

func TestEngineView(t *testing.T) {
	engine := NewEngine(DefaultRules(), NewFixedClock(at(8, 0)))
	s := sessionAt(models.SessionStatusScheduled)

	view := engine.View(s, 2, engine.Now())
	assert.Equal(t, models.SessionStatusScheduled, view.EffectiveStatus)
	assert.Equal(t, 1, view.RemainingSeats)

	view = engine.View(s, 2, at(11, 0))
	assert.Equal(t, models.SessionStatusCompleted, view.EffectiveStatus)
	assert.Equal(t, 3, view.RemainingSeats)

	detail := models.EnrollmentDetail{
		Enrollment:    models.Enrollment{ID: "e-1", SessionID: s.ID, Status: models.EnrollmentStatusConfirmed},
		SessionDate:   s.Date,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		SessionStatus: s.Status,
	}
	ev := engine.EnrollmentView(detail, at(11, 0))
	assert.Equal(t, models.EnrollmentStatusCompleted, ev.EffectiveStatus)
	assert.Equal(t, models.SessionStatusCompleted, ev.SessionEffectiveStatus)
}

func TestFixedClock(t *testing.T) {
	clock := NewFixedClock(at(8, 0))
	clock.Advance(90 * time.Minute)
	assert.Equal(t, at(9, 30), clock.Now())
	clock.Set(at(12, 0))
	assert.Equal(t, at(12, 0), clock.Now())
}
