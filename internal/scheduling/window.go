package scheduling

import (
	"fmt"
	"time"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/pkg/config"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

// Rules captures the campus calendar a session window must fit in.
type Rules struct {
	Location    *time.Location
	HorizonDays int
	Opens       models.TimeOfDay
	Closes      models.TimeOfDay
	MinSeats    int
	MaxSeats    int
}

// Window is the candidate schedule of a session.
type Window struct {
	Date     time.Time
	Start    models.TimeOfDay
	End      models.TimeOfDay
	MaxSeats int
}

// DefaultRules mirrors the campus defaults: 180 days ahead, 08:30 to 21:00, 1 to 40 seats.
func DefaultRules() Rules {
	return Rules{
		Location:    time.UTC,
		HorizonDays: 180,
		Opens:       models.NewTimeOfDay(8, 30),
		Closes:      models.NewTimeOfDay(21, 0),
		MinSeats:    1,
		MaxSeats:    40,
	}
}

// RulesFromConfig builds Rules from the scheduling configuration.
func RulesFromConfig(cfg config.SchedulingConfig) (Rules, error) {
	rules := DefaultRules()
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return Rules{}, fmt.Errorf("load campus timezone: %w", err)
		}
		rules.Location = loc
	}
	if cfg.HorizonDays > 0 {
		rules.HorizonDays = cfg.HorizonDays
	}
	if cfg.DayOpens != "" {
		opens, err := models.ParseTimeOfDay(cfg.DayOpens)
		if err != nil {
			return Rules{}, fmt.Errorf("parse day opening time: %w", err)
		}
		rules.Opens = opens
	}
	if cfg.DayCloses != "" {
		closes, err := models.ParseTimeOfDay(cfg.DayCloses)
		if err != nil {
			return Rules{}, fmt.Errorf("parse day closing time: %w", err)
		}
		rules.Closes = closes
	}
	if rules.Opens >= rules.Closes {
		return Rules{}, fmt.Errorf("day opens at %s but closes at %s", rules.Opens, rules.Closes)
	}
	if cfg.MinSeats > 0 {
		rules.MinSeats = cfg.MinSeats
	}
	if cfg.MaxSeats > 0 {
		rules.MaxSeats = cfg.MaxSeats
	}
	if rules.MinSeats > rules.MaxSeats {
		return Rules{}, fmt.Errorf("seat range %d..%d is empty", rules.MinSeats, rules.MaxSeats)
	}
	return rules, nil
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Today returns the campus calendar date of now at midnight UTC.
func (r Rules) Today(now time.Time) time.Time {
	return CalendarDate(now.In(r.location()))
}

// CalendarDate strips the clock part of t, keeping its own year, month and day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Validate checks a window against the calendar rules as seen at now.
func (r Rules) Validate(w Window, now time.Time) error {
	if err := r.ValidateDate(w.Date, now); err != nil {
		return err
	}
	if err := r.ValidateHours(w.Start, w.End); err != nil {
		return err
	}
	return r.ValidateSeats(w.MaxSeats)
}

// ValidateDate rejects past dates, dates beyond the horizon and Sundays.
func (r Rules) ValidateDate(date, now time.Time) error {
	day := CalendarDate(date)
	today := r.Today(now)
	if day.Before(today) {
		return InvalidWindow("date", "date must not be in the past")
	}
	if day.After(today.AddDate(0, 0, r.HorizonDays)) {
		return InvalidWindow("date", fmt.Sprintf("date must be within %d days", r.HorizonDays))
	}
	if day.Weekday() == time.Sunday {
		return InvalidWindow("date", "sessions cannot be scheduled on Sunday")
	}
	return nil
}

// ValidateHours enforces opening hours and a non-empty interval.
func (r Rules) ValidateHours(start, end models.TimeOfDay) error {
	if start < r.Opens || start >= r.Closes {
		return InvalidWindow("start_time", fmt.Sprintf("start time must be between %s and %s", r.Opens, r.Closes))
	}
	if end <= r.Opens || end > r.Closes {
		return InvalidWindow("end_time", fmt.Sprintf("end time must be after %s and no later than %s", r.Opens, r.Closes))
	}
	if end <= start {
		return InvalidWindow("end_time", "end time must be after start time")
	}
	return nil
}

// ValidateSeats enforces the declared capacity range.
func (r Rules) ValidateSeats(seats int) error {
	if seats < r.MinSeats || seats > r.MaxSeats {
		return InvalidWindow("max_seats", fmt.Sprintf("max seats must be between %d and %d", r.MinSeats, r.MaxSeats))
	}
	return nil
}

// InvalidWindow reports a broken scheduling rule on field.
func InvalidWindow(field, reason string) error {
	return appErrors.WithDetails(appErrors.ErrInvalidWindow, reason, models.WindowViolation{Field: field, Reason: reason})
}

// ParseDate reads a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, InvalidWindow("date", "date must use the YYYY-MM-DD format")
	}
	return d, nil
}

// ParseTime reads an HH:MM time of day for field.
func ParseTime(field, raw string) (models.TimeOfDay, error) {
	t, err := models.ParseTimeOfDay(raw)
	if err != nil {
		return 0, InvalidWindow(field, "time must use the HH:MM format")
	}
	return t, nil
}

// TimeOf returns the campus time of day of now, truncated to the minute.
func (r Rules) TimeOf(now time.Time) models.TimeOfDay {
	local := now.In(r.location())
	return models.NewTimeOfDay(local.Hour(), local.Minute())
}
