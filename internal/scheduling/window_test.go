package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/pkg/config"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

// Tuesday morning.
var baseNow = time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return CalendarDate(baseNow).AddDate(0, 0, offset)
}

func validWindow() Window {
	return Window{Date: day(1), Start: models.NewTimeOfDay(9, 0), End: models.NewTimeOfDay(10, 0), MaxSeats: 10}
}

func assertViolation(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidWindow.Code, appErr.Code)
	violation, ok := appErr.Details.(models.WindowViolation)
	require.True(t, ok)
	assert.Equal(t, field, violation.Field)
}

func TestRulesValidateAcceptsWindow(t *testing.T) {
	rules := DefaultRules()
	assert.NoError(t, rules.Validate(validWindow(), baseNow))

	w := validWindow()
	w.Date = day(0)
	assert.NoError(t, rules.Validate(w, baseNow))

	w.Date = day(179)
	assert.NoError(t, rules.Validate(w, baseNow))

	w.Date = day(1)
	w.Start = models.NewTimeOfDay(8, 30)
	w.End = models.NewTimeOfDay(21, 0)
	assert.NoError(t, rules.Validate(w, baseNow))
}

func TestRulesValidateRejections(t *testing.T) {
	rules := DefaultRules()
	cases := []struct {
		name   string
		mutate func(w *Window)
		field  string
	}{
		{"past date", func(w *Window) { w.Date = day(-1) }, "date"},
		{"next sunday", func(w *Window) { w.Date = day(5) }, "date"},
		{"beyond horizon", func(w *Window) { w.Date = day(181) }, "date"},
		{"start before opening", func(w *Window) { w.Start = models.NewTimeOfDay(8, 29) }, "start_time"},
		{"start at closing", func(w *Window) {
			w.Start = models.NewTimeOfDay(21, 0)
			w.End = models.NewTimeOfDay(21, 0)
		}, "start_time"},
		{"end after closing", func(w *Window) { w.End = models.NewTimeOfDay(21, 1) }, "end_time"},
		{"end at opening", func(w *Window) {
			w.Start = models.NewTimeOfDay(8, 30)
			w.End = models.NewTimeOfDay(8, 30)
		}, "end_time"},
		{"end before start", func(w *Window) { w.End = models.NewTimeOfDay(8, 45) }, "end_time"},
		{"zero seats", func(w *Window) { w.MaxSeats = 0 }, "max_seats"},
		{"too many seats", func(w *Window) { w.MaxSeats = 41 }, "max_seats"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := validWindow()
			tc.mutate(&w)
			assertViolation(t, rules.Validate(w, baseNow), tc.field)
		})
	}
}

func TestRulesTodayUsesCampusZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	rules := DefaultRules()
	rules.Location = loc

	lateUTC := time.Date(2026, 10, 20, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), rules.Today(lateUTC))
	assertViolation(t, rules.ValidateDate(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), lateUTC), "date")
}

func TestRulesFromConfig(t *testing.T) {
	rules, err := RulesFromConfig(config.SchedulingConfig{
		Timezone:    "UTC",
		HorizonDays: 30,
		DayOpens:    "09:00",
		DayCloses:   "18:00",
		MinSeats:    2,
		MaxSeats:    12,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, rules.HorizonDays)
	assert.Equal(t, models.NewTimeOfDay(9, 0), rules.Opens)
	assert.Equal(t, models.NewTimeOfDay(18, 0), rules.Closes)
	assert.Equal(t, 2, rules.MinSeats)
	assert.Equal(t, 12, rules.MaxSeats)

	_, err = RulesFromConfig(config.SchedulingConfig{Timezone: "Nowhere/Atlantis"})
	assert.Error(t, err)

	_, err = RulesFromConfig(config.SchedulingConfig{DayOpens: "20:00", DayCloses: "08:00"})
	assert.Error(t, err)
}
