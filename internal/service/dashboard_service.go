package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/scheduling"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

type tutorCounter interface {
	TutorCounts(ctx context.Context, tutorID string, today time.Time, now models.TimeOfDay) (*models.TutorCounts, error)
}

type sessionBrowser interface {
	ListSessions(ctx context.Context, actor models.Actor, filter models.SessionFilter) ([]models.SessionView, *models.Pagination, error)
	ListAvailable(ctx context.Context, actor models.Actor, filter models.AvailableSessionFilter) ([]models.SessionView, *models.Pagination, error)
}

type enrollmentBrowser interface {
	MyEnrollments(ctx context.Context, actor models.Actor) (*models.MyEnrollments, error)
}

// Calendar colours per effective status.
var calendarColors = map[models.SessionStatus]string{
	models.SessionStatusScheduled:  "#0d6efd",
	models.SessionStatusInProgress: "#198754",
	models.SessionStatusCompleted:  "#6c757d",
	models.SessionStatusCancelled:  "#dc3545",
}

const calendarPageSize = 100

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	UpcomingLimit   int
	CalendarMaxDays int
	CalendarBefore  int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Counter     tutorCounter
	Sessions    sessionBrowser
	Enrollments enrollmentBrowser
	Engine      *scheduling.Engine
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// DashboardService composes the tutor and student landing summaries and calendar feeds
// out of the session and enrollment projections. It never writes.
type DashboardService struct {
	counter     tutorCounter
	sessions    sessionBrowser
	enrollments enrollmentBrowser
	engine      *scheduling.Engine
	logger      *zap.Logger
	cfg         DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = 5
	}
	if cfg.CalendarMaxDays <= 0 {
		cfg.CalendarMaxDays = 186
	}
	if cfg.CalendarBefore <= 0 {
		cfg.CalendarBefore = 31
	}
	engine := params.Engine
	if engine == nil {
		engine = scheduling.NewEngine(scheduling.DefaultRules(), nil)
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		counter:     params.Counter,
		sessions:    params.Sessions,
		enrollments: params.Enrollments,
		engine:      engine,
		logger:      logger,
		cfg:         cfg,
	}
}

// Tutor returns the tutor's counters and next scheduled sessions.
func (s *DashboardService) Tutor(ctx context.Context, actor models.Actor) (*models.TutorDashboard, error) {
	if !actor.IsTutor() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only tutors have a tutor dashboard")
	}
	now := s.engine.Now()
	today := s.engine.Rules.Today(now)

	counts, err := s.counter.TutorCounts(ctx, actor.UserID, today, s.engine.Rules.TimeOf(now))
	if err != nil {
		s.logger.Warn("tutor dashboard counts failed", zap.String("tutor_id", actor.UserID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor dashboard")
	}

	// Stored SCHEDULED rows may already be over; over-fetch and keep the open ones.
	upcoming, _, err := s.sessions.ListSessions(ctx, actor, models.SessionFilter{
		Status:    models.SessionStatusScheduled,
		DateFrom:  &today,
		SortOrder: "asc",
		Page:      1,
		PageSize:  s.cfg.UpcomingLimit * 2,
	})
	if err != nil {
		return nil, err
	}
	next := make([]models.SessionView, 0, s.cfg.UpcomingLimit)
	for _, view := range upcoming {
		if !view.EffectiveStatus.Open() {
			continue
		}
		next = append(next, view)
		if len(next) == s.cfg.UpcomingLimit {
			break
		}
	}
	return &models.TutorDashboard{TutorCounts: *counts, NextSessions: next}, nil
}

// Student returns the student's enrollment counters and next confirmed sessions.
func (s *DashboardService) Student(ctx context.Context, actor models.Actor) (*models.StudentDashboard, error) {
	if !actor.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have a student dashboard")
	}
	mine, err := s.enrollments.MyEnrollments(ctx, actor)
	if err != nil {
		return nil, err
	}
	_, page, err := s.sessions.ListAvailable(ctx, actor, models.AvailableSessionFilter{Page: 1, PageSize: 1})
	if err != nil {
		return nil, err
	}

	dashboard := &models.StudentDashboard{
		ActiveEnrollments: len(mine.Active),
		NextEnrollments:   mine.Active,
	}
	if page != nil {
		dashboard.AvailableSessions = page.TotalCount
	}
	if len(dashboard.NextEnrollments) > s.cfg.UpcomingLimit {
		dashboard.NextEnrollments = dashboard.NextEnrollments[:s.cfg.UpcomingLimit]
	}
	for _, view := range mine.History {
		if view.EffectiveStatus == models.EnrollmentStatusCompleted {
			dashboard.CompletedSessions++
		}
	}
	return dashboard, nil
}

// TutorCalendar lists a tutor's sessions in the range, every status included, with seat
// counts. Administrators must name the tutor.
func (s *DashboardService) TutorCalendar(ctx context.Context, actor models.Actor, tutorID string, from, to *time.Time) ([]models.CalendarEvent, error) {
	switch {
	case actor.IsTutor():
		if tutorID != "" && tutorID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "tutors can only view their own calendar")
		}
	case actor.IsAdmin():
		if tutorID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "tutor_id is required")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students use their own calendar")
	}
	window, err := s.calendarRange(from, to)
	if err != nil {
		return nil, err
	}

	filter := models.SessionFilter{TutorID: tutorID, DateFrom: &window.From, DateTo: &window.To, SortOrder: "asc", PageSize: calendarPageSize}
	events := []models.CalendarEvent{}
	for page := 1; ; page++ {
		filter.Page = page
		views, pagination, err := s.sessions.ListSessions(ctx, actor, filter)
		if err != nil {
			return nil, err
		}
		for _, view := range views {
			event := s.event(view.Session, view.EffectiveStatus)
			event.Description = view.Description
			event.Seats = &models.CalendarSeats{Confirmed: view.ConfirmedCount, Max: view.MaxSeats, Remaining: view.RemainingSeats}
			events = append(events, event)
		}
		if len(views) < calendarPageSize || pagination == nil || page*calendarPageSize >= pagination.TotalCount {
			break
		}
	}
	return events, nil
}

// StudentCalendar lists the sessions the student holds a confirmed seat in, past ones
// included with their effective status.
func (s *DashboardService) StudentCalendar(ctx context.Context, actor models.Actor, from, to *time.Time) ([]models.CalendarEvent, error) {
	if !actor.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have a student calendar")
	}
	window, err := s.calendarRange(from, to)
	if err != nil {
		return nil, err
	}
	mine, err := s.enrollments.MyEnrollments(ctx, actor)
	if err != nil {
		return nil, err
	}

	events := []models.CalendarEvent{}
	for _, group := range [][]models.EnrollmentView{mine.Active, mine.History} {
		for _, view := range group {
			if view.Status != models.EnrollmentStatusConfirmed {
				continue
			}
			day := scheduling.CalendarDate(view.SessionDate)
			if day.Before(window.From) || day.After(window.To) {
				continue
			}
			events = append(events, s.event(view.SessionWindow(), view.SessionEffectiveStatus))
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

func (s *DashboardService) event(session models.Session, status models.SessionStatus) models.CalendarEvent {
	start, end := s.engine.Bounds(session)
	return models.CalendarEvent{
		SessionID: session.ID,
		Title:     session.Title,
		Start:     start,
		End:       end,
		Status:    status,
		Color:     calendarColors[status],
		TutorID:   session.TutorID,
		SubjectID: session.SubjectID,
		Location:  session.Location,
	}
}

// calendarRange defaults to a month back and the booking horizon ahead.
func (s *DashboardService) calendarRange(from, to *time.Time) (models.CalendarRange, error) {
	today := s.engine.Today()
	window := models.CalendarRange{
		From: today.AddDate(0, 0, -s.cfg.CalendarBefore),
		To:   today.AddDate(0, 0, s.engine.Rules.HorizonDays),
	}
	if from != nil {
		window.From = scheduling.CalendarDate(*from)
	}
	if to != nil {
		window.To = scheduling.CalendarDate(*to)
	}
	if window.To.Before(window.From) {
		return models.CalendarRange{}, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if window.To.Sub(window.From) > time.Duration(s.cfg.CalendarMaxDays)*24*time.Hour {
		return models.CalendarRange{}, appErrors.WithDetails(appErrors.ErrValidation, "calendar range is too long", map[string]interface{}{"max_days": s.cfg.CalendarMaxDays})
	}
	return window, nil
}
