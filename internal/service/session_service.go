package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/scheduling"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Snapshot(ctx context.Context, id string) (*models.SessionSnapshot, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionSnapshot, int, error)
	ListAvailable(ctx context.Context, filter models.AvailableSessionFilter) ([]models.SessionSnapshot, int, error)
	ActiveOnDate(ctx context.Context, tutorID string, date time.Time, excludeID string) ([]models.Session, error)
	Create(ctx context.Context, session *models.Session, guard models.SessionGuard) error
	UpdateGuarded(ctx context.Context, id string, mutate models.SessionMutation) (*models.SessionChange, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.SessionStatus) (bool, error)
	ListDueForReconcile(ctx context.Context, today time.Time, limit int) ([]models.Session, error)
	Delete(ctx context.Context, id string) error
}

type rosterRepository interface {
	Roster(ctx context.Context, sessionID string) ([]models.RosterEntry, error)
}

// CreateSessionRequest describes payload for creating a session. TutorID is only read
// when an administrator creates a session on behalf of a tutor.
type CreateSessionRequest struct {
	TutorID     string `json:"tutor_id"`
	SubjectID   string `json:"subject_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Date        string `json:"date" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	Location    string `json:"location" validate:"required,max=200"`
	MaxSeats    int    `json:"max_seats"`
}

// UpdateSessionRequest changes the editable fields of a scheduled session.
type UpdateSessionRequest struct {
	Date        *string               `json:"date"`
	StartTime   *string               `json:"start_time"`
	EndTime     *string               `json:"end_time"`
	Location    *string               `json:"location" validate:"omitempty,max=200"`
	Description *string               `json:"description" validate:"omitempty,max=2000"`
	MaxSeats    *int                  `json:"max_seats"`
	Status      *models.SessionStatus `json:"status"`
}

// OverlapCheckRequest asks whether a window collides with a tutor's sessions.
type OverlapCheckRequest struct {
	TutorID   string `json:"tutor_id"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	ExcludeID string `json:"exclude_id"`
}

// ReconcileSummary reports a sweep over sessions whose stored status may be stale.
type ReconcileSummary struct {
	Examined int `json:"examined"`
	Updated  int `json:"updated"`
}

// SessionService coordinates the session lifecycle: windows, overlap, status and seats.
type SessionService struct {
	repo      sessionRepository
	roster    rosterRepository
	engine    *scheduling.Engine
	cache     *CacheService
	notifier  *sessionNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService instantiates SessionService.
func NewSessionService(repo sessionRepository, roster rosterRepository, engine *scheduling.Engine, cache *CacheService, publisher EventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = scheduling.NewEngine(scheduling.DefaultRules(), nil)
	}
	return &SessionService{
		repo:      repo,
		roster:    roster,
		engine:    engine,
		cache:     cache,
		notifier:  &sessionNotifier{sessions: repo, cache: cache, engine: engine, publisher: publisher, logger: logger},
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// CreateSession validates the window against the campus calendar and the tutor's other
// sessions, then stores a SCHEDULED session.
func (s *SessionService) CreateSession(ctx context.Context, actor models.Actor, req CreateSessionRequest) (*models.SessionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	tutorID, err := resolveTutor(actor, req.TutorID)
	if err != nil {
		return nil, err
	}

	window, err := parseWindow(req.Date, req.StartTime, req.EndTime, req.MaxSeats)
	if err != nil {
		return nil, err
	}
	now := s.engine.Now()
	if err := s.engine.Rules.Validate(window, now); err != nil {
		return nil, err
	}

	session := &models.Session{
		TutorID:     tutorID,
		SubjectID:   req.SubjectID,
		Title:       req.Title,
		Description: req.Description,
		Date:        window.Date,
		StartTime:   window.Start,
		EndTime:     window.End,
		Location:    req.Location,
		MaxSeats:    window.MaxSeats,
		Status:      models.SessionStatusScheduled,
	}
	err = s.repo.Create(ctx, session, func(ctx context.Context, lookup models.SessionLookup) error {
		return ensureNoOverlap(ctx, lookup, session.TutorID, session.Date, session.StartTime, session.EndTime, "")
	})
	if err != nil {
		return nil, storeError(err, "session not found", "failed to create session")
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("tutor_id", session.TutorID),
		zap.Time("date", session.Date),
		zap.String("start", session.StartTime.String()),
	)
	view := s.engine.View(*session, 0, s.engine.Now())
	return &view, nil
}

// EditSession applies changes to a session that is still effectively scheduled. Setting
// the status to CANCELLED cascades onto its confirmed enrollments.
func (s *SessionService) EditSession(ctx context.Context, actor models.Actor, id string, req UpdateSessionRequest) (*models.SessionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if req.Status != nil && !req.Status.Declarable() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be SCHEDULED or CANCELLED")
	}

	change, err := s.repo.UpdateGuarded(ctx, id, func(ctx context.Context, current *models.Session, lookup models.SessionLookup) error {
		if !actor.CanManage(current.TutorID) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the owning tutor can edit this session")
		}
		now := s.engine.Now()
		if status := s.engine.SessionStatus(*current, now); status != models.SessionStatusScheduled {
			return appErrors.WithDetails(appErrors.ErrSessionNotOpen, "only scheduled sessions can be edited", map[string]interface{}{"effective_status": status})
		}

		windowChanged, err := applySessionUpdate(current, req)
		if err != nil {
			return err
		}
		if windowChanged {
			window := scheduling.Window{Date: current.Date, Start: current.StartTime, End: current.EndTime, MaxSeats: current.MaxSeats}
			if err := s.engine.Rules.Validate(window, now); err != nil {
				return err
			}
		}
		if current.Status == models.SessionStatusCancelled {
			return nil
		}

		if windowChanged {
			if err := ensureNoOverlap(ctx, lookup, current.TutorID, current.Date, current.StartTime, current.EndTime, current.ID); err != nil {
				return err
			}
		}
		if req.MaxSeats != nil {
			confirmed, err := lookup.ConfirmedCount(ctx, current.ID)
			if err != nil {
				return err
			}
			if current.MaxSeats < confirmed {
				return scheduling.InvalidWindow("max_seats", "max seats cannot drop below the confirmed enrollments")
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "session not found", "failed to update session")
	}

	s.afterChange(ctx, change, false)
	return s.GetSession(ctx, id)
}

// CancelSession marks a session CANCELLED and cancels its confirmed enrollments.
func (s *SessionService) CancelSession(ctx context.Context, actor models.Actor, id string) (*models.StatusTransition, error) {
	change, err := s.repo.UpdateGuarded(ctx, id, func(_ context.Context, current *models.Session, _ models.SessionLookup) error {
		if !actor.CanManage(current.TutorID) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the owning tutor can cancel this session")
		}
		switch s.engine.SessionStatus(*current, s.engine.Now()) {
		case models.SessionStatusCancelled:
			return appErrors.Clone(appErrors.ErrSessionNotOpen, "session is already cancelled")
		case models.SessionStatusCompleted:
			return appErrors.Clone(appErrors.ErrSessionNotOpen, "completed sessions cannot be cancelled")
		}
		current.Status = models.SessionStatusCancelled
		return nil
	})
	if err != nil {
		return nil, storeError(err, "session not found", "failed to cancel session")
	}
	s.afterChange(ctx, change, false)
	return transitionOf(change), nil
}

// RestoreSession lifts a cancellation. Enrollments cancelled by that cancellation come
// back, except those of students the tutor has banned in the meantime.
func (s *SessionService) RestoreSession(ctx context.Context, actor models.Actor, id string) (*models.StatusTransition, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can restore sessions")
	}
	change, err := s.repo.UpdateGuarded(ctx, id, func(ctx context.Context, current *models.Session, lookup models.SessionLookup) error {
		if current.Status != models.SessionStatusCancelled {
			return appErrors.Clone(appErrors.ErrSessionNotOpen, "session is not cancelled")
		}
		if err := s.engine.Rules.ValidateHours(current.StartTime, current.EndTime); err != nil {
			return err
		}
		if err := s.engine.Rules.ValidateSeats(current.MaxSeats); err != nil {
			return err
		}
		restored := *current
		restored.Status = models.SessionStatusScheduled
		target := s.engine.SessionStatus(restored, s.engine.Now())
		if target == models.SessionStatusCompleted {
			return appErrors.Clone(appErrors.ErrSessionNotOpen, "session has already ended")
		}
		if err := ensureNoOverlap(ctx, lookup, current.TutorID, current.Date, current.StartTime, current.EndTime, current.ID); err != nil {
			return err
		}
		current.Status = target
		return nil
	})
	if err != nil {
		return nil, storeError(err, "session not found", "failed to restore session")
	}
	s.afterChange(ctx, change, false)
	return transitionOf(change), nil
}

// DeleteSession removes a session and, through the store, its enrollments.
func (s *SessionService) DeleteSession(ctx context.Context, actor models.Actor, id string) error {
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators can delete sessions")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return storeError(err, "session not found", "failed to delete session")
	}
	s.cache.ForgetSession(ctx, id)
	s.logger.Info("session deleted", zap.String("session_id", id), zap.String("actor_id", actor.UserID))
	return nil
}

// GetSession returns a session with its derived status and seats.
func (s *SessionService) GetSession(ctx context.Context, id string) (*models.SessionView, error) {
	snapshot, err := s.loadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.engine.View(snapshot.Session, snapshot.ConfirmedCount, s.engine.Now())
	return &view, nil
}

// ListSessions returns sessions matching the filter. Tutors only see their own sessions.
// Derived fields are computed per row; nothing is written.
func (s *SessionService) ListSessions(ctx context.Context, actor models.Actor, filter models.SessionFilter) ([]models.SessionView, *models.Pagination, error) {
	switch {
	case actor.IsTutor():
		filter.TutorID = actor.UserID
	case actor.IsAdmin():
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "students browse bookable sessions instead")
	}
	snapshots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return s.views(snapshots), paginationOf(filter.Page, filter.PageSize, total), nil
}

// ListAvailable returns the sessions a student can still book, running ones included.
// The store applies the same rules as Enroll; rows that stop qualifying between the query
// and the projection are dropped from the page and from the total.
func (s *SessionService) ListAvailable(ctx context.Context, actor models.Actor, filter models.AvailableSessionFilter) ([]models.SessionView, *models.Pagination, error) {
	if !actor.IsStudent() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only students can browse bookable sessions")
	}
	now := s.engine.Now()
	filter.StudentID = actor.UserID
	filter.From = s.engine.Rules.Today(now)
	filter.FromTime = s.engine.Rules.TimeOf(now)

	snapshots, total, err := s.repo.ListAvailable(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available sessions")
	}
	views := make([]models.SessionView, 0, len(snapshots))
	for _, snapshot := range snapshots {
		view := s.engine.View(snapshot.Session, snapshot.ConfirmedCount, now)
		if !view.EffectiveStatus.Open() || view.RemainingSeats == 0 {
			total--
			continue
		}
		views = append(views, view)
	}
	if total < len(views) {
		total = len(views)
	}
	return views, paginationOf(filter.Page, filter.PageSize, total), nil
}

// CheckOverlap reports the tutor's sessions colliding with a window without writing.
func (s *SessionService) CheckOverlap(ctx context.Context, actor models.Actor, req OverlapCheckRequest) (*models.OverlapCheck, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid overlap payload")
	}
	tutorID, err := resolveTutor(actor, req.TutorID)
	if err != nil {
		return nil, err
	}
	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	start, err := scheduling.ParseTime("start_time", req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := scheduling.ParseTime("end_time", req.EndTime)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Rules.ValidateHours(start, end); err != nil {
		return nil, err
	}

	existing, err := s.repo.ActiveOnDate(ctx, tutorID, date, req.ExcludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session overlap")
	}
	result := &models.OverlapCheck{Conflicts: []models.OverlapConflict{}}
	for _, conflict := range scheduling.Conflicts(start, end, existing, req.ExcludeID) {
		result.Conflicts = append(result.Conflicts, scheduling.ToConflict(conflict))
	}
	result.Overlaps = len(result.Conflicts) > 0
	return result, nil
}

// EffectiveStatus derives the current lifecycle state of a session.
func (s *SessionService) EffectiveStatus(ctx context.Context, id string) (models.SessionStatus, error) {
	view, err := s.GetSession(ctx, id)
	if err != nil {
		return "", err
	}
	return view.EffectiveStatus, nil
}

// RemainingSeats returns the free seats of a session.
func (s *SessionService) RemainingSeats(ctx context.Context, id string) (int, error) {
	view, err := s.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	return view.RemainingSeats, nil
}

// Reconcile persists the derived status of a session when it differs from the stored one.
// Cancelled sessions are never touched, and a second call with the same clock is a no-op.
func (s *SessionService) Reconcile(ctx context.Context, id string) (*models.StatusTransition, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "session not found", "failed to load session")
	}
	transition := &models.StatusTransition{SessionID: id, Previous: session.Status, Current: session.Status}

	target, changed := s.engine.ReconcileTarget(*session, s.engine.Now())
	if !changed {
		return transition, nil
	}
	updated, err := s.repo.CompareAndSetStatus(ctx, id, session.Status, target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile session")
	}
	if !updated {
		// Another writer moved the status first; report what is stored now.
		fresh, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, storeError(err, "session not found", "failed to load session")
		}
		transition.Current = fresh.Status
		return transition, nil
	}

	transition.Current = target
	s.metrics.RecordTransition(session.Status, target, true)
	s.notifier.statusChanged(ctx, id)
	s.logger.Info("session reconciled", zap.String("session_id", id), zap.String("from", string(session.Status)), zap.String("to", string(target)))
	return transition, nil
}

// ReconcileDue reconciles every stored SCHEDULED or IN_PROGRESS session dated today or earlier.
func (s *SessionService) ReconcileDue(ctx context.Context) (*ReconcileSummary, error) {
	now := s.engine.Now()
	due, err := s.repo.ListDueForReconcile(ctx, s.engine.Rules.Today(now), 500)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions due for reconcile")
	}
	summary := &ReconcileSummary{Examined: len(due)}
	for _, session := range due {
		target, changed := s.engine.ReconcileTarget(session, now)
		if !changed {
			continue
		}
		updated, err := s.repo.CompareAndSetStatus(ctx, session.ID, session.Status, target)
		if err != nil {
			s.logger.Warn("reconcile session failed", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if !updated {
			continue
		}
		summary.Updated++
		s.metrics.RecordTransition(session.Status, target, true)
		s.notifier.statusChanged(ctx, session.ID)
	}
	if summary.Updated > 0 {
		s.logger.Info("reconcile sweep finished", zap.Int("examined", summary.Examined), zap.Int("updated", summary.Updated))
	}
	return summary, nil
}

// Roster lists the confirmed students of a session for its tutor or an administrator.
func (s *SessionService) Roster(ctx context.Context, actor models.Actor, id string) (*models.Roster, error) {
	view, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(view.TutorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning tutor can view the roster")
	}
	entries, err := s.roster.Roster(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if entries == nil {
		entries = []models.RosterEntry{}
	}
	return &models.Roster{Session: *view, Entries: entries}, nil
}

func (s *SessionService) loadSnapshot(ctx context.Context, id string) (*models.SessionSnapshot, error) {
	if snapshot, ok := s.cache.SessionSnapshot(ctx, id); ok {
		return snapshot, nil
	}
	snapshot, err := s.repo.Snapshot(ctx, id)
	if err != nil {
		return nil, storeError(err, "session not found", "failed to load session")
	}
	s.cache.StoreSessionSnapshot(ctx, snapshot)
	return snapshot, nil
}

func (s *SessionService) views(snapshots []models.SessionSnapshot) []models.SessionView {
	now := s.engine.Now()
	views := make([]models.SessionView, 0, len(snapshots))
	for _, snapshot := range snapshots {
		views = append(views, s.engine.View(snapshot.Session, snapshot.ConfirmedCount, now))
	}
	return views
}

func (s *SessionService) afterChange(ctx context.Context, change *models.SessionChange, reconciled bool) {
	if change == nil {
		return
	}
	if change.StatusChanged() {
		s.metrics.RecordTransition(change.Before.Status, change.After.Status, reconciled)
		s.logger.Info("session status changed",
			zap.String("session_id", change.After.ID),
			zap.String("from", string(change.Before.Status)),
			zap.String("to", string(change.After.Status)),
			zap.Int("cascaded_enrollments", change.Cascaded),
		)
		s.notifier.statusChanged(ctx, change.After.ID)
		return
	}
	s.notifier.seatsChanged(ctx, change.After.ID)
}

func transitionOf(change *models.SessionChange) *models.StatusTransition {
	return &models.StatusTransition{
		SessionID: change.After.ID,
		Previous:  change.Before.Status,
		Current:   change.After.Status,
		Cascaded:  change.Cascaded,
	}
}

func resolveTutor(actor models.Actor, requested string) (string, error) {
	switch {
	case actor.IsTutor():
		if requested != "" && requested != actor.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "tutors can only manage their own sessions")
		}
		return actor.UserID, nil
	case actor.IsAdmin():
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "tutor_id is required")
		}
		return requested, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "only tutors can manage sessions")
	}
}

func parseWindow(date, start, end string, seats int) (scheduling.Window, error) {
	d, err := scheduling.ParseDate(date)
	if err != nil {
		return scheduling.Window{}, err
	}
	st, err := scheduling.ParseTime("start_time", start)
	if err != nil {
		return scheduling.Window{}, err
	}
	et, err := scheduling.ParseTime("end_time", end)
	if err != nil {
		return scheduling.Window{}, err
	}
	return scheduling.Window{Date: d, Start: st, End: et, MaxSeats: seats}, nil
}

// applySessionUpdate copies the requested fields onto session and reports whether the
// date, hours or capacity moved.
func applySessionUpdate(session *models.Session, req UpdateSessionRequest) (bool, error) {
	changed := false
	if req.Date != nil {
		d, err := scheduling.ParseDate(*req.Date)
		if err != nil {
			return false, err
		}
		changed = changed || !d.Equal(scheduling.CalendarDate(session.Date))
		session.Date = d
	}
	if req.StartTime != nil {
		t, err := scheduling.ParseTime("start_time", *req.StartTime)
		if err != nil {
			return false, err
		}
		changed = changed || t != session.StartTime
		session.StartTime = t
	}
	if req.EndTime != nil {
		t, err := scheduling.ParseTime("end_time", *req.EndTime)
		if err != nil {
			return false, err
		}
		changed = changed || t != session.EndTime
		session.EndTime = t
	}
	if req.MaxSeats != nil {
		changed = changed || *req.MaxSeats != session.MaxSeats
		session.MaxSeats = *req.MaxSeats
	}
	if req.Location != nil {
		session.Location = *req.Location
	}
	if req.Description != nil {
		session.Description = *req.Description
	}
	if req.Status != nil {
		session.Status = *req.Status
	}
	return changed, nil
}

func ensureNoOverlap(ctx context.Context, lookup models.SessionLookup, tutorID string, date time.Time, start, end models.TimeOfDay, excludeID string) error {
	existing, err := lookup.ActiveOnDate(ctx, tutorID, date, excludeID)
	if err != nil {
		return err
	}
	if conflicts := scheduling.Conflicts(start, end, existing, excludeID); len(conflicts) > 0 {
		return scheduling.OverlapError(conflicts[0])
	}
	return nil
}

func paginationOf(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
