package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/scheduling"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

type enrollmentRepository interface {
	Enroll(ctx context.Context, sessionID, studentID, comment string, guard models.EnrollGuard) (*models.Enrollment, error)
	CancelForStudent(ctx context.Context, sessionID, studentID string, reason models.CancelReason) (*models.Enrollment, error)
	CancelByID(ctx context.Context, id string, reason models.CancelReason) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// EnrollRequest carries the optional note a student leaves for the tutor.
type EnrollRequest struct {
	Comment string `json:"comment" validate:"max=500"`
}

// ExcludeRequest removes a student from a session, optionally banning them from every
// session of the tutor.
type ExcludeRequest struct {
	Ban    bool   `json:"ban"`
	Reason string `json:"reason" validate:"max=500"`
}

// EnrollmentService coordinates seats: enroll, withdraw and exclude.
type EnrollmentService struct {
	repo      enrollmentRepository
	sessions  sessionRepository
	bans      *BanService
	engine    *scheduling.Engine
	notifier  *sessionNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService creates the enrollment service on top of the session service.
func NewEnrollmentService(repo enrollmentRepository, sessions *SessionService, bans *BanService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		sessions:  sessions.repo,
		bans:      bans,
		engine:    sessions.engine,
		notifier:  sessions.notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Enroll confirms a seat for the student. The checks run against the locked session row,
// so two students racing for the last seat never both win.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, sessionID string, req EnrollRequest) (*models.Enrollment, error) {
	if !actor.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can enroll")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	enrollment, err := s.repo.Enroll(ctx, sessionID, actor.UserID, req.Comment, s.admit)
	if err != nil {
		err = storeError(err, "session not found", "failed to enroll")
		s.recordOutcome(err)
		return nil, err
	}

	s.metrics.RecordEnrollment(string(models.EnrollmentStatusConfirmed))
	s.notifier.seatsChanged(ctx, sessionID)
	s.logger.Info("student enrolled", zap.String("session_id", sessionID), zap.String("student_id", actor.UserID))
	return enrollment, nil
}

// admit decides whether the snapshot taken under lock allows a new seat.
func (s *EnrollmentService) admit(snapshot models.EnrollmentSnapshot) error {
	if snapshot.Existing.Confirmed() {
		return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}
	if snapshot.Banned {
		return appErrors.Clone(appErrors.ErrBanned, "")
	}
	status := s.engine.SessionStatus(snapshot.Session, s.engine.Now())
	if !status.Open() {
		return appErrors.WithDetails(appErrors.ErrSessionNotOpen, "session is not accepting enrollments", map[string]interface{}{"effective_status": status})
	}
	if !scheduling.HasCapacity(snapshot.Session.MaxSeats, snapshot.ConfirmedCount, status) {
		return appErrors.Clone(appErrors.ErrSessionFull, "")
	}
	return nil
}

// Withdraw cancels the student's own enrollment.
func (s *EnrollmentService) Withdraw(ctx context.Context, actor models.Actor, sessionID string) (*models.Enrollment, error) {
	if !actor.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can withdraw")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "session not found", "failed to load session")
	}
	if s.engine.SessionStatus(*session, s.engine.Now()) == models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrSessionNotOpen, "session has already ended")
	}

	enrollment, err := s.repo.CancelForStudent(ctx, sessionID, actor.UserID, models.CancelReasonStudentWithdrew)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}

	s.notifier.seatsChanged(ctx, sessionID)
	s.logger.Info("student withdrew", zap.String("session_id", sessionID), zap.String("student_id", actor.UserID))
	return enrollment, nil
}

// Exclude removes a student from one of the tutor's sessions. With Ban set the student is
// banned and every confirmed enrollment with the tutor is cancelled in the same transaction.
func (s *EnrollmentService) Exclude(ctx context.Context, actor models.Actor, enrollmentID string, req ExcludeRequest) (*models.ExclusionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exclusion payload")
	}
	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollment")
	}
	if !actor.CanManage(detail.TutorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session tutor can exclude students")
	}

	result := &models.ExclusionResult{EnrollmentID: detail.ID, StudentID: detail.StudentID}
	if req.Ban {
		outcome, err := s.bans.ban(ctx, detail.TutorID, detail.StudentID, req.Reason)
		if err != nil {
			return nil, err
		}
		result.Banned = true
		result.Ban = &outcome.Ban
		result.Cancelled = outcome.Cancelled
		return result, nil
	}

	if !detail.Confirmed() {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "enrollment is not confirmed")
	}
	if _, err := s.repo.CancelByID(ctx, detail.ID, models.CancelReasonTutorExcluded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "enrollment is not confirmed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to exclude student")
	}
	result.Cancelled = 1

	s.notifier.seatsChanged(ctx, detail.SessionID)
	s.logger.Info("student excluded",
		zap.String("session_id", detail.SessionID),
		zap.String("student_id", detail.StudentID),
		zap.String("actor_id", actor.UserID),
	)
	return result, nil
}

// MyEnrollments lists the student's enrollments. Active holds confirmed seats in sessions
// that have not ended, soonest first; everything else is history.
func (s *EnrollmentService) MyEnrollments(ctx context.Context, actor models.Actor) (*models.MyEnrollments, error) {
	if !actor.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have enrollments")
	}
	details, err := s.repo.ListByStudent(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	now := s.engine.Now()
	result := &models.MyEnrollments{Active: []models.EnrollmentView{}, History: []models.EnrollmentView{}}
	for _, detail := range details {
		view := s.engine.EnrollmentView(detail, now)
		if view.EffectiveStatus == models.EnrollmentStatusConfirmed {
			result.Active = append(result.Active, view)
			continue
		}
		result.History = append(result.History, view)
	}
	sort.SliceStable(result.Active, func(i, j int) bool {
		a, b := result.Active[i], result.Active[j]
		if !a.SessionDate.Equal(b.SessionDate) {
			return a.SessionDate.Before(b.SessionDate)
		}
		return a.StartTime < b.StartTime
	})
	return result, nil
}

func (s *EnrollmentService) recordOutcome(err error) {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return
	}
	switch appErr.Code {
	case appErrors.ErrAlreadyEnrolled.Code, appErrors.ErrBanned.Code, appErrors.ErrSessionNotOpen.Code, appErrors.ErrSessionFull.Code:
		s.metrics.RecordEnrollment(appErr.Code)
	}
}
