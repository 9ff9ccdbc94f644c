package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

type banRepository interface {
	BanAndCascade(ctx context.Context, tutorID, studentID, reason string) (*models.Ban, []string, error)
	FindByID(ctx context.Context, id string) (*models.Ban, error)
	List(ctx context.Context, filter models.BanFilter) ([]models.Ban, int, error)
	Delete(ctx context.Context, id string) error
}

// BanRequest bans a student from a tutor's sessions. TutorID is required for administrators
// and ignored for tutors.
type BanRequest struct {
	TutorID   string `json:"tutor_id"`
	StudentID string `json:"student_id" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

// BanService manages tutor bans and their enrollment cascade.
type BanService struct {
	repo      banRepository
	cache     *CacheService
	notifier  *sessionNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBanService constructs BanService. sessions supplies the cache and realtime
// notifier used to announce the seats a ban freed.
func NewBanService(repo banRepository, sessions *SessionService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &BanService{repo: repo, metrics: metrics, validator: validate, logger: logger}
	if sessions != nil {
		svc.cache = sessions.cache
		svc.notifier = sessions.notifier
	}
	return svc
}

// Ban records the ban and cancels the student's confirmed enrollments with the tutor.
func (s *BanService) Ban(ctx context.Context, actor models.Actor, req BanRequest) (*models.BanOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ban payload")
	}
	tutorID, err := resolveTutor(actor, req.TutorID)
	if err != nil {
		return nil, err
	}
	if tutorID == req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a tutor cannot ban themselves")
	}
	return s.ban(ctx, tutorID, req.StudentID, req.Reason)
}

func (s *BanService) ban(ctx context.Context, tutorID, studentID, reason string) (*models.BanOutcome, error) {
	ban, affected, err := s.repo.BanAndCascade(ctx, tutorID, studentID, reason)
	if err != nil {
		return nil, storeError(err, "ban not found", "failed to ban student")
	}

	s.metrics.ObserveBanCascade(len(affected))
	s.cache.ForgetAllSessions(ctx)
	for _, sessionID := range affected {
		s.notifier.seatsChanged(ctx, sessionID)
	}

	s.logger.Info("student banned",
		zap.String("tutor_id", tutorID),
		zap.String("student_id", studentID),
		zap.Int("cancelled_enrollments", len(affected)),
	)
	return &models.BanOutcome{Ban: *ban, Cancelled: len(affected)}, nil
}

// Unban lifts a ban. Enrollments cancelled by it are not restored.
func (s *BanService) Unban(ctx context.Context, actor models.Actor, id string) error {
	ban, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return storeError(err, "ban not found", "failed to load ban")
	}
	if !actor.CanManage(ban.TutorID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the banning tutor can lift this ban")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return storeError(err, "ban not found", "failed to lift ban")
	}
	s.cache.ForgetAllSessions(ctx)
	s.logger.Info("ban lifted", zap.String("ban_id", id), zap.String("tutor_id", ban.TutorID), zap.String("student_id", ban.StudentID))
	return nil
}

// List returns bans visible to the actor. Tutors only see their own.
func (s *BanService) List(ctx context.Context, actor models.Actor, filter models.BanFilter) ([]models.Ban, *models.Pagination, error) {
	switch {
	case actor.IsTutor():
		filter.TutorID = actor.UserID
	case actor.IsAdmin():
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot list bans")
	}
	bans, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bans")
	}
	if bans == nil {
		bans = []models.Ban{}
	}
	return bans, paginationOf(filter.Page, filter.PageSize, total), nil
}
