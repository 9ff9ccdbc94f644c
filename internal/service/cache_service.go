package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/pkg/cache"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService keeps persisted session snapshots close to the API. Only stored facts are
// cached; derived status and seats are recomputed on every read.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// SessionSnapshot loads a cached session snapshot.
func (s *CacheService) SessionSnapshot(ctx context.Context, sessionID string) (*models.SessionSnapshot, bool) {
	var snapshot models.SessionSnapshot
	hit, err := s.Get(ctx, cache.SessionSnapshotKey(sessionID), &snapshot)
	if err != nil || !hit {
		return nil, false
	}
	return &snapshot, true
}

// StoreSessionSnapshot caches a snapshot with the default TTL.
func (s *CacheService) StoreSessionSnapshot(ctx context.Context, snapshot *models.SessionSnapshot) {
	if snapshot == nil {
		return
	}
	_ = s.Set(ctx, cache.SessionSnapshotKey(snapshot.ID), snapshot, 0)
}

// ForgetSession drops the snapshot of one session.
func (s *CacheService) ForgetSession(ctx context.Context, sessionID string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.Delete(ctx, cache.SessionSnapshotKey(sessionID)); err != nil {
		s.logger.Warn("cache delete failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// ForgetAllSessions drops every session snapshot.
func (s *CacheService) ForgetAllSessions(ctx context.Context) {
	_ = s.Invalidate(ctx, cache.SessionSnapshotPrefix+"*")
}
