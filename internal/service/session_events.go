package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/scheduling"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
	"github.com/noah-isme/campus-tutoring-api/pkg/realtime"
)

// EventPublisher pushes session updates to realtime subscribers. Implementations must not block.
type EventPublisher interface {
	Publish(topic, event string, payload interface{})
}

type snapshotReader interface {
	Snapshot(ctx context.Context, id string) (*models.SessionSnapshot, error)
}

// sessionNotifier drops stale cache entries and announces seat or status changes after a
// write has committed. Failures are logged; the write already succeeded.
type sessionNotifier struct {
	sessions  snapshotReader
	cache     *CacheService
	engine    *scheduling.Engine
	publisher EventPublisher
	logger    *zap.Logger
}

func (n *sessionNotifier) changed(ctx context.Context, sessionID, event string) {
	if n == nil {
		return
	}
	n.cache.ForgetSession(ctx, sessionID)
	if n.publisher == nil || n.sessions == nil {
		return
	}
	snapshot, err := n.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			n.logger.Warn("load session for realtime update", zap.String("session_id", sessionID), zap.Error(err))
		}
		return
	}
	now := n.engine.Now()
	view := n.engine.View(snapshot.Session, snapshot.ConfirmedCount, now)
	n.publisher.Publish(sessionID, event, models.SeatUpdate{
		SessionID:       sessionID,
		EffectiveStatus: view.EffectiveStatus,
		MaxSeats:        view.MaxSeats,
		RemainingSeats:  view.RemainingSeats,
		At:              now,
	})
}

func (n *sessionNotifier) seatsChanged(ctx context.Context, sessionID string) {
	n.changed(ctx, sessionID, realtime.EventSeatsChanged)
}

func (n *sessionNotifier) statusChanged(ctx context.Context, sessionID string) {
	n.changed(ctx, sessionID, realtime.EventStatusChanged)
}

// storeError keeps typed errors raised by guards and maps missing rows to NotFound.
func storeError(err error, notFound, internal string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
