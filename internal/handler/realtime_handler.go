package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/pkg/response"
)

type sessionLookup interface {
	GetSession(ctx context.Context, id string) (*models.SessionView, error)
}

// seatFeed attaches an upgraded connection to a topic.
type seatFeed interface {
	Serve(conn *websocket.Conn, topic, userID string)
}

// RealtimeHandler upgrades clients onto the per-session seat feed.
type RealtimeHandler struct {
	sessions sessionLookup
	feed     seatFeed
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRealtimeHandler constructs RealtimeHandler. An empty allowedOrigins accepts every origin.
func NewRealtimeHandler(sessions sessionLookup, feed seatFeed, allowedOrigins []string, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{
		sessions: sessions,
		feed:     feed,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Subscribe streams seats_changed and status_changed events for one session.
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	h.feed.Serve(conn, session.ID, actor.UserID)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		parsed, err := url.Parse(origin)
		return err == nil && parsed.Host == r.Host
	}
}
