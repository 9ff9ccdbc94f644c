package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-tutoring-api/internal/middleware"
	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/service"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
	"github.com/noah-isme/campus-tutoring-api/pkg/response"
)

type sessionService interface {
	CreateSession(ctx context.Context, actor models.Actor, req service.CreateSessionRequest) (*models.SessionView, error)
	EditSession(ctx context.Context, actor models.Actor, id string, req service.UpdateSessionRequest) (*models.SessionView, error)
	CancelSession(ctx context.Context, actor models.Actor, id string) (*models.StatusTransition, error)
	RestoreSession(ctx context.Context, actor models.Actor, id string) (*models.StatusTransition, error)
	DeleteSession(ctx context.Context, actor models.Actor, id string) error
	GetSession(ctx context.Context, id string) (*models.SessionView, error)
	ListSessions(ctx context.Context, actor models.Actor, filter models.SessionFilter) ([]models.SessionView, *models.Pagination, error)
	ListAvailable(ctx context.Context, actor models.Actor, filter models.AvailableSessionFilter) ([]models.SessionView, *models.Pagination, error)
	CheckOverlap(ctx context.Context, actor models.Actor, req service.OverlapCheckRequest) (*models.OverlapCheck, error)
	EffectiveStatus(ctx context.Context, id string) (models.SessionStatus, error)
	RemainingSeats(ctx context.Context, id string) (int, error)
	Reconcile(ctx context.Context, id string) (*models.StatusTransition, error)
	Roster(ctx context.Context, actor models.Actor, id string) (*models.Roster, error)
}

type rosterExporter interface {
	ExportRoster(ctx context.Context, actor models.Actor, sessionID string, format service.ExportFormat) (*service.ExportResult, error)
}

// SessionHandler exposes tutoring session endpoints.
type SessionHandler struct {
	sessions sessionService
	exports  rosterExporter
}

// NewSessionHandler constructs SessionHandler. exports may be nil when exports are disabled.
func NewSessionHandler(sessions sessionService, exports rosterExporter) *SessionHandler {
	return &SessionHandler{sessions: sessions, exports: exports}
}

// Create godoc
// @Summary Create tutoring session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param tutor_id query string false "Tutor (administrators only)"
// @Param status query string false "Stored status"
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Param order query string false "asc or desc"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.SessionFilter{
		TutorID:   c.Query("tutor_id"),
		Status:    models.SessionStatus(strings.ToUpper(c.Query("status"))),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	var err error
	if filter.DateFrom, err = optionalDate(c, "date_from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.DateTo, err = optionalDate(c, "date_to"); err != nil {
		response.Error(c, err)
		return
	}

	sessions, pagination, err := h.sessions.ListSessions(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination, middleware.ExtractMeta(c))
}

// Available godoc
// @Summary List bookable sessions
// @Tags Sessions
// @Produce json
// @Param subject_id query string false "Subject"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions/available [get]
func (h *SessionHandler) Available(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.AvailableSessionFilter{SubjectID: c.Query("subject_id")}
	filter.Page, filter.PageSize = pageParams(c)

	sessions, pagination, err := h.sessions.ListAvailable(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Status godoc
// @Summary Effective session status
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/status [get]
func (h *SessionHandler) Status(c *gin.Context) {
	status, err := h.sessions.EffectiveStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"session_id": c.Param("id"), "effective_status": status}, nil)
}

// Seats godoc
// @Summary Remaining seats
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/seats [get]
func (h *SessionHandler) Seats(c *gin.Context) {
	remaining, err := h.sessions.RemainingSeats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"session_id": c.Param("id"), "remaining_seats": remaining}, nil)
}

// Update godoc
// @Summary Edit session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.UpdateSessionRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.EditSession(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Cancel godoc
// @Summary Cancel session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	transition, err := h.sessions.CancelSession(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transition, nil)
}

// Restore godoc
// @Summary Restore cancelled session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/restore [post]
func (h *SessionHandler) Restore(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	transition, err := h.sessions.RestoreSession(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transition, nil)
}

// Delete godoc
// @Summary Delete session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.sessions.DeleteSession(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reconcile godoc
// @Summary Persist derived session status
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/reconcile [post]
func (h *SessionHandler) Reconcile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !actor.CanManage(session.TutorID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only the owning tutor can reconcile this session"))
		return
	}
	transition, err := h.sessions.Reconcile(c.Request.Context(), session.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transition, nil)
}

// CheckOverlap godoc
// @Summary Check a window against the tutor's sessions
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.OverlapCheckRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /sessions/overlap-check [post]
func (h *SessionHandler) CheckOverlap(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.OverlapCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.sessions.CheckOverlap(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Roster godoc
// @Summary Confirmed students of a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/roster [get]
func (h *SessionHandler) Roster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	roster, err := h.sessions.Roster(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// ExportRoster godoc
// @Summary Download the roster as CSV or PDF
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /sessions/{id}/roster/export [get]
func (h *SessionHandler) ExportRoster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	result, err := h.exports.ExportRoster(c.Request.Context(), actor, c.Param("id"), service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}

func optionalDate(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must use the YYYY-MM-DD format")
	}
	return &parsed, nil
}
