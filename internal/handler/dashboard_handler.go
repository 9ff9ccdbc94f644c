package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-tutoring-api/internal/middleware"
	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/pkg/response"
)

type dashboardService interface {
	Tutor(ctx context.Context, actor models.Actor) (*models.TutorDashboard, error)
	Student(ctx context.Context, actor models.Actor) (*models.StudentDashboard, error)
	TutorCalendar(ctx context.Context, actor models.Actor, tutorID string, from, to *time.Time) ([]models.CalendarEvent, error)
	StudentCalendar(ctx context.Context, actor models.Actor, from, to *time.Time) ([]models.CalendarEvent, error)
}

// DashboardHandler serves landing summaries and calendar feeds.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Tutor godoc
// @Summary Tutor dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/tutor [get]
func (h *DashboardHandler) Tutor(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	dashboard, err := h.service.Tutor(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil, middleware.ExtractMeta(c))
}

// Student godoc
// @Summary Student dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/student [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	dashboard, err := h.service.Student(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil, middleware.ExtractMeta(c))
}

// TutorCalendar godoc
// @Summary Calendar feed of a tutor's sessions
// @Tags Dashboard
// @Produce json
// @Param tutor_id query string false "Tutor (required for administrators)"
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /calendar/tutor [get]
func (h *DashboardHandler) TutorCalendar(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	from, to, ok := calendarBounds(c)
	if !ok {
		return
	}
	events, err := h.service.TutorCalendar(c.Request.Context(), actor, c.Query("tutor_id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// StudentCalendar godoc
// @Summary Calendar feed of the student's booked sessions
// @Tags Dashboard
// @Produce json
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /calendar/student [get]
func (h *DashboardHandler) StudentCalendar(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	from, to, ok := calendarBounds(c)
	if !ok {
		return
	}
	events, err := h.service.StudentCalendar(c.Request.Context(), actor, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

func calendarBounds(c *gin.Context) (*time.Time, *time.Time, bool) {
	from, err := optionalDate(c, "from")
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	to, err := optionalDate(c, "to")
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	return from, to, true
}
