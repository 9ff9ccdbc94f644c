package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/service"
	"github.com/noah-isme/campus-tutoring-api/pkg/response"
)

type banService interface {
	Ban(ctx context.Context, actor models.Actor, req service.BanRequest) (*models.BanOutcome, error)
	Unban(ctx context.Context, actor models.Actor, id string) error
	List(ctx context.Context, actor models.Actor, filter models.BanFilter) ([]models.Ban, *models.Pagination, error)
}

// BanHandler manages tutor bans.
type BanHandler struct {
	bans banService
}

// NewBanHandler constructs BanHandler.
func NewBanHandler(bans banService) *BanHandler {
	return &BanHandler{bans: bans}
}

// List godoc
// @Summary List bans
// @Tags Bans
// @Produce json
// @Param tutor_id query string false "Tutor (administrators only)"
// @Param student_id query string false "Student"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bans [get]
func (h *BanHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.BanFilter{TutorID: c.Query("tutor_id"), StudentID: c.Query("student_id")}
	filter.Page, filter.PageSize = pageParams(c)

	bans, pagination, err := h.bans.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bans, pagination)
}

// Create godoc
// @Summary Ban a student from the tutor's sessions
// @Tags Bans
// @Accept json
// @Produce json
// @Param payload body service.BanRequest true "Ban payload"
// @Success 201 {object} response.Envelope
// @Router /bans [post]
func (h *BanHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.BanRequest
	if !bindJSON(c, &req) {
		return
	}
	outcome, err := h.bans.Ban(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome)
}

// Delete godoc
// @Summary Lift a ban
// @Tags Bans
// @Param id path string true "Ban ID"
// @Success 204
// @Router /bans/{id} [delete]
func (h *BanHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.bans.Unban(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
