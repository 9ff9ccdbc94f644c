package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	"github.com/noah-isme/campus-tutoring-api/internal/service"
	"github.com/noah-isme/campus-tutoring-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, actor models.Actor, sessionID string, req service.EnrollRequest) (*models.Enrollment, error)
	Withdraw(ctx context.Context, actor models.Actor, sessionID string) (*models.Enrollment, error)
	Exclude(ctx context.Context, actor models.Actor, enrollmentID string, req service.ExcludeRequest) (*models.ExclusionResult, error)
	MyEnrollments(ctx context.Context, actor models.Actor) (*models.MyEnrollments, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Book a seat
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.EnrollRequest false "Optional comment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.EnrollRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Give up a seat
// @Tags Enrollments
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/enrollments/me [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Withdraw(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Mine godoc
// @Summary My enrollments split into active and history
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.enrollments.MyEnrollments(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Exclude godoc
// @Summary Remove a student from a session, optionally banning them
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ExcludeRequest false "Exclusion options"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/exclude [post]
func (h *EnrollmentHandler) Exclude(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ExcludeRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.Exclude(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
