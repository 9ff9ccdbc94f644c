package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-tutoring-api/internal/middleware"
	"github.com/noah-isme/campus-tutoring-api/internal/models"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
	"github.com/noah-isme/campus-tutoring-api/pkg/response"
)

// actorFromContext resolves the authenticated caller or writes a 401.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		size = 20
	}
	return page, size
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return false
	}
	return true
}
