package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-tutoring-api/internal/models"
	appErrors "github.com/noah-isme/campus-tutoring-api/pkg/errors"
	"github.com/noah-isme/campus-tutoring-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator verifies an access token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT requires a valid bearer token on the request.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return authenticate(validator, bearerToken)
}

// JWTQuery accepts the token from the "token" query parameter as well. Browsers cannot
// set headers on a WebSocket handshake, so the realtime feed authenticates this way.
func JWTQuery(validator TokenValidator) gin.HandlerFunc {
	return authenticate(validator, func(c *gin.Context) (string, error) {
		if token := strings.TrimSpace(c.Query("token")); token != "" {
			return token, nil
		}
		return bearerToken(c)
	})
}

func authenticate(validator TokenValidator, extract func(*gin.Context) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extract(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		claims, err := validator.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// Claims returns the token claims attached by JWT, if any.
func Claims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}
