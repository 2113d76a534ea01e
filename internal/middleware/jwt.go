package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/service"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/logger"
	"github.com/noah-isme/rewear-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when present but does not block. Browsing the
// catalog works anonymously; a valid token only widens what the caller sees.
func OptionalJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.Next()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// CurrentUser returns the claims attached by JWT or OptionalJWT.
func CurrentUser(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func setClaims(c *gin.Context, claims *models.JWTClaims) {
	c.Set(ContextUserKey, claims)
	c.Set(logger.UserIDKey, claims.UserID)
}
