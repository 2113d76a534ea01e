package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/response"
)

// RequireAdmin lets only administrators through. It must run after JWT.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.IsAdmin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
