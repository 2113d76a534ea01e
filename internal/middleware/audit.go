package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records an audit log entry after a successful request. It suits read
// endpoints that expose sensitive data; mutations audit themselves in the
// service layer.
func Audit(repo auditWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if repo == nil || c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := CurrentUser(c); ok {
			id := claims.UserID
			userID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"query":   c.Request.URL.RawQuery,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		if err := repo.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			UserID:    userID,
			Action:    action,
			Resource:  resource,
			NewValues: body,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}); err != nil {
			logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
		}
	}
}
