package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditEntry describes one audited change.
type auditEntry struct {
	Action     string
	Resource   string
	ResourceID string
	Old        interface{}
	New        interface{}
}

// recordAudit writes an audit log entry. Audit failures are logged, never surfaced.
func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor *models.JWTClaims, source string, entry auditEntry) {
	if audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:    entry.Action,
		Resource:  entry.Resource,
		IPAddress: "system",
		UserAgent: source,
	}
	if actor != nil && actor.UserID != "" {
		userID := actor.UserID
		log.UserID = &userID
	}
	if entry.ResourceID != "" {
		resourceID := entry.ResourceID
		log.ResourceID = &resourceID
	}
	if entry.Old != nil {
		log.OldValues, _ = json.Marshal(entry.Old)
	}
	if entry.New != nil {
		log.NewValues, _ = json.Marshal(entry.New)
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil && logger != nil {
		logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}
