package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/repository"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

type moderationItemStore interface {
	List(ctx context.Context, filter models.ItemFilter) ([]models.Item, error)
	SetFeatured(ctx context.Context, id string, featured bool, updatedAt time.Time) error
	FindByID(ctx context.Context, id string) (*models.Item, error)
}

// ModerationService gates which listings reach the public catalog.
type ModerationService struct {
	items  moderationItemStore
	ledger ledgerStore
	cache  *CacheService
	events eventPublisher
	audit  auditLogger
	logger *zap.Logger
	now    func() time.Time
}

// NewModerationService constructs a ModerationService.
func NewModerationService(items moderationItemStore, ledger ledgerStore, cache *CacheService, events eventPublisher, audit auditLogger, logger *zap.Logger) *ModerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationService{
		items:  items,
		ledger: ledger,
		cache:  cache,
		events: events,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Pending returns the moderation queue: unapproved items still available.
func (s *ModerationService) Pending(ctx context.Context, actor *models.JWTClaims) ([]models.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	approved, available := false, true
	items, err := s.items.List(ctx, models.ItemFilter{Approved: &approved, Available: &available})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending items")
	}
	return items, nil
}

// Approve publishes an item. Approving an approved item changes nothing.
func (s *ModerationService) Approve(ctx context.Context, id string, actor *models.JWTClaims) (*models.Item, error) {
	return s.moderate(ctx, id, actor, true)
}

// Reject withdraws an item from the catalog permanently.
func (s *ModerationService) Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.Item, error) {
	return s.moderate(ctx, id, actor, false)
}

func (s *ModerationService) moderate(ctx context.Context, id string, actor *models.JWTClaims, approve bool) (*models.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var (
		result  *models.Item
		before  models.Item
		changed bool
	)
	err := s.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		items, err := tx.LockItems(ctx, id)
		if err != nil {
			return err
		}
		item := items[id]
		if item == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		before = *item

		approved, available := true, item.IsAvailable
		if !approve {
			approved, available = false, false
		}
		if item.IsApproved != approved || item.IsAvailable != available {
			item.IsApproved, item.IsAvailable = approved, available
			item.UpdatedAt = s.now()
			if err := tx.UpdateItemFlags(ctx, item.ID, approved, available, item.UpdatedAt); err != nil {
				return err
			}
			changed = true
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to moderate item")
	}
	if !changed {
		return result, nil
	}

	if before.Visible() != result.Visible() {
		s.cache.InvalidateCatalog(ctx)
	}

	action, event := models.AuditActionItemApprove, models.EventItemApproved
	if !approve {
		action, event = models.AuditActionItemReject, models.EventItemRejected
	}
	recordAudit(ctx, s.audit, s.logger, actor, "moderation-service", auditEntry{
		Action:     action,
		Resource:   itemResource,
		ResourceID: result.ID,
		Old:        map[string]bool{"is_approved": before.IsApproved, "is_available": before.IsAvailable},
		New:        map[string]bool{"is_approved": result.IsApproved, "is_available": result.IsAvailable},
	})
	if s.events != nil {
		s.events.Publish(ctx, models.Event{
			Type:       event,
			Recipients: []string{result.UploaderID},
			Data:       result,
			OccurredAt: result.UpdatedAt,
		})
	}
	return result, nil
}

// Feature toggles whether an item is showcased on the landing page.
func (s *ModerationService) Feature(ctx context.Context, id string, featured bool, actor *models.JWTClaims) (*models.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.items.SetFeatured(ctx, id, featured, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update item")
	}
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, asAppError(err, "failed to load item")
	}

	s.cache.InvalidateCatalog(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, "moderation-service", auditEntry{
		Action:     models.AuditActionItemFeature,
		Resource:   itemResource,
		ResourceID: id,
		New:        map[string]bool{"featured": featured},
	})
	return item, nil
}

func requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	return nil
}
