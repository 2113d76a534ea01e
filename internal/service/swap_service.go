package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/repository"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

const swapResource = "swap_request"

type swapReader interface {
	FindByID(ctx context.Context, id string) (*models.SwapRequest, error)
	List(ctx context.Context, filter models.SwapRequestFilter) ([]models.SwapRequest, int, error)
}

// SwapService owns the swap request lifecycle and point settlement.
type SwapService struct {
	swaps     swapReader
	ledger    ledgerStore
	cache     *CacheService
	metrics   *MetricsService
	events    eventPublisher
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSwapService constructs a SwapService.
func NewSwapService(swaps swapReader, ledger ledgerStore, cache *CacheService, metrics *MetricsService, events eventPublisher, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *SwapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwapService{
		swaps:     swaps,
		ledger:    ledger,
		cache:     cache,
		metrics:   metrics,
		events:    events,
		audit:     audit,
		validator: newValidator(validate),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Request asks for itemID either as a direct swap or as a points redemption.
// Availability, ownership and the requester's balance are checked under row
// locks so a concurrent settlement cannot slip between check and insert.
// Nothing but the new pending request is written.
func (s *SwapService) Request(ctx context.Context, itemID string, req dto.CreateSwapRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	req.OfferedItemID = strings.TrimSpace(req.OfferedItemID)
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid swap request payload")
	}
	mode := models.SwapMode(req.Mode)
	if mode == models.SwapModePoints && req.OfferedItemID != "" {
		return nil, fieldError("offered_item_id", "is only allowed for direct swaps")
	}
	if req.OfferedItemID != "" && req.OfferedItemID == itemID {
		return nil, fieldError("offered_item_id", "must differ from the requested item")
	}

	var created *models.SwapRequest
	start := time.Now()
	err := s.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		items, err := tx.LockItems(ctx, itemID, req.OfferedItemID)
		if err != nil {
			return err
		}
		item := items[itemID]
		if item == nil {
			return appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		if item.UploaderID == actor.UserID {
			return appErrors.Clone(appErrors.ErrSelfSwap, "you cannot request your own item")
		}
		if !item.IsApproved {
			return appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		if !item.IsAvailable {
			return appErrors.Clone(appErrors.ErrItemUnavailable, "item is no longer available")
		}

		users, err := tx.LockUsers(ctx, actor.UserID)
		if err != nil {
			return err
		}
		requester := users[actor.UserID]
		if requester == nil {
			return appErrors.Clone(appErrors.ErrUnauthorized, "requester no longer exists")
		}

		swap := &models.SwapRequest{
			RequesterID:   requester.ID,
			RequesterName: requester.Name,
			OwnerID:       item.UploaderID,
			ItemID:        item.ID,
			ItemTitle:     item.Title,
			Message:       req.Message,
			Status:        models.SwapStatusPending,
			CreatedAt:     s.now(),
		}

		switch mode {
		case models.SwapModePoints:
			if requester.Points < item.PointsValue {
				return appErrors.Clone(appErrors.ErrInsufficientPoints,
					fmt.Sprintf("item costs %d points but you have %d", item.PointsValue, requester.Points))
			}
			points := item.PointsValue
			swap.IsPointsRedemption = true
			swap.PointsOffered = &points
		case models.SwapModeDirect:
			if req.OfferedItemID != "" {
				offered := items[req.OfferedItemID]
				if offered == nil {
					return appErrors.Clone(appErrors.ErrNotFound, "offered item not found")
				}
				if offered.UploaderID != requester.ID {
					return fieldError("offered_item_id", "must be one of your own items")
				}
				if !offered.Visible() {
					return fieldError("offered_item_id", "must be approved and available")
				}
				offeredID, offeredTitle := offered.ID, offered.Title
				swap.OfferedItemID = &offeredID
				swap.OfferedItemTitle = &offeredTitle
			}
		}
		swap.UpdatedAt = swap.CreatedAt

		if err := tx.CreateSwapRequest(ctx, swap); err != nil {
			return err
		}
		created = swap
		return nil
	})
	s.metrics.ObserveDBQuery("swap.request", time.Since(start))
	if err != nil {
		return nil, asAppError(err, "failed to create swap request")
	}

	s.metrics.RecordSwapRequest(mode)
	recordAudit(ctx, s.audit, s.logger, actor, "swap-service", auditEntry{
		Action:     models.AuditActionSwapRequest,
		Resource:   swapResource,
		ResourceID: created.ID,
		New:        created,
	})
	s.publish(ctx, models.EventSwapRequested, created, created.OwnerID)
	return created, nil
}

// Accept moves a pending request to accepted. Only the item owner (or an admin) may accept.
func (s *SwapService) Accept(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	return s.transition(ctx, id, models.SwapActionAccept, actor)
}

// Reject ends a pending or accepted request without side effects.
func (s *SwapService) Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	return s.transition(ctx, id, models.SwapActionReject, actor)
}

// Complete settles an accepted request: items leave the catalog and, for a
// redemption, points move from requester to owner. All of it commits or none of it.
func (s *SwapService) Complete(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	return s.transition(ctx, id, models.SwapActionComplete, actor)
}

func (s *SwapService) transition(ctx context.Context, id string, action models.SwapAction, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var (
		result      *models.SwapRequest
		previous    models.SwapStatus
		transferred int
	)
	start := time.Now()
	err := s.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		req, err := tx.LockSwapRequest(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
			}
			return err
		}
		if !req.Involves(actor.UserID) && !actor.IsAdmin {
			return appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
		}
		if !mayPerform(action, req, actor) {
			return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("you may not %s this request", action))
		}

		next, ok := req.Status.Apply(action)
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot %s a request that is %s", action, req.Status))
		}

		now := s.now()
		switch action {
		case models.SwapActionAccept:
			items, err := tx.LockItems(ctx, req.ItemID)
			if err != nil {
				return err
			}
			if err := requireAvailable(items[req.ItemID], "item"); err != nil {
				return err
			}
		case models.SwapActionComplete:
			moved, err := s.settle(ctx, tx, req, now)
			if err != nil {
				return err
			}
			transferred = moved
		case models.SwapActionReject:
		}

		if err := tx.UpdateSwapStatus(ctx, req.ID, next, now); err != nil {
			return err
		}
		previous = req.Status
		req.Status = next
		req.UpdatedAt = now
		result = req
		return nil
	})
	s.metrics.ObserveDBQuery("swap."+string(action), time.Since(start))
	if err != nil {
		return nil, asAppError(err, "failed to update swap request")
	}

	s.metrics.RecordSwapTransition(result.Status, transferred)
	if result.Status == models.SwapStatusCompleted {
		s.cache.InvalidateCatalog(ctx)
	}
	recordAudit(ctx, s.audit, s.logger, actor, "swap-service", auditEntry{
		Action:     auditActionFor(action),
		Resource:   swapResource,
		ResourceID: result.ID,
		Old:        map[string]models.SwapStatus{"status": previous},
		New:        map[string]interface{}{"status": result.Status, "points_transferred": transferred},
	})
	s.publish(ctx, models.SwapEventFor(result.Status), result, result.RequesterID, result.OwnerID)
	return result, nil
}

// settle applies completion side effects inside tx and returns the points moved.
func (s *SwapService) settle(ctx context.Context, tx repository.LedgerTx, req *models.SwapRequest, now time.Time) (int, error) {
	itemIDs := []string{req.ItemID}
	if !req.IsPointsRedemption && req.OfferedItemID != nil {
		itemIDs = append(itemIDs, *req.OfferedItemID)
	}
	items, err := tx.LockItems(ctx, itemIDs...)
	if err != nil {
		return 0, err
	}
	for i, itemID := range itemIDs {
		label := "item"
		if i > 0 {
			label = "offered item"
		}
		if err := requireAvailable(items[itemID], label); err != nil {
			return 0, err
		}
	}

	transferred := 0
	if req.IsPointsRedemption {
		if req.PointsOffered == nil || *req.PointsOffered <= 0 {
			return 0, fmt.Errorf("redemption %s has no points offered", req.ID)
		}
		value := *req.PointsOffered

		users, err := tx.LockUsers(ctx, req.RequesterID, req.OwnerID)
		if err != nil {
			return 0, err
		}
		requester, owner := users[req.RequesterID], users[req.OwnerID]
		if requester == nil || owner == nil {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "swap participant not found")
		}
		if requester.Points < value {
			return 0, appErrors.Clone(appErrors.ErrInsufficientPoints,
				fmt.Sprintf("requester needs %d points but has %d", value, requester.Points))
		}

		if err := tx.AdjustUserPoints(ctx, requester.ID, -value, now); err != nil {
			return 0, err
		}
		if err := tx.AdjustUserPoints(ctx, owner.ID, value, now); err != nil {
			return 0, err
		}
		swapID := req.ID
		if err := tx.RecordPointTransaction(ctx, &models.PointTransaction{
			UserID:        requester.ID,
			Amount:        -value,
			Kind:          models.PointsRedemptionDebit,
			SwapRequestID: &swapID,
			Description:   "Redeemed " + req.ItemTitle,
			CreatedAt:     now,
		}); err != nil {
			return 0, err
		}
		if err := tx.RecordPointTransaction(ctx, &models.PointTransaction{
			UserID:        owner.ID,
			Amount:        value,
			Kind:          models.PointsRedemptionCredit,
			SwapRequestID: &swapID,
			Description:   "Redemption of " + req.ItemTitle,
			CreatedAt:     now,
		}); err != nil {
			return 0, err
		}
		transferred = value
	}

	for _, itemID := range itemIDs {
		item := items[itemID]
		if err := tx.UpdateItemFlags(ctx, item.ID, item.IsApproved, false, now); err != nil {
			return 0, err
		}
		item.IsAvailable = false
	}
	return transferred, nil
}

func requireAvailable(item *models.Item, label string) error {
	if item == nil {
		return appErrors.Clone(appErrors.ErrNotFound, label+" not found")
	}
	if !item.IsAvailable {
		return appErrors.Clone(appErrors.ErrItemUnavailable, label+" is no longer available")
	}
	return nil
}

// mayPerform encodes who can drive each transition.
func mayPerform(action models.SwapAction, req *models.SwapRequest, actor *models.JWTClaims) bool {
	if actor.IsAdmin {
		return true
	}
	isOwner := actor.UserID == req.OwnerID
	isRequester := actor.UserID == req.RequesterID
	switch action {
	case models.SwapActionAccept:
		return isOwner
	case models.SwapActionReject, models.SwapActionComplete:
		return isOwner || isRequester
	default:
		return false
	}
}

func auditActionFor(action models.SwapAction) string {
	switch action {
	case models.SwapActionAccept:
		return models.AuditActionSwapAccept
	case models.SwapActionReject:
		return models.AuditActionSwapReject
	default:
		return models.AuditActionSwapComplete
	}
}

// Get returns a swap request visible to one of its parties or an admin.
func (s *SwapService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.swaps.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load swap request")
	}
	if !req.Involves(actor.UserID) && !actor.IsAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
	}
	return req, nil
}

// List returns the caller's incoming (as owner) or outgoing (as requester) requests.
func (s *SwapService) List(ctx context.Context, query dto.SwapListQuery, actor *models.JWTClaims) ([]models.SwapRequest, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}

	filter := models.SwapRequestFilter{}
	switch models.SwapBox(strings.ToLower(strings.TrimSpace(query.Box))) {
	case models.SwapBoxIncoming:
		filter.OwnerID = actor.UserID
	case models.SwapBoxOutgoing, "":
		filter.RequesterID = actor.UserID
	default:
		return nil, nil, fieldError("box", "must be incoming or outgoing")
	}

	for _, raw := range strings.Split(query.Status, ",") {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		status := models.SwapStatus(raw)
		if !status.Valid() {
			return nil, nil, fieldError("status", "is not a known status")
		}
		filter.Status = append(filter.Status, status)
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	requests, total, err := s.swaps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list swap requests")
	}
	return requests, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

func (s *SwapService) publish(ctx context.Context, eventType models.EventType, req *models.SwapRequest, recipients ...string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, models.Event{
		Type:       eventType,
		Recipients: recipients,
		Data:       req,
		OccurredAt: req.UpdatedAt,
	})
}
