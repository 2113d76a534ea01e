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

const itemResource = "item"

type itemStore interface {
	Create(ctx context.Context, item *models.Item) error
	FindByID(ctx context.Context, id string) (*models.Item, error)
	List(ctx context.Context, filter models.ItemFilter) ([]models.Item, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type ledgerStore interface {
	WithinTx(ctx context.Context, fn func(repository.LedgerTx) error) error
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.Event)
}

// ListingPolicy bounds what a member may list. MaxPoints of zero means no upper bound.
type ListingPolicy struct {
	MinPoints        int
	MaxPoints        int
	MaxImages        int
	PlaceholderImage string
}

// ItemServiceConfig wires optional collaborators and policy into ItemService.
type ItemServiceConfig struct {
	Policy       ListingPolicy
	CatalogTTL   time.Duration
	FeaturedSize int
	Cache        *CacheService
	Metrics      *MetricsService
	Events       eventPublisher
	Audit        auditLogger
}

// CatalogPage is one page of the public catalog.
type CatalogPage struct {
	Items      []models.Item     `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// ItemService implements listing, browsing and withdrawing items.
type ItemService struct {
	items     itemStore
	users     userReader
	ledger    ledgerStore
	cfg       ItemServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewItemService builds an ItemService with sane defaults.
func NewItemService(items itemStore, users userReader, ledger ledgerStore, validate *validator.Validate, logger *zap.Logger, cfg ItemServiceConfig) *ItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy.MinPoints <= 0 {
		cfg.Policy.MinPoints = 1
	}
	if cfg.Policy.MaxImages <= 0 {
		cfg.Policy.MaxImages = 5
	}
	if cfg.FeaturedSize <= 0 {
		cfg.FeaturedSize = 4
	}
	return &ItemService{
		items:     items,
		users:     users,
		ledger:    ledger,
		cfg:       cfg,
		validator: newValidator(validate),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create lists a new item for the caller. Admin listings are published
// immediately; everything else waits for moderation.
func (s *ItemService) Create(ctx context.Context, req dto.CreateItemRequest, actor *models.JWTClaims) (*models.Item, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	draft, err := s.validateDraft(req)
	if err != nil {
		return nil, err
	}

	author, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "author no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load author")
	}

	draft.UploaderID = author.ID
	draft.UploaderName = author.Name
	draft.IsApproved = author.IsAdmin
	draft.IsAvailable = true
	draft.CreatedAt = s.now()

	if err := s.items.Create(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item")
	}

	if draft.Visible() {
		s.cfg.Cache.InvalidateCatalog(ctx)
	}
	recordAudit(ctx, s.cfg.Audit, s.logger, actor, "item-service", auditEntry{
		Action:     models.AuditActionItemCreate,
		Resource:   itemResource,
		ResourceID: draft.ID,
		New:        map[string]interface{}{"title": draft.Title, "points_value": draft.PointsValue, "is_approved": draft.IsApproved},
	})
	return draft, nil
}

func (s *ItemService) validateDraft(req dto.CreateItemRequest) (*models.Item, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Type = strings.TrimSpace(req.Type)
	req.Size = strings.TrimSpace(req.Size)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.Condition = strings.ToLower(strings.TrimSpace(req.Condition))

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid item payload")
	}

	category := models.ItemCategory(req.Category)
	if !category.Valid() {
		return nil, fieldError("category", "is not a known category")
	}
	condition := models.ItemCondition(req.Condition)
	if !condition.Valid() {
		return nil, fieldError("condition", "is not a known condition")
	}
	policy := s.cfg.Policy
	if policy.MaxPoints > 0 && (req.PointsValue < policy.MinPoints || req.PointsValue > policy.MaxPoints) {
		return nil, fieldError("points_value", fmt.Sprintf("must be between %d and %d", policy.MinPoints, policy.MaxPoints))
	}
	if req.PointsValue < policy.MinPoints {
		return nil, fieldError("points_value", fmt.Sprintf("must be at least %d", policy.MinPoints))
	}

	images := make([]string, 0, len(req.Images))
	for _, image := range req.Images {
		if trimmed := strings.TrimSpace(image); trimmed != "" {
			images = append(images, trimmed)
		}
	}
	if len(images) > policy.MaxImages {
		return nil, fieldError("images", fmt.Sprintf("must contain at most %d images", policy.MaxImages))
	}
	if len(images) == 0 && policy.PlaceholderImage != "" {
		images = append(images, policy.PlaceholderImage)
	}

	tags := make([]string, 0, len(req.Tags))
	for _, tag := range req.Tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}

	return &models.Item{
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Type:        req.Type,
		Size:        req.Size,
		Condition:   condition,
		Tags:        tags,
		Images:      images,
		PointsValue: req.PointsValue,
	}, nil
}

// Catalog returns a page of the public catalog. The bool reports a cache hit.
func (s *ItemService) Catalog(ctx context.Context, query dto.CatalogQuery) (*CatalogPage, bool, error) {
	filter, err := normalizeCatalogQuery(query)
	if err != nil {
		return nil, false, err
	}

	key := catalogPageKey(filter)
	var cached CatalogPage
	if hit, _ := s.cfg.Cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	gen := s.cfg.Cache.CatalogGeneration()
	approved, available := true, true
	pre := models.ItemFilter{Approved: &approved, Available: &available}
	if filter.Category != filterAll {
		pre.Category = models.ItemCategory(filter.Category)
	}
	if filter.Condition != filterAll {
		pre.Condition = models.ItemCondition(filter.Condition)
	}

	start := time.Now()
	candidates, err := s.items.List(ctx, pre)
	s.cfg.Metrics.ObserveDBQuery("catalog.list", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list catalog")
	}

	matched := FilterCatalog(candidates, filter)
	page := paginateItems(matched, filter.Page, filter.PageSize)

	_ = s.cfg.Cache.SetCatalog(ctx, gen, key, page, s.cfg.CatalogTTL)
	return page, false, nil
}

func normalizeCatalogQuery(query dto.CatalogQuery) (models.CatalogFilter, error) {
	filter := models.CatalogFilter{
		Search:    strings.TrimSpace(query.Search),
		Category:  strings.ToLower(strings.TrimSpace(query.Category)),
		Condition: strings.ToLower(strings.TrimSpace(query.Condition)),
	}
	if filter.Category == "" {
		filter.Category = filterAll
	}
	if filter.Condition == "" {
		filter.Condition = filterAll
	}
	if filter.Category != filterAll && !models.ItemCategory(filter.Category).Valid() {
		return filter, fieldError("category", "is not a known category")
	}
	if filter.Condition != filterAll && !models.ItemCondition(filter.Condition).Valid() {
		return filter, fieldError("condition", "is not a known condition")
	}
	filter.Page, filter.PageSize = normalizePage(query.Page, query.PageSize)
	return filter, nil
}

func paginateItems(items []models.Item, page, pageSize int) *CatalogPage {
	total := len(items)
	start := (page - 1) * pageSize
	if start < 0 || start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	pageItems := make([]models.Item, end-start)
	copy(pageItems, items[start:end])
	return &CatalogPage{
		Items:      pageItems,
		Pagination: models.Pagination{Page: page, PageSize: pageSize, TotalCount: total},
	}
}

// Featured returns up to FeaturedSize visible items flagged as featured.
func (s *ItemService) Featured(ctx context.Context) ([]models.Item, bool, error) {
	var cached []models.Item
	if hit, _ := s.cfg.Cache.Get(ctx, catalogFeaturedKey, &cached); hit {
		return cached, true, nil
	}

	gen := s.cfg.Cache.CatalogGeneration()
	approved, available, featured := true, true, true
	items, err := s.items.List(ctx, models.ItemFilter{
		Approved:  &approved,
		Available: &available,
		Featured:  &featured,
		Limit:     s.cfg.FeaturedSize,
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list featured items")
	}
	items = FilterCatalog(items, models.CatalogFilter{})

	_ = s.cfg.Cache.SetCatalog(ctx, gen, catalogFeaturedKey, items, s.cfg.CatalogTTL)
	return items, false, nil
}

// Get returns an item. Items outside the public catalog are only visible to
// their uploader and admins.
func (s *ItemService) Get(ctx context.Context, id string, viewer *models.JWTClaims) (*models.Item, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	if !item.Visible() && !canManageItem(item, viewer) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
	}
	return item, nil
}

// Mine returns every item uploaded by the caller.
func (s *ItemService) Mine(ctx context.Context, actor *models.JWTClaims) ([]models.Item, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.items.List(ctx, models.ItemFilter{UploaderID: actor.UserID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list items")
	}
	return items, nil
}

// Withdraw takes an item out of circulation at its uploader's request.
func (s *ItemService) Withdraw(ctx context.Context, id string, actor *models.JWTClaims) (*models.Item, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var (
		result     *models.Item
		wasVisible bool
		changed    bool
	)
	err := s.ledger.WithinTx(ctx, func(tx repository.LedgerTx) error {
		items, err := tx.LockItems(ctx, id)
		if err != nil {
			return err
		}
		item := items[id]
		if item == nil || (!item.IsApproved && !canManageItem(item, actor)) {
			return appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		if !canManageItem(item, actor) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the uploader can withdraw this item")
		}
		wasVisible = item.Visible()
		if item.IsAvailable {
			item.IsAvailable = false
			item.UpdatedAt = s.now()
			if err := tx.UpdateItemFlags(ctx, item.ID, item.IsApproved, false, item.UpdatedAt); err != nil {
				return err
			}
			changed = true
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to withdraw item")
	}

	if changed {
		if wasVisible {
			s.cfg.Cache.InvalidateCatalog(ctx)
		}
		recordAudit(ctx, s.cfg.Audit, s.logger, actor, "item-service", auditEntry{
			Action:     models.AuditActionItemWithdraw,
			Resource:   itemResource,
			ResourceID: result.ID,
			Old:        map[string]bool{"is_available": true},
			New:        map[string]bool{"is_available": false},
		})
	}
	return result, nil
}

func canManageItem(item *models.Item, viewer *models.JWTClaims) bool {
	if item == nil || viewer == nil {
		return false
	}
	return viewer.IsAdmin || viewer.UserID == item.UploaderID
}

// asAppError passes typed errors through and wraps everything else as internal.
func asAppError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
