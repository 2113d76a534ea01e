package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/middleware"
	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/service"
	"github.com/noah-isme/rewear-api/pkg/response"
)

type itemService interface {
	Create(ctx context.Context, req dto.CreateItemRequest, actor *models.JWTClaims) (*models.Item, error)
	Catalog(ctx context.Context, query dto.CatalogQuery) (*service.CatalogPage, bool, error)
	Featured(ctx context.Context) ([]models.Item, bool, error)
	Get(ctx context.Context, id string, viewer *models.JWTClaims) (*models.Item, error)
	Mine(ctx context.Context, actor *models.JWTClaims) ([]models.Item, error)
	Withdraw(ctx context.Context, id string, actor *models.JWTClaims) (*models.Item, error)
}

// ItemHandler exposes listing and catalog endpoints.
type ItemHandler struct {
	service itemService
}

// NewItemHandler constructs an ItemHandler.
func NewItemHandler(svc itemService) *ItemHandler {
	return &ItemHandler{service: svc}
}

// Create godoc
// @Summary List an item
// @Description Admin listings are published immediately; others wait for moderation
// @Tags Items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param payload body dto.CreateItemRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /items [post]
func (h *ItemHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid item payload"))
		return
	}

	item, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Catalog godoc
// @Summary Browse the public catalog
// @Tags Items
// @Produce json
// @Param search query string false "Substring of title, description or tag"
// @Param category query string false "Category or all"
// @Param condition query string false "Condition or all"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /items [get]
func (h *ItemHandler) Catalog(c *gin.Context) {
	var query dto.CatalogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid catalog query"))
		return
	}

	page, hit, err := h.service.Catalog(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	pagination := page.Pagination
	response.JSON(c, http.StatusOK, page.Items, &pagination, middleware.ExtractMeta(c))
}

// Featured godoc
// @Summary Featured items for the landing page
// @Tags Items
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /items/featured [get]
func (h *ItemHandler) Featured(c *gin.Context) {
	items, hit, err := h.service.Featured(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Item detail
// @Description Unpublished items are visible only to their uploader and admins
// @Tags Items
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /items/{id} [get]
func (h *ItemHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", errItemNotFound)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Mine godoc
// @Summary Items uploaded by the caller
// @Tags Items
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /me/items [get]
func (h *ItemHandler) Mine(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	items, err := h.service.Mine(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Withdraw godoc
// @Summary Withdraw an item from circulation
// @Tags Items
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /items/{id}/withdraw [post]
func (h *ItemHandler) Withdraw(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", errItemNotFound)
	if !ok {
		return
	}
	item, err := h.service.Withdraw(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}
