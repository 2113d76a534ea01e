package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/response"
)

type moderationService interface {
	Pending(ctx context.Context, actor *models.JWTClaims) ([]models.Item, error)
	Approve(ctx context.Context, id string, actor *models.JWTClaims) (*models.Item, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.Item, error)
	Feature(ctx context.Context, id string, featured bool, actor *models.JWTClaims) (*models.Item, error)
}

type adminStatsService interface {
	AdminStats(ctx context.Context, actor *models.JWTClaims) (*models.AdminStats, error)
}

// AdminHandler serves moderation and platform statistics. Routes are mounted
// behind RequireAdmin; the services re-check the role.
type AdminHandler struct {
	moderation moderationService
	stats      adminStatsService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(moderation moderationService, stats adminStatsService) *AdminHandler {
	return &AdminHandler{moderation: moderation, stats: stats}
}

// Pending godoc
// @Summary Moderation queue
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/items/pending [get]
func (h *AdminHandler) Pending(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	items, err := h.moderation.Pending(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Approve godoc
// @Summary Approve an item
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/items/{id}/approve [post]
func (h *AdminHandler) Approve(c *gin.Context) {
	h.moderate(c, h.moderation.Approve)
}

// Reject godoc
// @Summary Reject an item
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/items/{id}/reject [post]
func (h *AdminHandler) Reject(c *gin.Context) {
	h.moderate(c, h.moderation.Reject)
}

func (h *AdminHandler) moderate(c *gin.Context, apply func(context.Context, string, *models.JWTClaims) (*models.Item, error)) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", errItemNotFound)
	if !ok {
		return
	}
	item, err := apply(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Feature godoc
// @Summary Toggle the featured flag
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param payload body dto.FeatureItemRequest true "Featured flag"
// @Success 200 {object} response.Envelope
// @Router /admin/items/{id}/feature [post]
func (h *AdminHandler) Feature(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", errItemNotFound)
	if !ok {
		return
	}
	var req dto.FeatureItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid feature payload"))
		return
	}
	if req.Featured == nil {
		response.Error(c, appErrors.WithFields(appErrors.ErrValidation, map[string]string{"featured": "is required"}))
		return
	}
	item, err := h.moderation.Feature(c.Request.Context(), id, *req.Featured, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Stats godoc
// @Summary Platform statistics
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	stats, err := h.stats.AdminStats(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
