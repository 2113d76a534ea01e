package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/pkg/response"
)

type swapService interface {
	Request(ctx context.Context, itemID string, req dto.CreateSwapRequest, actor *models.JWTClaims) (*models.SwapRequest, error)
	Accept(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error)
	Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error)
	Complete(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error)
	List(ctx context.Context, query dto.SwapListQuery, actor *models.JWTClaims) ([]models.SwapRequest, *models.Pagination, error)
}

// SwapHandler exposes the swap request lifecycle.
type SwapHandler struct {
	service swapService
}

// NewSwapHandler constructs a SwapHandler.
func NewSwapHandler(svc swapService) *SwapHandler {
	return &SwapHandler{service: svc}
}

// Request godoc
// @Summary Request an item
// @Description Direct swap (optionally offering one of your items) or points redemption
// @Tags Swaps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param Idempotency-Key header string false "Replay protection key"
// @Param payload body dto.CreateSwapRequest true "Swap request"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /items/{id}/swap-requests [post]
func (h *SwapHandler) Request(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	itemID, ok := pathID(c, "id", errItemNotFound)
	if !ok {
		return
	}
	var req dto.CreateSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid swap request payload"))
		return
	}

	swap, err := h.service.Request(c.Request.Context(), itemID, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, swap)
}

// List godoc
// @Summary List the caller's swap requests
// @Tags Swaps
// @Produce json
// @Security BearerAuth
// @Param box query string false "incoming or outgoing (default)"
// @Param status query string false "Comma separated statuses"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /swap-requests [get]
func (h *SwapHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var query dto.SwapListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid swap query"))
		return
	}

	requests, pagination, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Swap request detail
// @Tags Swaps
// @Produce json
// @Security BearerAuth
// @Param id path string true "Swap request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /swap-requests/{id} [get]
func (h *SwapHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", errSwapNotFound)
	if !ok {
		return
	}
	swap, err := h.service.Get(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, swap)
}

// Accept godoc
// @Summary Accept a pending request
// @Tags Swaps
// @Produce json
// @Security BearerAuth
// @Param id path string true "Swap request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /swap-requests/{id}/accept [post]
func (h *SwapHandler) Accept(c *gin.Context) {
	h.transition(c, h.service.Accept)
}

// Reject godoc
// @Summary Reject a pending or accepted request
// @Tags Swaps
// @Produce json
// @Security BearerAuth
// @Param id path string true "Swap request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /swap-requests/{id}/reject [post]
func (h *SwapHandler) Reject(c *gin.Context) {
	h.transition(c, h.service.Reject)
}

// Complete godoc
// @Summary Complete an accepted request
// @Description Marks the items unavailable and, for redemptions, moves the points
// @Tags Swaps
// @Produce json
// @Security BearerAuth
// @Param id path string true "Swap request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /swap-requests/{id}/complete [post]
func (h *SwapHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

func (h *SwapHandler) transition(c *gin.Context, apply func(context.Context, string, *models.JWTClaims) (*models.SwapRequest, error)) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", errSwapNotFound)
	if !ok {
		return
	}
	swap, err := apply(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, swap)
}
