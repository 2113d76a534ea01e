package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/service"
	"github.com/noah-isme/rewear-api/pkg/response"
)

type dashboardService interface {
	UserDashboard(ctx context.Context, actor *models.JWTClaims) (*models.UserDashboard, error)
}

type statementService interface {
	Generate(ctx context.Context, format string, actor *models.JWTClaims) (*service.StatementFile, error)
}

// DashboardHandler serves the member dashboard and points statement.
type DashboardHandler struct {
	dashboard  dashboardService
	statements statementService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(dashboard dashboardService, statements statementService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, statements: statements}
}

// Me godoc
// @Summary Member dashboard
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /me/dashboard [get]
func (h *DashboardHandler) Me(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	summary, err := h.dashboard.UserDashboard(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Statement godoc
// @Summary Download the points statement
// @Tags Dashboard
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /me/points/statement [get]
func (h *DashboardHandler) Statement(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	file, err := h.statements.Generate(c.Request.Context(), c.Query("format"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
