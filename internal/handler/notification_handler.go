package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/logger"
	"github.com/noah-isme/rewear-api/pkg/response"
)

type notificationService interface {
	IssueTicket(actor *models.JWTClaims) (string, time.Time, error)
	ResolveTicket(ticket string) (string, error)
}

type socketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// NotificationHandler hands out websocket tickets and upgrades connections.
// Browsers cannot set headers on websocket handshakes, hence the ticket.
type NotificationHandler struct {
	service notificationService
	sockets socketServer
	logger  *zap.Logger
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(svc notificationService, sockets socketServer, log *zap.Logger) *NotificationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationHandler{service: svc, sockets: sockets, logger: log}
}

// Ticket godoc
// @Summary Issue a websocket ticket
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Envelope
// @Router /notifications/ticket [post]
func (h *NotificationHandler) Ticket(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	ticket, expiresAt, err := h.service.IssueTicket(claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NotificationTicketResponse{Ticket: ticket, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)})
}

// Stream godoc
// @Summary Notification websocket
// @Description Upgrades to a websocket that receives swap and moderation events
// @Tags Notifications
// @Param ticket query string true "Ticket from /notifications/ticket"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /notifications/ws [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	ticket := strings.TrimSpace(c.Query("ticket"))
	if ticket == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "ticket is required"))
		return
	}
	userID, err := h.service.ResolveTicket(ticket)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.sockets == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "notifications are disabled"))
		return
	}
	c.Set(logger.UserIDKey, userID)
	if err := h.sockets.Serve(c.Writer, c.Request, userID); err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
	}
}
