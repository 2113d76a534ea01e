package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/jobs"
)

const (
	notificationScope   = "notifications"
	notificationJobType = "notify"
)

type eventQueue interface {
	TryEnqueue(job jobs.Job) error
}

type eventDeliverer interface {
	SendToUsers(userIDs []string, payload []byte) int
}

type ticketSigner interface {
	Generate(subject, scope string) (string, time.Time, error)
	Parse(ticket, scope string) (string, error)
}

// NotificationService publishes domain events to connected members. Events are
// queued after the database commit and delivered best-effort.
type NotificationService struct {
	queue    eventQueue
	hub      eventDeliverer
	tickets  ticketSigner
	metrics  *MetricsService
	logger   *zap.Logger
	disabled bool
}

// NewNotificationService wires the queue and hub. A nil queue disables delivery.
func NewNotificationService(queue eventQueue, hub eventDeliverer, tickets ticketSigner, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		queue:    queue,
		hub:      hub,
		tickets:  tickets,
		metrics:  metrics,
		logger:   logger,
		disabled: queue == nil || hub == nil,
	}
}

// SetQueue attaches the queue once it exists; the queue handler itself
// depends on this service, so construction is two-phase.
func (s *NotificationService) SetQueue(queue eventQueue) {
	if s == nil {
		return
	}
	s.queue = queue
	s.disabled = queue == nil || s.hub == nil
}

// Publish enqueues event without blocking the caller. A full queue drops the event.
func (s *NotificationService) Publish(ctx context.Context, event models.Event) {
	if s == nil || s.disabled || len(event.Recipients) == 0 {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.queue.TryEnqueue(jobs.Job{Type: notificationJobType, Payload: event}); err != nil {
		s.metrics.RecordNotification(event.Type, "dropped")
		s.logger.Warn("notification dropped", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// Deliver is the queue handler: it pushes the event to every recipient's sockets.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.Event)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	reached := s.hub.SendToUsers(event.Recipients, payload)
	outcome := "delivered"
	if reached == 0 {
		outcome = "offline"
	}
	s.metrics.RecordNotification(event.Type, outcome)
	return nil
}

// IssueTicket returns a short-lived ticket the caller presents when opening the websocket.
func (s *NotificationService) IssueTicket(actor *models.JWTClaims) (string, time.Time, error) {
	if actor == nil {
		return "", time.Time{}, appErrors.ErrUnauthorized
	}
	if s.tickets == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "notifications are disabled")
	}
	ticket, expiresAt, err := s.tickets.Generate(actor.UserID, notificationScope)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue ticket")
	}
	return ticket, expiresAt, nil
}

// ResolveTicket returns the user id bound to a valid ticket.
func (s *NotificationService) ResolveTicket(ticket string) (string, error) {
	if s.tickets == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "notifications are disabled")
	}
	userID, err := s.tickets.Parse(ticket, notificationScope)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid notification ticket")
	}
	return userID, nil
}
