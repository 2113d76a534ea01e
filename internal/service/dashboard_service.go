package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

const recentSwapLimit = 5

type dashboardItemCounter interface {
	Count(ctx context.Context, filter models.ItemFilter) (int, error)
}

type dashboardSwapReader interface {
	Count(ctx context.Context, filter models.SwapRequestFilter) (int, error)
	List(ctx context.Context, filter models.SwapRequestFilter) ([]models.SwapRequest, int, error)
}

type dashboardUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Count(ctx context.Context) (int, error)
}

// DashboardService aggregates member and admin summaries.
type DashboardService struct {
	items   dashboardItemCounter
	swaps   dashboardSwapReader
	users   dashboardUserReader
	metrics *MetricsService
	logger  *zap.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(items dashboardItemCounter, swaps dashboardSwapReader, users dashboardUserReader, metrics *MetricsService, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{items: items, swaps: swaps, users: users, metrics: metrics, logger: logger}
}

// UserDashboard summarises the caller's balance, listings and swaps.
func (s *DashboardService) UserDashboard(ctx context.Context, actor *models.JWTClaims) (*models.UserDashboard, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	listed, err := s.items.Count(ctx, models.ItemFilter{UploaderID: user.ID})
	if err != nil {
		return nil, s.internal(err, "failed to count items")
	}
	active, err := s.swaps.Count(ctx, models.SwapRequestFilter{
		RequesterID: user.ID,
		Status:      []models.SwapStatus{models.SwapStatusPending, models.SwapStatusAccepted},
	})
	if err != nil {
		return nil, s.internal(err, "failed to count active swaps")
	}
	completedOut, err := s.swaps.Count(ctx, models.SwapRequestFilter{RequesterID: user.ID, Status: []models.SwapStatus{models.SwapStatusCompleted}})
	if err != nil {
		return nil, s.internal(err, "failed to count completed swaps")
	}
	completedIn, err := s.swaps.Count(ctx, models.SwapRequestFilter{OwnerID: user.ID, Status: []models.SwapStatus{models.SwapStatusCompleted}})
	if err != nil {
		return nil, s.internal(err, "failed to count completed swaps")
	}
	recent, _, err := s.swaps.List(ctx, models.SwapRequestFilter{RequesterID: user.ID, Limit: recentSwapLimit})
	if err != nil {
		return nil, s.internal(err, "failed to list recent swaps")
	}
	if recent == nil {
		recent = []models.SwapRequest{}
	}

	return &models.UserDashboard{
		Points:         user.Points,
		ItemsListed:    listed,
		ActiveSwaps:    active,
		CompletedSwaps: completedOut + completedIn,
		RecentSwaps:    recent,
	}, nil
}

// AdminStats returns platform totals for moderators.
func (s *DashboardService) AdminStats(ctx context.Context, actor *models.JWTClaims) (*models.AdminStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, s.internal(err, "failed to count users")
	}
	items, err := s.items.Count(ctx, models.ItemFilter{})
	if err != nil {
		return nil, s.internal(err, "failed to count items")
	}
	approved, available := false, true
	pending, err := s.items.Count(ctx, models.ItemFilter{Approved: &approved, Available: &available})
	if err != nil {
		return nil, s.internal(err, "failed to count pending items")
	}
	completed, err := s.swaps.Count(ctx, models.SwapRequestFilter{Status: []models.SwapStatus{models.SwapStatusCompleted}})
	if err != nil {
		return nil, s.internal(err, "failed to count completed swaps")
	}

	return &models.AdminStats{
		TotalUsers:      users,
		TotalItems:      items,
		PendingApproval: pending,
		CompletedSwaps:  completed,
		System:          s.metrics.Snapshot(),
	}, nil
}

func (s *DashboardService) internal(err error, message string) error {
	s.logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
