package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

func TestUserDashboardSummarisesSwaps(t *testing.T) {
	f := newSwapFixture(t, 150)
	ctx := context.Background()

	done := f.request(t, "points", "")
	_, err := f.svc.Accept(ctx, done.ID, claimsFor(ownerID, false))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, done.ID, claimsFor(ownerID, false))
	require.NoError(t, err)

	f.store.addItem(models.Item{ID: "boots", Title: "Boots", UploaderID: ownerID, PointsValue: 20, IsApproved: true, IsAvailable: true})
	_, err = f.svc.Request(ctx, "boots", dto.CreateSwapRequest{Mode: "direct"}, claimsFor(requesterID, false))
	require.NoError(t, err)

	svc := NewDashboardService(f.store, memSwaps{f.store}, memUsers{f.store}, f.metrics, nil)

	dash, err := svc.UserDashboard(ctx, claimsFor(requesterID, false))
	require.NoError(t, err)
	assert.Equal(t, 75, dash.Points)
	assert.Equal(t, 1, dash.ItemsListed)
	assert.Equal(t, 1, dash.ActiveSwaps)
	assert.Equal(t, 1, dash.CompletedSwaps)
	assert.Len(t, dash.RecentSwaps, 2)

	ownerDash, err := svc.UserDashboard(ctx, claimsFor(ownerID, false))
	require.NoError(t, err)
	assert.Equal(t, 225, ownerDash.Points)
	assert.Equal(t, 1, ownerDash.CompletedSwaps)
	assert.Empty(t, ownerDash.RecentSwaps)
	assert.NotNil(t, ownerDash.RecentSwaps)
}

func TestAdminStats(t *testing.T) {
	f := newSwapFixture(t, 150)
	svc := NewDashboardService(f.store, memSwaps{f.store}, memUsers{f.store}, f.metrics, nil)
	ctx := context.Background()

	_, err := svc.AdminStats(ctx, claimsFor(ownerID, false))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	stats, err := svc.AdminStats(ctx, claimsFor(adminID, true))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalUsers)
	assert.Equal(t, 3, stats.TotalItems)
	assert.Equal(t, 1, stats.PendingApproval)
	assert.Equal(t, 0, stats.CompletedSwaps)
	assert.Positive(t, stats.System.Goroutines)
}
