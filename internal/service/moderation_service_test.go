package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

func newModerationFixture(t *testing.T) (*ModerationService, *memStore, *memCache, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	store.addItem(models.Item{ID: "pending", UploaderID: ownerID, IsApproved: false, IsAvailable: true})
	store.addItem(models.Item{ID: "live", UploaderID: ownerID, IsApproved: true, IsAvailable: true})
	cache := newMemCache()
	publisher := &recordingPublisher{}
	svc := NewModerationService(store, store, NewCacheService(cache, nil, time.Minute, zap.NewNop(), true), publisher, store, zap.NewNop())
	return svc, store, cache, publisher
}

func TestModerationRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newModerationFixture(t)
	ctx := context.Background()

	_, err := svc.Pending(ctx, claimsFor(ownerID, false))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.Approve(ctx, "pending", claimsFor(ownerID, false))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.Feature(ctx, "live", true, nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestModerationApprovePublishes(t *testing.T) {
	svc, store, cache, publisher := newModerationFixture(t)
	ctx := context.Background()
	admin := claimsFor(adminID, true)

	queue, err := svc.Pending(ctx, admin)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "pending", queue[0].ID)

	require.NoError(t, cache.Set(ctx, "catalog:list:x", 1, time.Minute))
	item, err := svc.Approve(ctx, "pending", admin)
	require.NoError(t, err)
	assert.True(t, item.Visible())
	assert.True(t, store.item("pending").IsApproved)
	assert.Equal(t, 0, cache.size())
	assert.Equal(t, []models.EventType{models.EventItemApproved}, publisher.types())
	assert.Equal(t, []string{ownerID}, publisher.events[0].Recipients)

	queue, err = svc.Pending(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestModerationApproveIsIdempotent(t *testing.T) {
	svc, store, _, publisher := newModerationFixture(t)
	ctx := context.Background()

	item, err := svc.Approve(ctx, "live", claimsFor(adminID, true))
	require.NoError(t, err)
	assert.True(t, item.IsApproved)
	assert.Equal(t, 0, store.flagWrites)
	assert.Empty(t, publisher.types())
	assert.Empty(t, store.audits)
}

func TestModerationReject(t *testing.T) {
	svc, store, _, publisher := newModerationFixture(t)
	ctx := context.Background()

	item, err := svc.Reject(ctx, "live", claimsFor(adminID, true))
	require.NoError(t, err)
	assert.False(t, item.IsApproved)
	assert.False(t, item.IsAvailable)
	live := store.item("live")
	assert.False(t, live.Visible())
	assert.Equal(t, []models.EventType{models.EventItemRejected}, publisher.types())

	_, err = svc.Reject(ctx, "missing", claimsFor(adminID, true))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestModerationFeature(t *testing.T) {
	svc, store, cache, _ := newModerationFixture(t)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, catalogFeaturedKey, []string{}, time.Minute))

	item, err := svc.Feature(ctx, "live", true, claimsFor(adminID, true))
	require.NoError(t, err)
	assert.True(t, item.Featured)
	assert.True(t, store.item("live").Featured)
	assert.Equal(t, 0, cache.size())

	_, err = svc.Feature(ctx, "missing", true, claimsFor(adminID, true))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
