package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

const (
	ownerID     = "owner-1"
	requesterID = "requester-1"
	outsiderID  = "outsider-1"
	adminID     = "admin-1"

	jacketID      = "0b7e7d4c-1f5e-4a51-9c43-3d1c1e0a0001"
	scarfID       = "0b7e7d4c-1f5e-4a51-9c43-3d1c1e0a0002"
	pendingCoatID = "0b7e7d4c-1f5e-4a51-9c43-3d1c1e0a0003"
)

func claimsFor(userID string, admin bool) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Name: userID, IsAdmin: admin}
}

type swapFixture struct {
	store     *memStore
	svc       *SwapService
	publisher *recordingPublisher
	metrics   *MetricsService
}

func newSwapFixture(t *testing.T, requesterPoints int) *swapFixture {
	t.Helper()
	store := newMemStore()
	store.addUser(ownerID, "Olive", 150, false)
	store.addUser(requesterID, "Remy", requesterPoints, false)
	store.addUser(outsiderID, "Otto", 100, false)
	store.addUser(adminID, "Ada", 0, true)

	store.addItem(models.Item{ID: jacketID, Title: "Denim jacket", UploaderID: ownerID, PointsValue: 75, IsApproved: true, IsAvailable: true})
	store.addItem(models.Item{ID: scarfID, Title: "Wool scarf", UploaderID: requesterID, PointsValue: 20, IsApproved: true, IsAvailable: true})
	store.addItem(models.Item{ID: pendingCoatID, Title: "Coat", UploaderID: ownerID, PointsValue: 40, IsApproved: false, IsAvailable: true})

	publisher := &recordingPublisher{}
	metrics := NewMetricsService()
	svc := NewSwapService(memSwaps{store}, store, nil, metrics, publisher, store, nil, zap.NewNop())
	return &swapFixture{store: store, svc: svc, publisher: publisher, metrics: metrics}
}

func (f *swapFixture) request(t *testing.T, mode string, offered string) *models.SwapRequest {
	t.Helper()
	req, err := f.svc.Request(context.Background(), jacketID, dto.CreateSwapRequest{Mode: mode, OfferedItemID: offered}, claimsFor(requesterID, false))
	require.NoError(t, err)
	return req
}

func totalPoints(store *memStore) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	total := 0
	for _, u := range store.users {
		total += u.Points
	}
	return total
}

func TestSwapRedemptionMovesPoints(t *testing.T) {
	f := newSwapFixture(t, 150)
	before := totalPoints(f.store)
	ctx := context.Background()

	req := f.request(t, "points", "")
	assert.Equal(t, models.SwapStatusPending, req.Status)
	assert.True(t, req.IsPointsRedemption)
	require.NotNil(t, req.PointsOffered)
	assert.Equal(t, 75, *req.PointsOffered)
	assert.Equal(t, 150, f.store.user(requesterID).Points, "requesting must not move points")

	_, err := f.svc.Accept(ctx, req.ID, claimsFor(ownerID, false))
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, req.ID, claimsFor(requesterID, false))
	require.NoError(t, err)

	assert.Equal(t, models.SwapStatusCompleted, done.Status)
	assert.Equal(t, 75, f.store.user(requesterID).Points)
	assert.Equal(t, 225, f.store.user(ownerID).Points)
	assert.Equal(t, before, totalPoints(f.store))
	assert.False(t, f.store.item(jacketID).IsAvailable)

	entries, err := f.store.ListPointTransactions(ctx, requesterID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, -75, entries[0].Amount)
	assert.Equal(t, models.PointsRedemptionDebit, entries[0].Kind)

	assert.Equal(t, []models.EventType{models.EventSwapRequested, models.EventSwapAccepted, models.EventSwapCompleted}, f.publisher.types())
	assert.Equal(t, uint64(75), f.metrics.Snapshot().PointsTransferred)
}

func TestSwapRedemptionInsufficientPoints(t *testing.T) {
	f := newSwapFixture(t, 50)

	_, err := f.svc.Request(context.Background(), jacketID, dto.CreateSwapRequest{Mode: "points"}, claimsFor(requesterID, false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientPoints))
	assert.Equal(t, 0, f.store.swapCount())
	assert.Equal(t, 50, f.store.user(requesterID).Points)
	assert.Empty(t, f.publisher.types())
}

func TestSwapRedemptionExactBalance(t *testing.T) {
	f := newSwapFixture(t, 75)
	ctx := context.Background()

	req := f.request(t, "points", "")
	_, err := f.svc.Accept(ctx, req.ID, claimsFor(ownerID, false))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, req.ID, claimsFor(ownerID, false))
	require.NoError(t, err)

	assert.Equal(t, 0, f.store.user(requesterID).Points)
	assert.Equal(t, 225, f.store.user(ownerID).Points)
}

func TestSwapCompleteRechecksBalance(t *testing.T) {
	f := newSwapFixture(t, 100)
	ctx := context.Background()

	req := f.request(t, "points", "")
	_, err := f.svc.Accept(ctx, req.ID, claimsFor(ownerID, false))
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.users[requesterID].Points = 10
	f.store.mu.Unlock()

	_, err = f.svc.Complete(ctx, req.ID, claimsFor(requesterID, false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientPoints))

	stored, err := f.svc.Get(ctx, req.ID, claimsFor(requesterID, false))
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusAccepted, stored.Status)
	assert.True(t, f.store.item(jacketID).IsAvailable)
	assert.Equal(t, 150, f.store.user(ownerID).Points)
}

func TestSwapCompleteRollsBackOnFailure(t *testing.T) {
	f := newSwapFixture(t, 150)
	ctx := context.Background()
	before := totalPoints(f.store)

	req := f.request(t, "points", "")
	_, err := f.svc.Accept(ctx, req.ID, claimsFor(ownerID, false))
	require.NoError(t, err)

	f.store.failAdjustFor = ownerID
	_, err = f.svc.Complete(ctx, req.ID, claimsFor(ownerID, false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	assert.Equal(t, 150, f.store.user(requesterID).Points)
	assert.Equal(t, before, totalPoints(f.store))
	assert.True(t, f.store.item(jacketID).IsAvailable)
	entries, _ := f.store.ListPointTransactions(ctx, requesterID)
	assert.Empty(t, entries)
}

func TestSwapDirectWithOfferedItem(t *testing.T) {
	f := newSwapFixture(t, 0)
	ctx := context.Background()

	req := f.request(t, "direct", scarfID)
	require.NotNil(t, req.OfferedItemID)
	assert.Equal(t, scarfID, *req.OfferedItemID)
	assert.False(t, req.IsPointsRedemption)

	_, err := f.svc.Accept(ctx, req.ID, claimsFor(ownerID, false))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, req.ID, claimsFor(ownerID, false))
	require.NoError(t, err)

	assert.False(t, f.store.item(jacketID).IsAvailable)
	assert.False(t, f.store.item(scarfID).IsAvailable)
	assert.Equal(t, 0, f.store.user(requesterID).Points)
	assert.Equal(t, 150, f.store.user(ownerID).Points)
}

func TestSwapRequestValidation(t *testing.T) {
	f := newSwapFixture(t, 100)
	ctx := context.Background()

	cases := []struct {
		name   string
		itemID string
		body   dto.CreateSwapRequest
		actor  *models.JWTClaims
		want   *appErrors.Error
	}{
		{"own item", jacketID, dto.CreateSwapRequest{Mode: "direct"}, claimsFor(ownerID, false), appErrors.ErrSelfSwap},
		{"unknown mode", jacketID, dto.CreateSwapRequest{Mode: "barter"}, claimsFor(requesterID, false), appErrors.ErrValidation},
		{"offered item with points", jacketID, dto.CreateSwapRequest{Mode: "points", OfferedItemID: scarfID}, claimsFor(requesterID, false), appErrors.ErrValidation},
		{"offering someone else's item", jacketID, dto.CreateSwapRequest{Mode: "direct", OfferedItemID: pendingCoatID}, claimsFor(requesterID, false), appErrors.ErrValidation},
		{"pending item", pendingCoatID, dto.CreateSwapRequest{Mode: "direct"}, claimsFor(requesterID, false), appErrors.ErrNotFound},
		{"missing item", "nope", dto.CreateSwapRequest{Mode: "direct"}, claimsFor(requesterID, false), appErrors.ErrNotFound},
		{"anonymous", jacketID, dto.CreateSwapRequest{Mode: "direct"}, nil, appErrors.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Request(ctx, tc.itemID, tc.body, tc.actor)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.store.swapCount())
}

func TestSwapRequestUnavailableItem(t *testing.T) {
	f := newSwapFixture(t, 100)
	f.store.mu.Lock()
	f.store.items[jacketID].IsAvailable = false
	f.store.mu.Unlock()

	_, err := f.svc.Request(context.Background(), jacketID, dto.CreateSwapRequest{Mode: "direct"}, claimsFor(requesterID, false))
	assert.True(t, errors.Is(err, appErrors.ErrItemUnavailable))
}

func TestSwapTransitionTable(t *testing.T) {
	type step struct {
		action models.SwapAction
		want   *appErrors.Error
	}
	cases := []struct {
		name  string
		steps []step
		final models.SwapStatus
	}{
		{"accept then complete", []step{{models.SwapActionAccept, nil}, {models.SwapActionComplete, nil}}, models.SwapStatusCompleted},
		{"reject pending", []step{{models.SwapActionReject, nil}}, models.SwapStatusRejected},
		{"reject accepted", []step{{models.SwapActionAccept, nil}, {models.SwapActionReject, nil}}, models.SwapStatusRejected},
		{"complete pending", []step{{models.SwapActionComplete, appErrors.ErrInvalidTransition}}, models.SwapStatusPending},
		{"accept twice", []step{{models.SwapActionAccept, nil}, {models.SwapActionAccept, appErrors.ErrInvalidTransition}}, models.SwapStatusAccepted},
		{"accept rejected", []step{{models.SwapActionReject, nil}, {models.SwapActionAccept, appErrors.ErrInvalidTransition}}, models.SwapStatusRejected},
		{"reject completed", []step{{models.SwapActionAccept, nil}, {models.SwapActionComplete, nil}, {models.SwapActionReject, appErrors.ErrInvalidTransition}}, models.SwapStatusCompleted},
		{"complete completed", []step{{models.SwapActionAccept, nil}, {models.SwapActionComplete, nil}, {models.SwapActionComplete, appErrors.ErrInvalidTransition}}, models.SwapStatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSwapFixture(t, 0)
			ctx := context.Background()
			req := f.request(t, "direct", "")
			owner := claimsFor(ownerID, false)

			for _, s := range tc.steps {
				var err error
				switch s.action {
				case models.SwapActionAccept:
					_, err = f.svc.Accept(ctx, req.ID, owner)
				case models.SwapActionReject:
					_, err = f.svc.Reject(ctx, req.ID, owner)
				case models.SwapActionComplete:
					_, err = f.svc.Complete(ctx, req.ID, owner)
				}
				if s.want == nil {
					require.NoError(t, err)
				} else {
					require.Error(t, err)
					assert.True(t, errors.Is(err, s.want))
				}
			}

			stored, err := f.svc.Get(ctx, req.ID, owner)
			require.NoError(t, err)
			assert.Equal(t, tc.final, stored.Status)
		})
	}
}

func TestSwapTransitionActors(t *testing.T) {
	f := newSwapFixture(t, 0)
	ctx := context.Background()
	req := f.request(t, "direct", "")

	_, err := f.svc.Accept(ctx, req.ID, claimsFor(requesterID, false))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Accept(ctx, req.ID, claimsFor(outsiderID, false))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.Accept(ctx, "missing", claimsFor(ownerID, false))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	accepted, err := f.svc.Accept(ctx, req.ID, claimsFor(adminID, true))
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusAccepted, accepted.Status)

	rejected, err := f.svc.Reject(ctx, req.ID, claimsFor(requesterID, false))
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusRejected, rejected.Status)
}

func TestSwapAcceptRequiresAvailableItem(t *testing.T) {
	f := newSwapFixture(t, 0)
	ctx := context.Background()
	req := f.request(t, "direct", "")

	f.store.mu.Lock()
	f.store.items[jacketID].IsAvailable = false
	f.store.mu.Unlock()

	_, err := f.svc.Accept(ctx, req.ID, claimsFor(ownerID, false))
	assert.True(t, errors.Is(err, appErrors.ErrItemUnavailable))
}

func TestSwapConcurrentCompletionsSettleOnce(t *testing.T) {
	f := newSwapFixture(t, 150)
	f.store.addUser(outsiderID, "Otto", 150, false)
	ctx := context.Background()
	before := totalPoints(f.store)

	first := f.request(t, "points", "")
	second, err := f.svc.Request(ctx, jacketID, dto.CreateSwapRequest{Mode: "points"}, claimsFor(outsiderID, false))
	require.NoError(t, err)
	for _, id := range []string{first.ID, second.ID} {
		_, err := f.svc.Accept(ctx, id, claimsFor(ownerID, false))
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Complete(ctx, id, claimsFor(ownerID, false))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], appErrors.ErrItemUnavailable))
	assert.Equal(t, 225, f.store.user(ownerID).Points)
	assert.Equal(t, before, totalPoints(f.store))
}

func TestSwapListBoxes(t *testing.T) {
	f := newSwapFixture(t, 100)
	ctx := context.Background()
	req := f.request(t, "direct", "")

	outgoing, page, err := f.svc.List(ctx, dto.SwapListQuery{Box: "outgoing"}, claimsFor(requesterID, false))
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, req.ID, outgoing[0].ID)
	assert.Equal(t, 1, page.TotalCount)

	incoming, _, err := f.svc.List(ctx, dto.SwapListQuery{Box: "incoming", Status: "pending,accepted"}, claimsFor(ownerID, false))
	require.NoError(t, err)
	assert.Len(t, incoming, 1)

	none, _, err := f.svc.List(ctx, dto.SwapListQuery{Box: "incoming", Status: "completed"}, claimsFor(ownerID, false))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, _, err = f.svc.List(ctx, dto.SwapListQuery{Box: "sideways"}, claimsFor(ownerID, false))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, err = f.svc.List(ctx, dto.SwapListQuery{Status: "lost"}, claimsFor(ownerID, false))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

type offsetRecorder struct {
	memSwaps
	offsets []int
}

func (r *offsetRecorder) List(ctx context.Context, filter models.SwapRequestFilter) ([]models.SwapRequest, int, error) {
	r.offsets = append(r.offsets, filter.Offset)
	return r.memSwaps.List(ctx, filter)
}

func TestSwapListHugePageKeepsOffsetNonNegative(t *testing.T) {
	f := newSwapFixture(t, 100)
	f.request(t, "direct", "")
	recorder := &offsetRecorder{memSwaps: memSwaps{f.store}}
	svc := NewSwapService(recorder, f.store, nil, nil, nil, f.store, nil, zap.NewNop())

	requests, page, err := svc.List(context.Background(), dto.SwapListQuery{Box: "outgoing", Page: math.MaxInt64 / 10}, claimsFor(requesterID, false))
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Equal(t, 1, page.TotalCount)
	require.Len(t, recorder.offsets, 1)
	assert.GreaterOrEqual(t, recorder.offsets[0], 0)
}

func TestSwapGetHidesFromOutsiders(t *testing.T) {
	f := newSwapFixture(t, 100)
	ctx := context.Background()
	req := f.request(t, "direct", "")

	_, err := f.svc.Get(ctx, req.ID, claimsFor(outsiderID, false))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	got, err := f.svc.Get(ctx, req.ID, claimsFor(adminID, true))
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
}
