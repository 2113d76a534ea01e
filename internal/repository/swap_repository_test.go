package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rewear-api/internal/models"
)

var swapColumnNames = []string{"id", "requester_id", "requester_name", "owner_id", "item_id", "item_title", "offered_item_id", "offered_item_title", "is_points_redemption", "points_offered", "message", "status", "created_at", "updated_at"}

func TestSwapListByOwnerAndStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSwapRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(swapColumnNames).
		AddRow("s1", "u2", "Bo", "u1", "i1", "Denim Jacket", nil, nil, true, 75, "please", "pending", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM swap_requests WHERE owner_id = $1 AND status = ANY($2) ORDER BY created_at DESC, id DESC LIMIT 20")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM swap_requests WHERE owner_id = $1 AND status = ANY($2)")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.SwapRequestFilter{
		OwnerID: "u1",
		Status:  []models.SwapStatus{models.SwapStatusPending},
		Limit:   20,
	})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	require.NotNil(t, requests[0].PointsOffered)
	assert.Equal(t, 75, *requests[0].PointsOffered)
	assert.Nil(t, requests[0].OfferedItemID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapCountAll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSwapRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM swap_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.Count(context.Background(), models.SwapRequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
}
