package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rewear-api/internal/models"
)

var itemColumnNames = []string{"id", "title", "description", "category", "type", "size", "condition", "tags", "images", "points_value", "uploader_id", "uploader_name", "is_approved", "is_available", "featured", "created_at", "updated_at"}

func boolPtr(v bool) *bool { return &v }

func TestItemListBuildsFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(itemColumnNames).
		AddRow("i1", "Denim Jacket", "Vintage", "outerwear", "jacket", "M", "good", "{denim,vintage}", "{https://img/1.jpg}", 75, "u1", "Ana", true, true, false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM items WHERE is_approved = $1 AND is_available = $2 AND category = $3 ORDER BY created_at DESC, id DESC LIMIT 10")).
		WithArgs(true, true, models.CategoryOuterwear).
		WillReturnRows(rows)

	items, err := repo.List(context.Background(), models.ItemFilter{
		Approved:  boolPtr(true),
		Available: boolPtr(true),
		Category:  models.CategoryOuterwear,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"denim", "vintage"}, []string(items[0].Tags))
	assert.Equal(t, models.ConditionGood, items[0].Condition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM items WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestItemCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectExec("INSERT INTO items").WillReturnResult(sqlmock.NewResult(1, 1))

	item := &models.Item{Title: "Tee", Tags: []string{"cotton"}, Images: []string{"a.jpg"}}
	require.NoError(t, repo.Create(context.Background(), item))
	assert.NotEmpty(t, item.ID)
	assert.False(t, item.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemSetFeaturedMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE items SET featured = $2")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetFeatured(context.Background(), "missing", true, time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestItemCount(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM items WHERE is_approved = $1 AND is_available = $2")).
		WithArgs(false, true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := repo.Count(context.Background(), models.ItemFilter{Approved: boolPtr(false), Available: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}
