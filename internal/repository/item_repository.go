package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rewear-api/internal/models"
)

const itemColumns = `id, title, description, category, type, size, condition, tags, images, points_value, uploader_id, uploader_name, is_approved, is_available, featured, created_at, updated_at`

// ItemRepository provides database access for listed garments.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create inserts a new item.
func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt

	const query = `INSERT INTO items (id, title, description, category, type, size, condition, tags, images, points_value, uploader_id, uploader_name, is_approved, is_available, featured, created_at, updated_at) VALUES (:id, :title, :description, :category, :type, :size, :condition, :tags, :images, :points_value, :uploader_id, :uploader_name, :is_approved, :is_available, :featured, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// FindByID returns an item by id.
func (r *ItemRepository) FindByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	var item models.Item
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find item: %w", err)
	}
	return &item, nil
}

// List returns items matching the filter, most recent first.
func (r *ItemRepository) List(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	where, args := buildItemWhere(filter)
	query := `SELECT ` + itemColumns + ` FROM items` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var items []models.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Count returns the number of items matching the filter. Limit and offset are ignored.
func (r *ItemRepository) Count(ctx context.Context, filter models.ItemFilter) (int, error) {
	where, args := buildItemWhere(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM items`+where, args...); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return total, nil
}

// SetFeatured toggles the featured flag.
func (r *ItemRepository) SetFeatured(ctx context.Context, id string, featured bool, updatedAt time.Time) error {
	const query = `UPDATE items SET featured = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, featured, updatedAt)
	if err != nil {
		return fmt.Errorf("set item featured: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func buildItemWhere(filter models.ItemFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.UploaderID != "" {
		args = append(args, filter.UploaderID)
		conditions = append(conditions, fmt.Sprintf("uploader_id = $%d", len(args)))
	}
	if filter.Approved != nil {
		args = append(args, *filter.Approved)
		conditions = append(conditions, fmt.Sprintf("is_approved = $%d", len(args)))
	}
	if filter.Available != nil {
		args = append(args, *filter.Available)
		conditions = append(conditions, fmt.Sprintf("is_available = $%d", len(args)))
	}
	if filter.Featured != nil {
		args = append(args, *filter.Featured)
		conditions = append(conditions, fmt.Sprintf("featured = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Condition != "" {
		args = append(args, filter.Condition)
		conditions = append(conditions, fmt.Sprintf("condition = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
