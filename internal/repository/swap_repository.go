package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/rewear-api/internal/models"
)

const swapColumns = `id, requester_id, requester_name, owner_id, item_id, item_title, offered_item_id, offered_item_title, is_points_redemption, points_offered, message, status, created_at, updated_at`

// SwapRepository reads swap requests outside of ledger transactions.
type SwapRepository struct {
	db *sqlx.DB
}

// NewSwapRepository creates a new SwapRepository.
func NewSwapRepository(db *sqlx.DB) *SwapRepository {
	return &SwapRepository{db: db}
}

// FindByID returns a swap request by id.
func (r *SwapRepository) FindByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	query := `SELECT ` + swapColumns + ` FROM swap_requests WHERE id = $1`
	var req models.SwapRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find swap request: %w", err)
	}
	return &req, nil
}

// List returns swap requests matching the filter, most recent first, with the total count.
func (r *SwapRepository) List(ctx context.Context, filter models.SwapRequestFilter) ([]models.SwapRequest, int, error) {
	where, args := buildSwapWhere(filter)

	query := `SELECT ` + swapColumns + ` FROM swap_requests` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var requests []models.SwapRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list swap requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM swap_requests`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count swap requests: %w", err)
	}
	return requests, total, nil
}

// Count returns the number of swap requests matching the filter.
func (r *SwapRepository) Count(ctx context.Context, filter models.SwapRequestFilter) (int, error) {
	where, args := buildSwapWhere(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM swap_requests`+where, args...); err != nil {
		return 0, fmt.Errorf("count swap requests: %w", err)
	}
	return total, nil
}

func buildSwapWhere(filter models.SwapRequestFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		conditions = append(conditions, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
