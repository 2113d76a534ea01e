package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/rewear-api/internal/models"
)

// LedgerTx is the unit of work for mutations that must observe and change
// items, swap requests and balances atomically. Lock methods take row locks
// held until the surrounding transaction ends; callers lock the swap request
// first, then items, then users.
type LedgerTx interface {
	LockSwapRequest(ctx context.Context, id string) (*models.SwapRequest, error)
	LockItems(ctx context.Context, ids ...string) (map[string]*models.Item, error)
	LockUsers(ctx context.Context, ids ...string) (map[string]*models.User, error)
	CreateSwapRequest(ctx context.Context, req *models.SwapRequest) error
	UpdateSwapStatus(ctx context.Context, id string, status models.SwapStatus, updatedAt time.Time) error
	UpdateItemFlags(ctx context.Context, id string, approved, available bool, updatedAt time.Time) error
	AdjustUserPoints(ctx context.Context, userID string, delta int, updatedAt time.Time) error
	RecordPointTransaction(ctx context.Context, entry *models.PointTransaction) error
}

// LedgerRepository runs ledger units of work inside database transactions.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithinTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, so no partial effect survives an error.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(LedgerTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// ListPointTransactions returns a user's ledger entries, oldest first.
func (r *LedgerRepository) ListPointTransactions(ctx context.Context, userID string) ([]models.PointTransaction, error) {
	const query = `SELECT id, user_id, amount, kind, swap_request_id, description, created_at FROM point_transactions WHERE user_id = $1 ORDER BY created_at ASC, id ASC`
	var entries []models.PointTransaction
	if err := r.db.SelectContext(ctx, &entries, query, userID); err != nil {
		return nil, fmt.Errorf("list point transactions: %w", err)
	}
	return entries, nil
}

type ledgerTx struct {
	tx *sqlx.Tx
}

func (l *ledgerTx) LockSwapRequest(ctx context.Context, id string) (*models.SwapRequest, error) {
	query := `SELECT ` + swapColumns + ` FROM swap_requests WHERE id = $1 FOR UPDATE`
	var req models.SwapRequest
	if err := l.tx.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock swap request: %w", err)
	}
	return &req, nil
}

func (l *ledgerTx) LockItems(ctx context.Context, ids ...string) (map[string]*models.Item, error) {
	keys := sortedUnique(ids)
	result := make(map[string]*models.Item, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var items []models.Item
	if err := l.tx.SelectContext(ctx, &items, query, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("lock items: %w", err)
	}
	for i := range items {
		result[items[i].ID] = &items[i]
	}
	return result, nil
}

func (l *ledgerTx) LockUsers(ctx context.Context, ids ...string) (map[string]*models.User, error) {
	keys := sortedUnique(ids)
	result := make(map[string]*models.User, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var users []models.User
	if err := l.tx.SelectContext(ctx, &users, query, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("lock users: %w", err)
	}
	for i := range users {
		result[users[i].ID] = &users[i]
	}
	return result, nil
}

func (l *ledgerTx) CreateSwapRequest(ctx context.Context, req *models.SwapRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	const query = `INSERT INTO swap_requests (id, requester_id, requester_name, owner_id, item_id, item_title, offered_item_id, offered_item_title, is_points_redemption, points_offered, message, status, created_at, updated_at) VALUES (:id, :requester_id, :requester_name, :owner_id, :item_id, :item_title, :offered_item_id, :offered_item_title, :is_points_redemption, :points_offered, :message, :status, :created_at, :updated_at)`
	if _, err := l.tx.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create swap request: %w", err)
	}
	return nil
}

func (l *ledgerTx) UpdateSwapStatus(ctx context.Context, id string, status models.SwapStatus, updatedAt time.Time) error {
	const query = `UPDATE swap_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := l.tx.ExecContext(ctx, query, id, status, updatedAt); err != nil {
		return fmt.Errorf("update swap status: %w", err)
	}
	return nil
}

func (l *ledgerTx) UpdateItemFlags(ctx context.Context, id string, approved, available bool, updatedAt time.Time) error {
	const query = `UPDATE items SET is_approved = $2, is_available = $3, updated_at = $4 WHERE id = $1`
	if _, err := l.tx.ExecContext(ctx, query, id, approved, available, updatedAt); err != nil {
		return fmt.Errorf("update item flags: %w", err)
	}
	return nil
}

func (l *ledgerTx) AdjustUserPoints(ctx context.Context, userID string, delta int, updatedAt time.Time) error {
	const query = `UPDATE users SET points = points + $2, updated_at = $3 WHERE id = $1`
	if _, err := l.tx.ExecContext(ctx, query, userID, delta, updatedAt); err != nil {
		return fmt.Errorf("adjust user points: %w", err)
	}
	return nil
}

func (l *ledgerTx) RecordPointTransaction(ctx context.Context, entry *models.PointTransaction) error {
	return insertPointTransaction(ctx, l.tx, entry)
}

func insertPointTransaction(ctx context.Context, tx *sqlx.Tx, entry *models.PointTransaction) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO point_transactions (id, user_id, amount, kind, swap_request_id, description, created_at) VALUES (:id, :user_id, :amount, :kind, :swap_request_id, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("record point transaction: %w", err)
	}
	return nil
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}
