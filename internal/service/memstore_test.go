package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/repository"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

// memStore is an in-memory backend for items, users, swap requests and the
// points ledger. WithinTx works on a copy that is published only when the
// callback succeeds.
type memStore struct {
	mu      sync.Mutex
	items   map[string]*models.Item
	users   map[string]*models.User
	swaps   map[string]*models.SwapRequest
	entries []models.PointTransaction
	audits  []*models.AuditLog
	seq     int

	flagWrites    int
	failAdjustFor string
}

func newMemStore() *memStore {
	return &memStore{
		items: map[string]*models.Item{},
		users: map[string]*models.User{},
		swaps: map[string]*models.SwapRequest{},
	}
}

func (m *memStore) addUser(id, name string, points int, admin bool) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: id, Name: name, Email: id + "@example.com", Points: points, IsAdmin: admin}
	m.users[id] = u
	return u
}

func (m *memStore) addItem(item models.Item) *models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
	}
	stored := item
	m.items[item.ID] = &stored
	return &stored
}

func (m *memStore) item(id string) models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

func (m *memStore) user(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memStore) swapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.swaps)
}

// itemStore

func (m *memStore) Create(ctx context.Context, item *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if item.ID == "" {
		item.ID = fmt.Sprintf("item-%d", m.seq)
	}
	stored := *item
	m.items[item.ID] = &stored
	return nil
}

func (m *memStore) FindByID(ctx context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (m *memStore) List(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Item
	for _, item := range m.items {
		if matchesItemFilter(item, filter) {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context, filter models.ItemFilter) (int, error) {
	items, err := m.List(ctx, models.ItemFilter{UploaderID: filter.UploaderID, Approved: filter.Approved, Available: filter.Available, Featured: filter.Featured, Category: filter.Category, Condition: filter.Condition})
	return len(items), err
}

func (m *memStore) SetFeatured(ctx context.Context, id string, featured bool, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Featured = featured
	item.UpdatedAt = updatedAt
	return nil
}

func matchesItemFilter(item *models.Item, f models.ItemFilter) bool {
	switch {
	case f.UploaderID != "" && item.UploaderID != f.UploaderID:
		return false
	case f.Approved != nil && item.IsApproved != *f.Approved:
		return false
	case f.Available != nil && item.IsAvailable != *f.Available:
		return false
	case f.Featured != nil && item.Featured != *f.Featured:
		return false
	case f.Category != "" && item.Category != f.Category:
		return false
	case f.Condition != "" && item.Condition != f.Condition:
		return false
	}
	return true
}

// users

type memUsers struct{ *memStore }

func (u memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (u memUsers) Count(ctx context.Context) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.users), nil
}

// swaps

type memSwaps struct{ *memStore }

func (s memSwaps) FindByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.swaps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (s memSwaps) List(ctx context.Context, filter models.SwapRequestFilter) ([]models.SwapRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SwapRequest
	for _, req := range s.swaps {
		if matchesSwapFilter(req, filter) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			out = nil
		} else {
			out = out[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (s memSwaps) Count(ctx context.Context, filter models.SwapRequestFilter) (int, error) {
	filter.Limit, filter.Offset = 0, 0
	_, total, err := s.List(ctx, filter)
	return total, err
}

func matchesSwapFilter(req *models.SwapRequest, f models.SwapRequestFilter) bool {
	if f.RequesterID != "" && req.RequesterID != f.RequesterID {
		return false
	}
	if f.OwnerID != "" && req.OwnerID != f.OwnerID {
		return false
	}
	if f.ItemID != "" && req.ItemID != f.ItemID {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, status := range f.Status {
		if req.Status == status {
			return true
		}
	}
	return false
}

// ledger

func (m *memStore) ListPointTransactions(ctx context.Context, userID string) ([]models.PointTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PointTransaction
	for _, entry := range m.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, log)
	return nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(repository.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		items:      make(map[string]*models.Item, len(m.items)),
		users:      make(map[string]*models.User, len(m.users)),
		swaps:      make(map[string]*models.SwapRequest, len(m.swaps)),
		failFor:    m.failAdjustFor,
		sequencer:  &m.seq,
		flagWrites: &m.flagWrites,
	}
	for k, v := range m.items {
		c := *v
		tx.items[k] = &c
	}
	for k, v := range m.users {
		c := *v
		tx.users[k] = &c
	}
	for k, v := range m.swaps {
		c := *v
		tx.swaps[k] = &c
	}

	if err := fn(tx); err != nil {
		return err
	}
	m.items, m.users, m.swaps = tx.items, tx.users, tx.swaps
	m.entries = append(m.entries, tx.entries...)
	return nil
}

type memTx struct {
	items      map[string]*models.Item
	users      map[string]*models.User
	swaps      map[string]*models.SwapRequest
	entries    []models.PointTransaction
	failFor    string
	sequencer  *int
	flagWrites *int
}

var errInjected = errors.New("injected failure")

func (t *memTx) LockSwapRequest(ctx context.Context, id string) (*models.SwapRequest, error) {
	req, ok := t.swaps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *req
	return &c, nil
}

func (t *memTx) LockItems(ctx context.Context, ids ...string) (map[string]*models.Item, error) {
	out := map[string]*models.Item{}
	for _, id := range ids {
		if item, ok := t.items[id]; ok {
			c := *item
			out[id] = &c
		}
	}
	return out, nil
}

func (t *memTx) LockUsers(ctx context.Context, ids ...string) (map[string]*models.User, error) {
	out := map[string]*models.User{}
	for _, id := range ids {
		if user, ok := t.users[id]; ok {
			c := *user
			out[id] = &c
		}
	}
	return out, nil
}

func (t *memTx) CreateSwapRequest(ctx context.Context, req *models.SwapRequest) error {
	*t.sequencer++
	if req.ID == "" {
		req.ID = fmt.Sprintf("swap-%d", *t.sequencer)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Date(2024, 2, 1, 0, 0, *t.sequencer, 0, time.UTC)
	}
	c := *req
	t.swaps[req.ID] = &c
	return nil
}

func (t *memTx) UpdateSwapStatus(ctx context.Context, id string, status models.SwapStatus, updatedAt time.Time) error {
	req, ok := t.swaps[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.Status = status
	req.UpdatedAt = updatedAt
	return nil
}

func (t *memTx) UpdateItemFlags(ctx context.Context, id string, approved, available bool, updatedAt time.Time) error {
	item, ok := t.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	*t.flagWrites++
	item.IsApproved = approved
	item.IsAvailable = available
	item.UpdatedAt = updatedAt
	return nil
}

func (t *memTx) AdjustUserPoints(ctx context.Context, userID string, delta int, updatedAt time.Time) error {
	if userID == t.failFor {
		return errInjected
	}
	user, ok := t.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.Points += delta
	return nil
}

func (t *memTx) RecordPointTransaction(ctx context.Context, entry *models.PointTransaction) error {
	t.entries = append(t.entries, *entry)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// memCache is a CacheRepository backed by a map of JSON payloads.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload
	return nil
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
