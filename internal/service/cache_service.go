package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

const (
	catalogCachePattern = "catalog:*"
	catalogFeaturedKey  = "catalog:featured"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool

	// catalogMu orders catalog fills against invalidations. A fill holds the
	// read side across its generation check and write; an invalidation holds
	// the write side across its bump and delete.
	catalogMu  sync.RWMutex
	catalogGen uint64
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateCatalog drops every cached catalog page. Failures only log, since
// entries also expire on their TTL. Fills that started before the call are
// discarded by SetCatalog.
func (s *CacheService) InvalidateCatalog(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.catalogGen++
	_ = s.Invalidate(ctx, catalogCachePattern)
}

// CatalogGeneration is taken before loading catalog data from the database and
// handed back to SetCatalog.
func (s *CacheService) CatalogGeneration() uint64 {
	if !s.Enabled() {
		return 0
	}
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.catalogGen
}

// SetCatalog caches a catalog entry unless the catalog was invalidated after
// gen was read, in which case the value may predate the write and is dropped.
func (s *CacheService) SetCatalog(ctx context.Context, gen uint64, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	if s.catalogGen != gen {
		s.logger.Debug("skipping stale catalog fill", zap.String("key", key))
		return nil
	}
	return s.Set(ctx, key, value, ttl)
}

func catalogPageKey(filter models.CatalogFilter) string {
	return fmt.Sprintf("catalog:list:q=%s:c=%s:k=%s:p=%d:s=%d",
		url.QueryEscape(filter.Search), filter.Category, filter.Condition, filter.Page, filter.PageSize)
}
