package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
)

// ProjectionCache is a two-layer read-through cache for hydrated
// projections: an in-process LRU in front of Redis. Cached projections
// are pre-permission snapshots; per-request concerns (rank, budget
// hiding) are applied by the assembler after the fetch. The cache is
// flushed per entity type whenever a rebuild swaps in a new snapshot.
type ProjectionCache struct {
	l1      *lru.Cache[string, *planning.EntityProjection]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewProjectionCache creates a projection cache. The Redis client may
// be nil, leaving only the in-process layer active.
func NewProjectionCache(l1Size int, redisClient *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) (*ProjectionCache, error) {
	l1, err := lru.New[string, *planning.EntityProjection](l1Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	return &ProjectionCache{
		l1:      l1,
		redis:   redisClient,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func cacheKey(entityType planning.EntityType, entityID int64) string {
	return fmt.Sprintf("proj:%s:%d", entityType, entityID)
}

// Get returns the cached projection for one entity, promoting Redis
// hits into the L1 layer.
func (c *ProjectionCache) Get(ctx context.Context, entityType planning.EntityType, entityID int64) (*planning.EntityProjection, bool) {
	key := cacheKey(entityType, entityID)

	if proj, ok := c.l1.Get(key); ok {
		c.metrics.CacheHitsTotal.WithLabelValues("l1").Inc()
		return proj, true
	}
	c.metrics.CacheMissesTotal.WithLabelValues("l1").Inc()

	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("Redis cache read failed")
		}
		c.metrics.CacheMissesTotal.WithLabelValues("l2").Inc()
		return nil, false
	}

	var proj planning.EntityProjection
	if err := json.Unmarshal(data, &proj); err != nil {
		c.logger.WithError(err).Warn("Discarding undecodable cached projection")
		c.metrics.CacheMissesTotal.WithLabelValues("l2").Inc()
		return nil, false
	}

	c.metrics.CacheHitsTotal.WithLabelValues("l2").Inc()
	c.l1.Add(key, &proj)
	return &proj, true
}

// Set stores a projection in both layers
func (c *ProjectionCache) Set(ctx context.Context, proj *planning.EntityProjection) {
	key := cacheKey(proj.Kind, proj.ID)
	c.l1.Add(key, proj)

	if c.redis == nil {
		return
	}

	data, err := json.Marshal(proj)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode projection for cache")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("Redis cache write failed")
	}
}

// Flush drops every cached projection for one entity type. Called
// after a successful rebuild so stale pre-swap projections cannot
// outlive the snapshot that produced them.
func (c *ProjectionCache) Flush(ctx context.Context, entityType planning.EntityType) error {
	prefix := fmt.Sprintf("proj:%s:", entityType)
	for _, key := range c.l1.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.l1.Remove(key)
		}
	}

	if c.redis == nil {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, prefix+"*", 512).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
