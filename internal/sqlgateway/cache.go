package sqlgateway

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/tranhaiminh/docvault/pkg/config"
	"github.com/tranhaiminh/docvault/pkg/logger"
	"github.com/tranhaiminh/docvault/pkg/metrics"
	pkgredis "github.com/tranhaiminh/docvault/pkg/redis"
)

const keyPrefix = "gateway:"

// QueryCache caches gateway query results in Redis, keyed by query hash.
// Identical concurrent queries are collapsed with singleflight so only one
// hits the database. Any document mutation invalidates the whole prefix.
type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewQueryCache creates a QueryCache. metrics may be nil.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		logger:  logger.WithComponent("gateway-cache"),
		metrics: m,
	}
}

// GetOrExecute returns the cached result for the query, or runs execute once
// (deduplicated across concurrent identical queries) and caches the result.
func (c *QueryCache) GetOrExecute(ctx context.Context, query string, execute func() (*Result, error)) (*Result, error) {
	key := c.buildKey(query)

	if data, err := c.client.Get(ctx, key); err == nil {
		var result Result
		if err := json.Unmarshal([]byte(data), &result); err == nil {
			c.countHit()
			return &result, nil
		}
		c.logger.Warn("dropping undecodable cache entry", "key", key)
		_ = c.client.Del(ctx, key)
	} else if !pkgredis.IsNilError(err) {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	c.countMiss()

	v, err, _ := c.group.Do(key, func() (any, error) {
		result, err := execute()
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(result); err == nil {
			if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
				c.logger.Error("cache set failed", "key", key, "error", err)
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Invalidate drops every cached gateway result. Called after any document
// mutation commits.
func (c *QueryCache) Invalidate(ctx context.Context) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Error("cache invalidation failed", "error", err)
		return
	}
	if deleted > 0 {
		c.logger.Debug("gateway cache invalidated", "keys", deleted)
	}
}

func (c *QueryCache) buildKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

func (c *QueryCache) countHit() {
	if c.metrics != nil {
		c.metrics.GatewayCacheHits.Inc()
	}
}

func (c *QueryCache) countMiss() {
	if c.metrics != nil {
		c.metrics.GatewayCacheMisses.Inc()
	}
}
