// Package cache provides a Redis-backed reply cache for model calls.
// Identical prompts sent to the same model at the same temperature are served
// from Redis instead of the provider. Redis failures never fail a request: the
// cache is bypassed and the call proceeds.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

const (
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second
	writeTimeout      = 2 * time.Second
)

// entry is the JSON document stored under each cache key.
type entry struct {
	Content  string    `json:"content"`
	Model    string    `json:"model"`
	StoredAt time.Time `json:"stored_at"`
}

// Stats counts cache outcomes.
type Stats struct {
	Hits   atomic.Int64
	Misses atomic.Int64
	Errors atomic.Int64
}

type cacheMiddleware struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
	stats   *Stats
	logger  *slog.Logger
}

// NewCacheMiddlewareWithRedis creates the reply cache middleware.
// When client is nil and caching is enabled a client is dialed from cfg.
// A failed ping disables the cache instead of returning an error.
func NewCacheMiddlewareWithRedis(ctx context.Context, cfg configuration.CacheConfig, client *redis.Client) (transport.Middleware, *Stats) {
	logger := slog.Default().With("component", "cache")

	if cfg.Enabled && client == nil {
		if cfg.RedisAddr == "" {
			logger.Warn("cache enabled without redis address, cache disabled")
			cfg.Enabled = false
		} else {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
				PoolSize: defaultPoolSize,
			})
		}
	}

	if cfg.Enabled && client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis connection failed, cache disabled", "error", err)
			cfg.Enabled = false
		}
	}

	cm := &cacheMiddleware{
		client:  client,
		ttl:     cfg.TTL,
		enabled: cfg.Enabled && client != nil,
		stats:   &Stats{},
		logger:  logger,
	}
	return cm.middleware(), cm.stats
}

func (c *cacheMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !c.enabled {
				return next.Handle(ctx, req)
			}

			key := req.CacheKey()
			cached, err := c.get(ctx, key)
			switch {
			case err != nil:
				c.stats.Errors.Add(1)
				c.logger.Warn("cache get error", "error", err, "key", key)
			case cached != nil:
				c.stats.Hits.Add(1)
				c.logger.Debug("cache hit", "key", key, "model", req.Model, "trace_id", req.TraceID)
				return cached, nil
			default:
				c.stats.Misses.Add(1)
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			if resp != nil && resp.Content != "" {
				if err := c.set(ctx, key, resp); err != nil {
					c.stats.Errors.Add(1)
					c.logger.Warn("cache set error", "error", err, "key", key)
				}
			}
			return resp, nil
		})
	}
}

// get returns nil, nil on a miss. Undecodable entries are deleted and
// reported as misses.
func (c *cacheMiddleware) get(ctx context.Context, key string) (*transport.Response, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Content == "" {
		c.logger.Warn("dropping corrupt cache entry", "key", key)
		c.client.Del(ctx, key)
		return nil, nil
	}
	return &transport.Response{Content: e.Content, Model: e.Model, CacheHit: true}, nil
}

// set writes on a detached context so a caller that already has its reply
// does not abort the write.
func (c *cacheMiddleware) set(ctx context.Context, key string, resp *transport.Response) error {
	data, err := json.Marshal(entry{Content: resp.Content, Model: resp.Model, StoredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := c.client.Set(wctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
