package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const multiplierCacheKeyPrefix = "pricing:multiplier:"

// CachedMultiplierSourceDeps bundles collaborators for the cached source.
type CachedMultiplierSourceDeps struct {
	Source MultiplierSource
	Client redis.Cmdable
	TTL    time.Duration
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// CachedMultiplierSource fronts a MultiplierSource with a redis TTL cache.
// Cache failures degrade to the underlying source; a stale multiplier is
// acceptable for at most the configured TTL.
type CachedMultiplierSource struct {
	source MultiplierSource
	client redis.Cmdable
	ttl    time.Duration
	logger func(context.Context, string, map[string]any)
}

// NewCachedMultiplierSource wires the read-through cache. The redis client is
// optional; without one the source is returned untouched.
func NewCachedMultiplierSource(deps CachedMultiplierSourceDeps) (MultiplierSource, error) {
	if deps.Source == nil {
		return nil, errors.New("multiplier cache: source is required")
	}
	if deps.Client == nil {
		return deps.Source, nil
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CachedMultiplierSource{
		source: deps.Source,
		client: deps.Client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetMultipliers serves labels from redis where possible and reads the
// remainder through the underlying source, caching what it finds. Labels the
// source does not know stay absent from the result and are not negatively
// cached, so newly configured multipliers take effect immediately.
func (c *CachedMultiplierSource) GetMultipliers(ctx context.Context, labels []string) (map[string]float64, error) {
	if len(labels) == 0 {
		return map[string]float64{}, nil
	}

	result := make(map[string]float64, len(labels))
	missing := labels

	keys := make([]string, len(labels))
	for i, label := range labels {
		keys[i] = multiplierCacheKeyPrefix + label
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger(ctx, "pricing.multiplier.cache.read_failed", map[string]any{"error": err.Error()})
	} else {
		missing = missing[:0:0]
		for i, raw := range values {
			str, ok := raw.(string)
			if !ok {
				missing = append(missing, labels[i])
				continue
			}
			value, parseErr := strconv.ParseFloat(str, 64)
			if parseErr != nil {
				missing = append(missing, labels[i])
				continue
			}
			result[labels[i]] = value
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.source.GetMultipliers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for label, value := range fetched {
		result[label] = value
	}

	if len(fetched) > 0 {
		pipe := c.client.Pipeline()
		for label, value := range fetched {
			pipe.Set(ctx, multiplierCacheKeyPrefix+label, strconv.FormatFloat(value, 'f', -1, 64), c.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger(ctx, "pricing.multiplier.cache.write_failed", map[string]any{"error": err.Error()})
		}
	}

	return result, nil
}

var _ MultiplierSource = (*CachedMultiplierSource)(nil)
