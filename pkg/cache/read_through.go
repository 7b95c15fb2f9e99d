package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// GetOrLoad implements read-through on top of the cache: a hit is decoded
// into T, a miss calls load and stores its result. Concurrent misses for the
// same key within one scope epoch share one load; a miss after an
// invalidation starts a fresh load instead of joining one that may have read
// pre-invalidation data. A result loaded across an invalidation of the key's
// scope is returned to the caller but not stored.
//
// The shared load runs detached from ctx, bounded by Options.LoadTimeout, so
// one caller giving up does not fail the others waiting on it. A cancelled
// caller returns its own ctx error immediately.
func GetOrLoad[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := c.Get(ctx, key); ok {
		var cached T
		err := json.Unmarshal(raw, &cached)
		if err == nil {
			return cached, nil
		}
		c.logger.Warn("Failed to decode cached value, reloading",
			zap.String("key", key.String()), zap.Error(err))
	}

	epoch := c.epoch(key.Scope)
	flight := key.String() + "#" + strconv.FormatUint(epoch, 10)
	ch := c.loads.DoChan(flight, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			c.logger.Warn("Failed to encode value for cache", zap.String("key", key.String()), zap.Error(err))
			return value, nil
		}
		if !c.setIfEpoch(loadCtx, key, data, ttl, epoch) {
			c.logger.Debug("Scope invalidated during load, not caching", zap.String("key", key.String()))
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
