package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint for SCAN and the UNLINK batch size.
const scanBatch = 500

// RedisKV is a KeyValueCache on Redis. Prefix deletion uses SCAN MATCH and
// UNLINK so large scopes never block the server.
type RedisKV struct {
	client redis.UniversalClient
}

var (
	_ KeyValueCache = (*RedisKV)(nil)
	_ PrefixDeleter = (*RedisKV)(nil)
)

// NewRedisKV wraps an existing client. The caller owns the client's lifecycle.
func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Unlink(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis unlink: %w", err)
	}
	return nil
}

func (r *RedisKV) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, matchPattern(prefix), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

func (r *RedisKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	// go-redis passes through -2 (no key) and -1 (no expiry) unscaled.
	switch {
	case d == -2:
		return 0, ErrMiss
	case d < 0:
		return -1, nil
	}
	return d, nil
}

// DeletePrefix unlinks matching keys in batches while scanning.
func (r *RedisKV) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, matchPattern(prefix), scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// matchPattern turns a literal prefix into a SCAN MATCH glob.
func matchPattern(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}
