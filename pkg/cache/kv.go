// Package cache implements the query result cache: fingerprinted keys
// namespaced by scope and result kind, TTL envelopes, performance counters,
// scoped invalidation and fail-open behaviour over a pluggable key-value
// backend.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a KeyValueCache when the key does not exist or has expired.
var ErrMiss = errors.New("cache: miss")

// KeyValueCache is the minimal backend the cache needs.
type KeyValueCache interface {
	// Get returns ErrMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Scan lists every live key starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
	// TTL returns the remaining lifetime of key, a negative duration for keys
	// without expiry, or ErrMiss.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// PrefixDeleter is implemented by backends that can remove a key range in
// one bulk operation. Backends without it are swept with Scan + Delete.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
