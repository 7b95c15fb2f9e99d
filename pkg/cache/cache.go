package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/metrics"
)

const (
	// envelope header: created unix nanos + ttl nanos, big endian
	headerSize = 16

	defaultOpTimeout   = 250 * time.Millisecond
	defaultBulkTimeout = 5 * time.Second
	defaultLoadTimeout = 30 * time.Second

	// healthSampleLimit caps how many entries HealthMetrics reads to estimate size and age.
	healthSampleLimit = 1000
)

// Options configures a Cache.
type Options struct {
	Prefix      string
	OpTimeout   time.Duration
	BulkTimeout time.Duration
	// LoadTimeout bounds a shared read-through load. The load is detached
	// from the caller that started it, so this is its only deadline.
	LoadTimeout time.Duration
	Metrics     *metrics.CacheMetrics
}

// PerformanceCounters are process-wide lookup counters. They survive entry
// expiry and are only reset by ResetStats.
type PerformanceCounters struct {
	Hits     int64     `json:"hits"`
	Misses   int64     `json:"misses"`
	Lookups  int64     `json:"lookups"`
	HitRatio float64   `json:"hit_ratio"`
	ResetAt  time.Time `json:"reset_at"`
}

// HealthMetrics summarises the cache for the health surface.
type HealthMetrics struct {
	Healthy         bool           `json:"healthy"`
	Error           string         `json:"error,omitempty"`
	TotalKeys       int            `json:"total_keys"`
	KeysByKind      map[string]int `json:"keys_by_kind"`
	ApproxSizeBytes int64          `json:"approx_size_bytes"`
	HitRatio        float64        `json:"hit_ratio"`
	Hits            int64          `json:"hits"`
	Misses          int64          `json:"misses"`
	OldestEntry     *time.Time     `json:"oldest_entry,omitempty"`
	NewestEntry     *time.Time     `json:"newest_entry,omitempty"`
	Sampled         int            `json:"sampled"`
}

type scopeState struct {
	mu    sync.RWMutex
	epoch uint64
}

// Cache is safe for concurrent use. Backend failures never reach callers of
// Get, Set or InvalidateScope: a failed Get is a miss, failed writes and
// invalidations are logged and dropped.
type Cache struct {
	kv          KeyValueCache
	prefix      string
	opTimeout   time.Duration
	bulkTimeout time.Duration
	loadTimeout time.Duration
	metrics     *metrics.CacheMetrics
	logger      *zap.Logger
	now         func() time.Time

	hits    atomic.Int64
	misses  atomic.Int64
	resetAt atomic.Int64

	scopesMu sync.Mutex
	scopes   map[Scope]*scopeState

	loads singleflight.Group
}

// New creates a Cache over kv.
func New(kv KeyValueCache, opts Options, logger *zap.Logger) *Cache {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	if opts.BulkTimeout <= 0 {
		opts.BulkTimeout = defaultBulkTimeout
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	c := &Cache{
		kv:          kv,
		prefix:      strings.TrimSuffix(opts.Prefix, ":"),
		opTimeout:   opts.OpTimeout,
		bulkTimeout: opts.BulkTimeout,
		loadTimeout: opts.LoadTimeout,
		metrics:     opts.Metrics,
		logger:      logger.Named("cache"),
		now:         time.Now,
		scopes:      make(map[Scope]*scopeState),
	}
	c.resetAt.Store(c.now().UnixNano())
	return c
}

func (c *Cache) rootPrefix() string {
	if c.prefix == "" {
		return ""
	}
	return c.prefix + ":"
}

func (c *Cache) storageKey(key Key) string {
	return c.rootPrefix() + key.String()
}

func (c *Cache) scopePrefix(scope Scope) string {
	return c.rootPrefix() + string(scope) + ":"
}

func (c *Cache) scope(s Scope) *scopeState {
	c.scopesMu.Lock()
	defer c.scopesMu.Unlock()
	st, ok := c.scopes[s]
	if !ok {
		st = &scopeState{}
		c.scopes[s] = st
	}
	return st
}

// Get returns the cached value for key. Every call counts as a hit or a miss.
func (c *Cache) Get(ctx context.Context, key Key) ([]byte, bool) {
	start := c.now()
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.kv.Get(opCtx, c.storageKey(key))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.backendFailure("get", key, err)
		}
		c.recordMiss(key.Kind, start)
		return nil, false
	}

	value, _, _, ok := decodeEntry(raw)
	if !ok {
		c.logger.Warn("Discarding malformed cache entry", zap.String("key", key.String()))
		c.recordMiss(key.Kind, start)
		return nil, false
	}
	c.recordHit(key.Kind, start)
	return value, true
}

// Set stores value under key with the given ttl.
func (c *Cache) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) {
	st := c.scope(key.Scope)
	st.mu.RLock()
	defer st.mu.RUnlock()
	c.write(ctx, key, value, ttl)
}

// setIfEpoch stores value only when no invalidation of the key's scope has
// happened since epoch was observed.
func (c *Cache) setIfEpoch(ctx context.Context, key Key, value []byte, ttl time.Duration, epoch uint64) bool {
	st := c.scope(key.Scope)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.epoch != epoch {
		return false
	}
	c.write(ctx, key, value, ttl)
	return true
}

func (c *Cache) epoch(s Scope) uint64 {
	st := c.scope(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.epoch
}

func (c *Cache) write(ctx context.Context, key Key, value []byte, ttl time.Duration) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.kv.Set(opCtx, c.storageKey(key), encodeEntry(value, c.now(), ttl), ttl); err != nil {
		c.backendFailure("set", key, err)
	}
}

// InvalidateScope removes every entry under scope. When it returns, no Get
// for the scope can hit a value loaded before the call. It waits for
// in-flight writes to the scope and rejects late writes from loads that
// started earlier.
func (c *Cache) InvalidateScope(ctx context.Context, scope Scope) int {
	st := c.scope(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.epoch++

	c.metrics.RecordInvalidation(string(scope))

	removed, err := c.deletePrefix(ctx, c.scopePrefix(scope))
	if err != nil {
		c.metrics.RecordBackendError("invalidate")
		c.logger.Warn("Cache invalidation failed",
			zap.String("scope", string(scope)),
			zap.Error(apperrors.Wrap(err, apperrors.KindCache, "cache.invalidate")))
		return removed
	}
	c.logger.Debug("Invalidated cache scope",
		zap.String("scope", string(scope)),
		zap.Int("removed", removed))
	return removed
}

// ClearAll removes every entry under the cache prefix. Unlike the read and
// write paths it reports backend failures, since an operator asked for it.
func (c *Cache) ClearAll(ctx context.Context) (int, error) {
	c.scopesMu.Lock()
	names := make([]string, 0, len(c.scopes))
	for s := range c.scopes {
		names = append(names, string(s))
	}
	sort.Strings(names)
	states := make([]*scopeState, 0, len(names))
	for _, name := range names {
		states = append(states, c.scopes[Scope(name)])
	}
	c.scopesMu.Unlock()

	// Fixed lock order keeps concurrent clears from deadlocking.

	for _, st := range states {
		st.mu.Lock()
		st.epoch++
	}
	defer func() {
		for _, st := range states {
			st.mu.Unlock()
		}
	}()

	removed, err := c.deletePrefix(ctx, c.rootPrefix())
	if err != nil {
		c.metrics.RecordBackendError("clear")
		return removed, apperrors.Wrap(err, apperrors.KindCache, "cache.clear")
	}
	c.logger.Info("Cleared cache", zap.Int("removed", removed))
	return removed, nil
}

func (c *Cache) deletePrefix(ctx context.Context, prefix string) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.bulkTimeout)
	defer cancel()

	if pd, ok := c.kv.(PrefixDeleter); ok {
		return pd.DeletePrefix(opCtx, prefix)
	}

	keys, err := c.kv.Scan(opCtx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.kv.Delete(opCtx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Stats returns a snapshot of the performance counters.
func (c *Cache) Stats() PerformanceCounters {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return PerformanceCounters{
		Hits:     hits,
		Misses:   misses,
		Lookups:  hits + misses,
		HitRatio: metrics.HitRatio(hits, misses),
		ResetAt:  time.Unix(0, c.resetAt.Load()).UTC(),
	}
}

// ResetStats zeroes the performance counters.
func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.resetAt.Store(c.now().UnixNano())
	c.logger.Info("Cache performance counters reset")
}

// HealthMetrics inspects the backend. Size and entry age are estimated from
// at most healthSampleLimit entries.
func (c *Cache) HealthMetrics(ctx context.Context) HealthMetrics {
	stats := c.Stats()
	hm := HealthMetrics{
		Healthy:    true,
		KeysByKind: make(map[string]int),
		HitRatio:   stats.HitRatio,
		Hits:       stats.Hits,
		Misses:     stats.Misses,
	}

	opCtx, cancel := context.WithTimeout(ctx, c.bulkTimeout)
	defer cancel()

	keys, err := c.kv.Scan(opCtx, c.rootPrefix())
	if err != nil {
		c.metrics.RecordBackendError("health")
		hm.Healthy = false
		hm.Error = apperrors.Wrap(err, apperrors.KindCache, "cache.health").Error()
		return hm
	}
	hm.TotalKeys = len(keys)

	var sampledBytes int64
	for _, k := range keys {
		if kind := kindOf(strings.TrimPrefix(k, c.rootPrefix())); kind != "" {
			hm.KeysByKind[kind]++
		}
		if hm.Sampled >= healthSampleLimit {
			continue
		}
		raw, err := c.kv.Get(opCtx, k)
		if err != nil {
			continue
		}
		hm.Sampled++
		sampledBytes += int64(len(k) + len(raw))

		_, created, _, ok := decodeEntry(raw)
		if !ok {
			continue
		}
		if hm.OldestEntry == nil || created.Before(*hm.OldestEntry) {
			t := created
			hm.OldestEntry = &t
		}
		if hm.NewestEntry == nil || created.After(*hm.NewestEntry) {
			t := created
			hm.NewestEntry = &t
		}
	}
	if hm.Sampled > 0 {
		hm.ApproxSizeBytes = sampledBytes * int64(hm.TotalKeys) / int64(hm.Sampled)
	}
	return hm
}

// Ping probes the backend with a single read under the op timeout. It does
// not touch the hit/miss counters.
func (c *Cache) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if _, err := c.kv.Get(opCtx, c.rootPrefix()+"ping"); err != nil && !errors.Is(err, ErrMiss) {
		return apperrors.Wrap(err, apperrors.KindCache, "cache.ping")
	}
	return nil
}

// kindOf extracts the kind from "<scope>:<kind>:<fingerprint>".
func kindOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

func (c *Cache) recordHit(kind Kind, start time.Time) {
	c.hits.Add(1)
	c.metrics.RecordHit(string(kind), c.now().Sub(start).Seconds())
}

func (c *Cache) recordMiss(kind Kind, start time.Time) {
	c.misses.Add(1)
	c.metrics.RecordMiss(string(kind), c.now().Sub(start).Seconds())
}

func (c *Cache) backendFailure(op string, key Key, err error) {
	c.metrics.RecordBackendError(op)
	c.logger.Warn("Cache backend unavailable, failing open",
		zap.String("op", op),
		zap.String("key", key.String()),
		zap.Error(apperrors.Wrap(err, apperrors.KindCache, "cache."+op)))
}

func encodeEntry(value []byte, created time.Time, ttl time.Duration) []byte {
	buf := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(buf[0:8], uint64(created.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(ttl))
	copy(buf[headerSize:], value)
	return buf
}

func decodeEntry(raw []byte) (value []byte, created time.Time, ttl time.Duration, ok bool) {
	if len(raw) < headerSize {
		return nil, time.Time{}, 0, false
	}
	created = time.Unix(0, int64(binary.BigEndian.Uint64(raw[0:8]))).UTC()
	ttl = time.Duration(int64(binary.BigEndian.Uint64(raw[8:16])))
	return raw[headerSize:], created, ttl, true
}
