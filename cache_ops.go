package burrow

import (
	"context"

	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/loader"
	"github.com/burrowcache/burrow/worker"
)

// Status is the (status, payload) tag of spec.md §6, re-exported so
// callers never need to import package worker directly.
type Status = worker.Status

const (
	StatusOK      = worker.StatusOK
	StatusMissing = worker.StatusMissing
	StatusLoaded  = worker.StatusLoaded
	StatusError   = worker.StatusError
)

// Result is the reply every Cache operation returns.
type Result struct {
	Status  Status
	Payload any
	Err     error
}

func fromWorker(r worker.Response) Result {
	return Result{Status: r.Status, Payload: r.Payload, Err: r.Err}
}

// GetCallOption overrides per-call behavior of Get/GetAndUpdate.
type GetCallOption[K comparable, V any] func(*worker.GetOptions[K, V])

// WithCallTTL overrides the TTL applied if this call triggers a fallback
// load.
func WithCallTTL[K comparable, V any](ttlMS int64) GetCallOption[K, V] {
	return func(o *worker.GetOptions[K, V]) { o.TTL = &ttlMS }
}

// WithCallFallback overrides the cache's default fallback for this call
// only. Passing a nil fn disables fallback for this call even if the
// cache has a default configured.
func WithCallFallback[K comparable, V any](fn loader.Func[K, V]) GetCallOption[K, V] {
	return func(o *worker.GetOptions[K, V]) {
		o.Fallback = fn
		o.UseFallback = true
	}
}

func buildGetOptions[K comparable, V any](opts []GetCallOption[K, V]) worker.GetOptions[K, V] {
	var o worker.GetOptions[K, V]
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Get returns the value for key, consulting any configured fallback on a
// miss (spec.md §4.2.1).
func (c *Cache[K, V]) Get(ctx context.Context, key K, opts ...GetCallOption[K, V]) Result {
	return fromWorker(c.w.Get(ctx, key, buildGetOptions(opts)))
}

// GetAndUpdate atomically reads then rewrites key via fn, returning the
// value as it was before fn ran (spec.md §4.2.2).
func (c *Cache[K, V]) GetAndUpdate(ctx context.Context, key K, fn func(value V, present bool) (V, error), opts ...GetCallOption[K, V]) Result {
	o := buildGetOptions(opts)
	return fromWorker(c.w.GetAndUpdate(ctx, key, fn, o))
}

// Set unconditionally stores value under key. ttl is nil to use the
// cache's configured default.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V, ttlMS *int64, async bool) Result {
	return fromWorker(c.w.Set(ctx, key, value, ttlMS, async))
}

// Update blindly overwrites the value stored under key, keeping its
// touched/ttl unchanged. A miss performs no write and reports
// {missing,false}; no fallback is consulted.
func (c *Cache[K, V]) Update(ctx context.Context, key K, value V, async bool) Result {
	return fromWorker(c.w.Update(ctx, key, value, async))
}

// Del removes key, reporting whether anything was removed.
func (c *Cache[K, V]) Del(ctx context.Context, key K, async bool) Result {
	return fromWorker(c.w.Del(ctx, key, async))
}

// Clear drops every entry, returning the count removed (or the async
// sentinel when async is true).
func (c *Cache[K, V]) Clear(ctx context.Context, async bool) Result {
	return fromWorker(c.w.Clear(ctx, async))
}

// Take atomically reads then removes key.
func (c *Cache[K, V]) Take(ctx context.Context, key K, async bool) Result {
	return fromWorker(c.w.Take(ctx, key, async))
}

// Incr/Decr adjust a numeric value, seeding it with initial when absent.
func (c *Cache[K, V]) Incr(ctx context.Context, key K, amount int64, initial *int64, async bool) Result {
	return fromWorker(c.w.Incr(ctx, key, amount, initial, async))
}

func (c *Cache[K, V]) Decr(ctx context.Context, key K, amount int64, initial *int64, async bool) Result {
	return fromWorker(c.w.Decr(ctx, key, amount, initial, async))
}

// Expire sets a new relative TTL (ms) on an existing key.
func (c *Cache[K, V]) Expire(ctx context.Context, key K, ttlMS int64, async bool) Result {
	return fromWorker(c.w.Expire(ctx, key, ttlMS, async))
}

// ExpireAt sets an absolute expiry deadline (epoch ms, clock.NowMS scale).
func (c *Cache[K, V]) ExpireAt(ctx context.Context, key K, atMS int64, async bool) Result {
	return fromWorker(c.w.ExpireAt(ctx, key, atMS, async))
}

// Persist removes any TTL from key.
func (c *Cache[K, V]) Persist(ctx context.Context, key K, async bool) Result {
	return fromWorker(c.w.Persist(ctx, key, async))
}

// Refresh resets key's touch time to now without changing its TTL length.
func (c *Cache[K, V]) Refresh(ctx context.Context, key K, async bool) Result {
	return fromWorker(c.w.Refresh(ctx, key, async))
}

// TTL returns the remaining milliseconds until key expires.
func (c *Cache[K, V]) TTL(ctx context.Context, key K) Result {
	return fromWorker(c.w.TTL(ctx, key))
}

// Size returns the store's record count, expired-inclusive. Call Purge
// first if you need the count of entries that would survive a sweep.
func (c *Cache[K, V]) Size(ctx context.Context) Result {
	return fromWorker(c.w.Size(ctx))
}

// Keys returns every key in the store, expired-inclusive.
func (c *Cache[K, V]) Keys(ctx context.Context) Result {
	return fromWorker(c.w.Keys(ctx))
}

// Count returns the live entry count, filtering out logically-expired
// records via a scan — unlike Size, which is expired-inclusive.
func (c *Cache[K, V]) Count(ctx context.Context) Result {
	return fromWorker(c.w.Count(ctx))
}

// Empty reports whether Size is zero; like Size, it counts expired records
// that have not been evicted yet.
func (c *Cache[K, V]) Empty(ctx context.Context) Result {
	return fromWorker(c.w.Empty(ctx))
}

// Exists reports whether key is present and unexpired.
func (c *Cache[K, V]) Exists(ctx context.Context, key K) Result {
	return fromWorker(c.w.Exists(ctx, key))
}

// Purge runs an immediate active-expiration sweep, the same operation the
// janitor performs on a schedule.
func (c *Cache[K, V]) Purge(ctx context.Context) Result {
	return fromWorker(c.w.Purge(ctx))
}

// Stats returns a snapshot of the built-in counters. It fails with
// ErrStatsNotEnabled if the cache was not started with WithStats.
func (c *Cache[K, V]) Stats() (hook.Snapshot, error) {
	if c.stats == nil {
		return hook.Snapshot{}, ErrStatsNotEnabled
	}
	return c.stats.Snapshot(), nil
}
