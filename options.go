package burrow

import (
	"time"

	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/loader"
	"github.com/burrowcache/burrow/replication"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Cache, the same functional-options shape the
// teacher's gorawrsquirrel.Option uses for Server.
type Option[K comparable, V any] func(*config[K, V])

// WithName sets the cache's registry name (spec.md §3). Required: StartLink
// rejects a cache with an empty name.
func WithName[K comparable, V any](name string) Option[K, V] {
	return func(c *config[K, V]) { c.name = name }
}

// WithBackend selects the storage engine. BackendRistretto additionally
// requires K to be string; StartLink validates this at construction time.
func WithBackend[K comparable, V any](kind BackendKind, maxCost int64) Option[K, V] {
	return func(c *config[K, V]) {
		c.backend = kind
		c.maxCost = maxCost
	}
}

// WithDefaultTTL sets the TTL (milliseconds) applied to Set/fallback writes
// that don't specify their own.
func WithDefaultTTL[K comparable, V any](ttlMS int64) Option[K, V] {
	return func(c *config[K, V]) { c.defaultTTLMS = &ttlMS }
}

// WithFallback installs the cache-wide fallback loader spec.md §4.2.1
// consults on a Get/GetAndUpdate miss, plus the fixed extra args passed to
// every invocation.
func WithFallback[K comparable, V any](fn loader.Func[K, V], args ...any) Option[K, V] {
	return func(c *config[K, V]) {
		c.fallback = fn
		c.fallbackArgs = args
	}
}

// WithCoalesceFallback collapses concurrent fallback invocations for the
// same key into one call (spec.md §9 open question), shaped after
// ristretto's own load-coalescing. Off by default: the base spec calls for
// strict per-key serialization with no implicit call sharing.
func WithCoalesceFallback[K comparable, V any]() Option[K, V] {
	return func(c *config[K, V]) { c.coalesceFallback = true }
}

// WithHook registers an additional observer (spec.md §4.4).
func WithHook[K comparable, V any](h hook.Hook) Option[K, V] {
	return func(c *config[K, V]) { c.hooks = append(c.hooks, h) }
}

// WithStats enables the built-in Prometheus-backed stats hook (spec.md
// §4.2.10). reg may be nil to skip Prometheus registration while still
// tracking in-process counters.
func WithStats[K comparable, V any](reg prometheus.Registerer) Option[K, V] {
	return func(c *config[K, V]) {
		c.statsEnabled = true
		c.statsReg = reg
	}
}

// WithTracing installs an OpenTelemetry span-per-action hook (spec.md's
// domain-stack tracing integration). tp may be nil to use the global
// TracerProvider.
func WithTracing[K comparable, V any](tp trace.TracerProvider) Option[K, V] {
	return func(c *config[K, V]) {
		c.tracingEnabled = true
		c.tracerProvider = tp
	}
}

// WithReplication switches the cache into remote mode (spec.md §4.6),
// routing every mutation through repl. transactional selects the two-phase
// LOCK/COMMIT/UNLOCK protocol over a plain broadcast.
func WithReplication[K comparable, V any](repl replication.Broadcaster, transactional bool) Option[K, V] {
	return func(c *config[K, V]) {
		c.remote = true
		c.transactional = transactional
		c.replicator = repl
	}
}

// WithReplyTimeout overrides the default 250ms reply wait (spec.md §4.2's
// "the worker continues to completion regardless").
func WithReplyTimeout[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.replyTimeout = d }
}

// WithJanitor enables active expiration (spec.md §4.3) ticking every
// interval. A zero or negative interval (the default) disables it; callers
// then rely solely on lazy expiration.
func WithJanitor[K comparable, V any](interval time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.janitorInterval = interval }
}

// DefaultOptions returns the recommended baseline: an in-process map
// backend and the spec's default 250ms reply timeout, mirroring the
// teacher's own DefaultOptions (WithRecovery only) in spirit — sane
// defaults, nothing surprising.
func DefaultOptions[K comparable, V any]() []Option[K, V] {
	return []Option[K, V]{
		WithBackend[K, V](BackendMap, 0),
		WithReplyTimeout[K, V](250 * time.Millisecond),
	}
}
