// Package burrow is an in-memory, TTL-aware key/value cache built around a
// single-writer actor (package worker), following the teacher's composable
// functional-options Server shape (see options.go) but
// wrapping a cache worker instead of a grpc.Server.
package burrow

import (
	"context"
	"fmt"

	"github.com/burrowcache/burrow/clock"
	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/janitor"
	"github.com/burrowcache/burrow/store"
	"github.com/burrowcache/burrow/supervisor"
	"github.com/burrowcache/burrow/worker"
)

// Cache is the handle returned by StartLink, analogous to the teacher's
// *Server: it owns the supervised worker goroutine (and, if configured,
// the janitor and hook dispatch goroutines) and exposes the cache's public
// operations.
type Cache[K comparable, V any] struct {
	name string
	w    *worker.Worker[K, V]
	disp *hook.Dispatcher
	sup  *supervisor.Supervisor
	stats *hook.Stats
}

// StartLink builds and starts a Cache, applying opts over DefaultOptions.
// The name "StartLink" echoes the Erlang/OTP supervision idiom spec.md §3
// is modeled on: constructing a cache also starts its supervised actors,
// and a crash inside them restarts in place rather than killing the cache.
func StartLink[K comparable, V any](opts ...Option[K, V]) (*Cache[K, V], error) {
	cfg := config[K, V]{}
	for _, o := range DefaultOptions[K, V]() {
		o(&cfg)
	}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidOption)
	}
	if err := globalRegistry.reserve(cfg.name); err != nil {
		return nil, err
	}

	st, err := buildStore[K, V](cfg)
	if err != nil {
		globalRegistry.release(cfg.name)
		return nil, err
	}

	sup := supervisor.New(nil)

	hooks := append([]hook.Hook{}, cfg.hooks...)
	var stats *hook.Stats
	if cfg.statsEnabled {
		stats = hook.NewStats(cfg.name, cfg.statsReg)
		hooks = append(hooks, stats)
	}
	if cfg.tracingEnabled {
		hooks = append(hooks, hook.NewTracing(cfg.name, cfg.tracerProvider))
	}
	reg := hook.NewRegistry(hooks...)
	disp := hook.NewDispatcher(reg, sup)

	wcfg := worker.Config[K, V]{
		Name:             cfg.name,
		DefaultTTLMS:     cfg.defaultTTLMS,
		DefaultFallback:  cfg.fallback,
		FallbackArgs:     cfg.fallbackArgs,
		Remote:           cfg.remote,
		Transactional:    cfg.transactional,
		ReplyTimeout:     cfg.replyTimeout,
		CoalesceFallback: cfg.coalesceFallback,
	}
	w := worker.New(wcfg, st, clock.System(), disp, cfg.replicator)
	sup.Spawn(cfg.name+"-worker", w.Run)

	if cfg.janitorInterval > 0 {
		j := janitor.New(func(ctx context.Context) (int, error) {
			resp := w.Purge(ctx)
			if resp.Status == worker.StatusError {
				return 0, resp.Err
			}
			n, _ := resp.Payload.(int)
			return n, nil
		}, cfg.janitorInterval, nil)
		sup.Spawn(cfg.name+"-janitor", j.Run)
	}

	return &Cache[K, V]{name: cfg.name, w: w, disp: disp, sup: sup, stats: stats}, nil
}

func buildStore[K comparable, V any](cfg config[K, V]) (store.Store[K, V], error) {
	switch cfg.backend {
	case BackendRistretto:
		rs, err := store.NewRistrettoStore[V](cfg.maxCost)
		if err != nil {
			return nil, fmt.Errorf("burrow: building ristretto store: %w", err)
		}
		s, ok := any(rs).(store.Store[K, V])
		if !ok {
			return nil, fmt.Errorf("%w: BackendRistretto requires string keys", ErrInvalidOption)
		}
		return s, nil
	default:
		return store.NewMapStore[K, V](), nil
	}
}

// Stop tears down every supervised goroutine (worker, janitor, hook
// dispatch) and releases the cache's registry name. It is the client-facing
// counterpart of spec.md §3's supervised shutdown.
//
// disp.Close must run before sup.Stop: a hook's dispatch loop only notices
// shutdown through its queue closing, not through the supervisor's stop
// channel, so stopping the supervisor first would deadlock waiting on a
// goroutine nothing has told to exit yet.
func (c *Cache[K, V]) Stop() {
	c.disp.Close()
	c.sup.Stop()
	globalRegistry.release(c.name)
}

// Name returns the cache's registry name.
func (c *Cache[K, V]) Name() string { return c.name }
