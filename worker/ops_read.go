package worker

import (
	"context"

	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/loader"
)

// Get implements spec.md §4.2.1: return the value if present and unexpired;
// otherwise, if a fallback is configured (per-call or default), invoke it,
// store the result under opts.ttl (or the cache default), and return it as
// StatusLoaded. A fallback error surfaces as StatusError with the
// *loader.ErrFallback payload rather than being treated as a miss.
func (w *Worker[K, V]) Get(ctx context.Context, key K, opts GetOptions[K, V]) Response {
	return w.send(ctx, envelope[K, V]{
		op:          "get",
		key:         key,
		ttl:         opts.TTL,
		fallback:    opts.Fallback,
		useFallback: opts.UseFallback,
		async:       false,
	})
}

// GetOptions mirrors spec.md's per-call opts argument to get.
type GetOptions[K comparable, V any] struct {
	TTL         *int64
	Fallback    loader.Func[K, V]
	UseFallback bool // true iff Fallback should override the cache default (a nil Fallback with UseFallback true explicitly disables fallback for this call)
}

func (w *Worker[K, V]) handleGet(ctx context.Context, env envelope[K, V]) Response {
	return w.dispatch(hook.ActionGet, []any{env.key}, func() Response {
		rec, ok := w.store.Get(env.key)
		now := w.clk.NowMS()
		if ok && !rec.ExpiredAt(now) {
			return Response{Status: StatusOK, Payload: rec.Value}
		}

		fb, use := w.resolveFallback(env)
		if !use {
			expired := false
			if ok {
				// present but expired: treat as a miss, matching spec.md's
				// lazy-expiry rule that expired entries read as absent.
				w.store.Remove(env.key)
				expired = true
			}
			return Response{Status: StatusMissing, lazyExpired: expired}
		}

		v, err := w.loadWithCoalescing(ctx, env.key, fb)
		if err != nil {
			return errResp(err)
		}

		ttl := env.ttl
		if ttl == nil {
			ttl = w.cfg.DefaultTTLMS
		}
		w.storeLocally(ctx, env.key, v, ttl, now)
		return Response{Status: StatusLoaded, Payload: v}
	})
}

func (w *Worker[K, V]) resolveFallback(env envelope[K, V]) (loader.Func[K, V], bool) {
	if env.useFallback {
		return env.fallback, env.fallback != nil
	}
	return w.cfg.DefaultFallback, w.cfg.DefaultFallback != nil
}

// loadWithCoalescing invokes fb, collapsing concurrent loads for the same
// key into one call when cfg.CoalesceFallback is set (spec.md §9 open
// question, resolved as an opt-in), shaped after ristretto's own call
// struct used by the teacher's L1 layer to dedupe concurrent Gets.
func (w *Worker[K, V]) loadWithCoalescing(ctx context.Context, key K, fb loader.Func[K, V]) (V, error) {
	if !w.cfg.CoalesceFallback {
		return loader.Invoke(ctx, fb, key, w.cfg.FallbackArgs...)
	}

	if ch, inflight := w.inflight[any(key)]; inflight {
		r := <-ch
		return r.v, r.err
	}

	ch := make(chan loadResult[V], 1)
	w.inflight[any(key)] = ch
	v, err := loader.Invoke(ctx, fb, key, w.cfg.FallbackArgs...)
	delete(w.inflight, any(key))
	ch <- loadResult[V]{v: v, err: err}
	close(ch)
	return v, err
}

// storeLocally persists a value a fallback just produced. Its replication
// error (remote mode only) is intentionally not surfaced here: the Get or
// GetAndUpdate that triggered the load already has a value to return, and
// a lagging peer does not change that outcome, unlike an explicit Set
// whose whole point is the write.
func (w *Worker[K, V]) storeLocally(ctx context.Context, key K, v V, ttl *int64, now int64) {
	if w.cfg.Remote {
		_ = w.applyRemote(ctx, "set", key, v, ttl)
		return
	}
	w.store.Put(key, recordFor(v, ttl, now))
}

// GetAndUpdate implements spec.md §4.2.2: atomically read the current
// value (invoking fallback on a miss exactly like Get) then apply fn to
// produce the new stored value, returning the value as it was BEFORE fn
// ran.
func (w *Worker[K, V]) GetAndUpdate(ctx context.Context, key K, fn func(V, bool) (V, error), opts GetOptions[K, V]) Response {
	return w.send(ctx, envelope[K, V]{
		op:          "get_and_update",
		key:         key,
		fn:          fn,
		ttl:         opts.TTL,
		fallback:    opts.Fallback,
		useFallback: opts.UseFallback,
	})
}

func (w *Worker[K, V]) handleGetAndUpdate(ctx context.Context, env envelope[K, V]) Response {
	return w.dispatch(hook.ActionGetAndUpdate, []any{env.key}, func() Response {
		now := w.clk.NowMS()
		rec, ok := w.store.Get(env.key)
		hit := ok && !rec.ExpiredAt(now)
		present := hit

		var before V
		if present {
			before = rec.Value
		} else {
			fb, use := w.resolveFallback(env)
			if use {
				v, err := w.loadWithCoalescing(ctx, env.key, fb)
				if err != nil {
					return errResp(err)
				}
				before = v
				present = true
			}
		}

		updated, err := env.fn(before, present)
		if err != nil {
			return errResp(err)
		}

		// A hit writes back without refreshing touched/ttl (spec.md §4.2.2);
		// a miss (loaded via fallback, or absent with no fallback) takes a
		// fresh touched/ttl.
		if hit {
			w.storeLocally(ctx, env.key, updated, rec.TTL, rec.Touched)
		} else {
			ttl := env.ttl
			if ttl == nil {
				ttl = w.cfg.DefaultTTLMS
			}
			w.storeLocally(ctx, env.key, updated, ttl, now)
		}

		status := StatusOK
		switch {
		case !present:
			status = StatusMissing
		case !hit:
			status = StatusLoaded
		}
		return Response{Status: status, Payload: before}
	})
}

// TTL implements spec.md §4.2.8: remaining milliseconds until expiry, nil
// payload for a non-expiring entry, StatusMissing if absent or expired.
func (w *Worker[K, V]) TTL(ctx context.Context, key K) Response {
	return w.send(ctx, envelope[K, V]{op: "ttl", key: key})
}

func (w *Worker[K, V]) handleTTL(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionTTL, []any{env.key}, func() Response {
		rec, ok := w.store.Get(env.key)
		now := w.clk.NowMS()
		if !ok || rec.ExpiredAt(now) {
			return Response{Status: StatusMissing}
		}
		if rec.TTL == nil {
			return Response{Status: StatusOK, Payload: (*int64)(nil)}
		}
		remaining := rec.Touched + *rec.TTL - now
		return Response{Status: StatusOK, Payload: remaining}
	})
}

// Size implements spec.md §4.2.9: raw record count in the store,
// expired-inclusive, with no eviction side effect — size is a read, and
// the §8 invariant count + evicted-on-next-purge = size only holds if size
// never evicts on its own.
func (w *Worker[K, V]) Size(ctx context.Context) Response {
	return w.send(ctx, envelope[K, V]{op: "size"})
}

func (w *Worker[K, V]) handleSize(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionSize, nil, func() Response {
		return Response{Status: StatusOK, Payload: w.store.Len()}
	})
}

// Keys implements spec.md §4.2.9's companion operation: every key in the
// store, expired-inclusive (filtering by scan is not required here — it's
// the cheap path, unlike the lazy-expiry filtering Get performs per-key).
func (w *Worker[K, V]) Keys(ctx context.Context) Response {
	return w.send(ctx, envelope[K, V]{op: "keys"})
}

func (w *Worker[K, V]) handleKeys(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionKeys, nil, func() Response {
		var keys []K
		w.store.Scan(func(k K, r recordType[V]) bool {
			keys = append(keys, k)
			return true
		})
		return Response{Status: StatusOK, Payload: keys}
	})
}

// Count implements spec.md §4.2.9: the live entry count, found by scanning
// and filtering out logically-expired records — unlike Size, which reports
// the store's raw expired-inclusive record count.
func (w *Worker[K, V]) Count(ctx context.Context) Response {
	return w.send(ctx, envelope[K, V]{op: "count"})
}

func (w *Worker[K, V]) handleCount(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionCount, nil, func() Response {
		now := w.clk.NowMS()
		n := 0
		w.store.Scan(func(k K, r recordType[V]) bool {
			if !r.ExpiredAt(now) {
				n++
			}
			return true
		})
		return Response{Status: StatusOK, Payload: n}
	})
}

// Empty implements spec.md §4.2.8: size == 0.
func (w *Worker[K, V]) Empty(ctx context.Context) Response {
	return w.send(ctx, envelope[K, V]{op: "empty"})
}

func (w *Worker[K, V]) handleEmpty(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionEmpty, nil, func() Response {
		return Response{Status: StatusOK, Payload: w.store.Len() == 0}
	})
}

// Exists reports whether key is present and unexpired.
func (w *Worker[K, V]) Exists(ctx context.Context, key K) Response {
	return w.send(ctx, envelope[K, V]{op: "exists", key: key})
}

func (w *Worker[K, V]) handleExists(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionExists, []any{env.key}, func() Response {
		rec, ok := w.store.Get(env.key)
		now := w.clk.NowMS()
		return Response{Status: StatusOK, Payload: ok && !rec.ExpiredAt(now)}
	})
}

// Stats implements spec.md §4.2.10: returns ErrStatsNotEnabled when no
// hook.Stats is wired in, handled one layer up in the root burrow package
// since the Stats hook instance lives outside the Worker.
