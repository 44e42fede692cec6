package worker

import (
	"context"
	"fmt"

	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/replication"
)

// commit runs applyLocal (the in-process store mutation) and, in remote
// mode, then broadcasts m to the peers and waits for Broadcast's result;
// in transactional mode both steps run inside repl.Transactional, holding
// the key's row locks. Per spec.md §9, a replication failure never rolls
// back the local write that already landed.
func (w *Worker[K, V]) commit(ctx context.Context, m replication.Mutation, applyLocal func()) error {
	if !w.cfg.Remote {
		applyLocal()
		return nil
	}

	if w.cfg.Transactional {
		return w.repl.Transactional(ctx, []any{m.Key}, func() error {
			applyLocal()
			_, err := w.repl.Broadcast(ctx, m)
			return err
		})
	}

	applyLocal()
	failed, err := w.repl.Broadcast(ctx, m)
	if err != nil {
		return fmt.Errorf("%w: %v (unacked peers: %v)", ErrReplicationFailed, err, failed)
	}
	return nil
}

func (w *Worker[K, V]) applyRemote(ctx context.Context, op string, key K, value V, ttl *int64) error {
	return w.commit(ctx, replication.Mutation{Op: op, Key: key, Value: value, TTLMS: ttl}, func() {
		w.store.Put(key, recordFor(value, ttl, w.clk.NowMS()))
	})
}

// Set implements spec.md §4.2.1: unconditional write, TTL defaults to the
// cache's configured default when opts.TTL is nil.
func (w *Worker[K, V]) Set(ctx context.Context, key K, value V, ttl *int64, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "set", key: key, value: value, ttl: ttl, async: async})
}

func (w *Worker[K, V]) handleSet(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionSet, []any{env.key, env.value}, func() Response {
		ttl := env.ttl
		if ttl == nil {
			ttl = w.cfg.DefaultTTLMS
		}
		now := w.clk.NowMS()
		err := w.commit(env.ctx, replication.Mutation{Op: "set", Key: env.key, Value: env.value, TTLMS: ttl}, func() {
			w.store.Put(env.key, recordFor(env.value, ttl, now))
		})
		if err != nil {
			return errResp(err)
		}
		return Response{Status: StatusOK, Payload: true}
	})
}

// Update implements spec.md §4.2.4: a blind value overwrite on an existing
// key. Absent keys perform no write and report {missing,false}; a hit keeps
// touched/ttl unchanged and reports {ok,true}. No fallback is consulted;
// that is Get/GetAndUpdate's job.
func (w *Worker[K, V]) Update(ctx context.Context, key K, value V, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "update", key: key, value: value, async: async})
}

func (w *Worker[K, V]) handleUpdate(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionUpdate, []any{env.key, env.value}, func() Response {
		now := w.clk.NowMS()
		rec, ok := w.store.Get(env.key)
		if !ok || rec.ExpiredAt(now) {
			return Response{Status: StatusMissing, Payload: false}
		}

		if cerr := w.commit(env.ctx, replication.Mutation{Op: "set", Key: env.key, Value: env.value, TTLMS: rec.TTL}, func() {
			w.store.Put(env.key, recordFor(env.value, rec.TTL, rec.Touched))
		}); cerr != nil {
			return errResp(cerr)
		}
		return Response{Status: StatusOK, Payload: true}
	})
}

// Del implements spec.md §4.2.3: remove key, payload reports whether
// anything was actually removed.
func (w *Worker[K, V]) Del(ctx context.Context, key K, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "del", key: key, async: async})
}

func (w *Worker[K, V]) handleDel(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionDel, []any{env.key}, func() Response {
		var removed bool
		err := w.commit(env.ctx, replication.Mutation{Op: "del", Key: env.key}, func() {
			removed = w.store.Remove(env.key)
		})
		if err != nil {
			return errResp(err)
		}
		return Response{Status: StatusOK, Payload: removed}
	})
}

// Clear implements spec.md §4.2.3: drop every entry. In async mode the
// caller gets the sentinel {ok, true} immediately rather than the evicted
// count, per spec.md §9's deliberate async-clear design note.
func (w *Worker[K, V]) Clear(ctx context.Context, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "clear", async: async})
}

func (w *Worker[K, V]) handleClear(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionClear, nil, func() Response {
		var n int
		err := w.commit(env.ctx, replication.Mutation{Op: "clear"}, func() {
			n = w.store.Clear()
		})
		if err != nil {
			return errResp(err)
		}
		return Response{Status: StatusOK, Payload: n}
	})
}

// Take implements spec.md §4.2.3: atomic get-then-remove. A fallback is
// never consulted — taking is only meaningful for a value that was really
// stored.
func (w *Worker[K, V]) Take(ctx context.Context, key K, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "take", key: key, async: async})
}

func (w *Worker[K, V]) handleTake(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionTake, []any{env.key}, func() Response {
		now := w.clk.NowMS()
		rec, ok := w.store.Get(env.key)
		if !ok || rec.ExpiredAt(now) {
			expired := false
			if ok {
				w.store.Remove(env.key)
				expired = true
			}
			return Response{Status: StatusMissing, lazyExpired: expired}
		}
		var removed bool
		err := w.commit(env.ctx, replication.Mutation{Op: "del", Key: env.key}, func() {
			removed = w.store.Remove(env.key)
		})
		if err != nil {
			return errResp(err)
		}
		if !removed {
			return Response{Status: StatusMissing}
		}
		return Response{Status: StatusOK, Payload: rec.Value}
	})
}

// Incr/Decr implement spec.md §4.2.4: numeric increment with an optional
// Initial value seeding an absent key. ErrNotANumber surfaces when the
// stored value's concrete type cannot be treated as an integer.
func (w *Worker[K, V]) Incr(ctx context.Context, key K, amount int64, initial *int64, async bool) Response {
	env := envelope[K, V]{op: "incr", key: key, amt: amount, async: async}
	if initial != nil {
		env.init, env.hasInit = *initial, true
	}
	return w.send(ctx, env)
}

func (w *Worker[K, V]) Decr(ctx context.Context, key K, amount int64, initial *int64, async bool) Response {
	env := envelope[K, V]{op: "decr", key: key, amt: amount, async: async}
	if initial != nil {
		env.init, env.hasInit = *initial, true
	}
	return w.send(ctx, env)
}

func (w *Worker[K, V]) handleIncr(env envelope[K, V]) Response {
	return w.adjust(hook.ActionIncr, env, env.amt)
}

func (w *Worker[K, V]) handleDecr(env envelope[K, V]) Response {
	return w.adjust(hook.ActionDecr, env, -env.amt)
}

func (w *Worker[K, V]) adjust(action string, env envelope[K, V], delta int64) Response {
	return w.dispatch(action, []any{env.key, env.amt}, func() Response {
		now := w.clk.NowMS()
		rec, ok := w.store.Get(env.key)
		var base int64
		switch {
		case ok && !rec.ExpiredAt(now):
			n, numeric := asInt64(rec.Value)
			if !numeric {
				return errResp(ErrNotANumber)
			}
			base = n
		case env.hasInit:
			base = env.init
		default:
			base = 0
		}

		next := base + delta
		v, ok2 := fromInt64[V](next)
		if !ok2 {
			return errResp(ErrNotANumber)
		}

		hit := ok && !rec.ExpiredAt(now)
		var ttl *int64
		touched := now
		if hit {
			ttl = rec.TTL
			touched = rec.Touched
		} else {
			ttl = w.cfg.DefaultTTLMS
		}
		if err := w.commit(env.ctx, replication.Mutation{Op: "set", Key: env.key, Value: v, TTLMS: ttl}, func() {
			w.store.Put(env.key, recordFor(v, ttl, touched))
		}); err != nil {
			return errResp(err)
		}
		return Response{Status: StatusOK, Payload: next}
	})
}

// Expire implements spec.md §4.2.5: set a new relative TTL (milliseconds
// from now) on an existing key without touching its value.
func (w *Worker[K, V]) Expire(ctx context.Context, key K, ttlMS int64, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "expire", key: key, ms: ttlMS, async: async})
}

func (w *Worker[K, V]) handleExpire(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionExpire, []any{env.key, env.ms}, func() Response {
		return w.reTTL(env, &env.ms, nil)
	})
}

// ExpireAt implements spec.md §4.2.5's absolute-deadline sibling: ts is a
// clock.NowMS()-scale epoch millisecond timestamp.
func (w *Worker[K, V]) ExpireAt(ctx context.Context, key K, ts int64, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "expire_at", key: key, ts: ts, async: async})
}

func (w *Worker[K, V]) handleExpireAt(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionExpireAt, []any{env.key, env.ts}, func() Response {
		return w.reTTL(env, nil, &env.ts)
	})
}

// reTTL is shared by Expire/ExpireAt: fetch, rewrite TTL only, leave Value
// untouched. Touched is reset to now since both callers express their new
// deadline relative to the current instant. Per spec.md §4.2.7, a
// non-positive result (ms <= 0, or an at-timestamp at or before now) evicts
// the key immediately rather than writing back an already-expired record.
func (w *Worker[K, V]) reTTL(env envelope[K, V], relMS *int64, atMS *int64) Response {
	now := w.clk.NowMS()
	rec, ok := w.store.Get(env.key)
	if !ok || rec.ExpiredAt(now) {
		return Response{Status: StatusMissing}
	}

	var newTTL *int64
	newTouched := rec.Touched
	switch {
	case relMS != nil:
		newTTL = relMS
		newTouched = now
	case atMS != nil:
		d := *atMS - now
		newTTL = &d
		newTouched = now
	}

	if newTTL != nil && *newTTL <= 0 {
		err := w.commit(env.ctx, replication.Mutation{Op: "del", Key: env.key}, func() {
			w.store.Remove(env.key)
		})
		if err != nil {
			return errResp(err)
		}
		return Response{Status: StatusOK, Payload: true}
	}

	err := w.commit(env.ctx, replication.Mutation{Op: "set", Key: env.key, Value: rec.Value, TTLMS: newTTL}, func() {
		w.store.Put(env.key, recordFor(rec.Value, newTTL, newTouched))
	})
	if err != nil {
		return errResp(err)
	}
	return Response{Status: StatusOK, Payload: true}
}

// Persist implements spec.md §4.2.5: drop any TTL, making the entry live
// forever until explicitly removed.
func (w *Worker[K, V]) Persist(ctx context.Context, key K, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "persist", key: key, async: async})
}

func (w *Worker[K, V]) handlePersist(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionPersist, []any{env.key}, func() Response {
		now := w.clk.NowMS()
		rec, ok := w.store.Get(env.key)
		if !ok || rec.ExpiredAt(now) {
			return Response{Status: StatusMissing}
		}
		err := w.commit(env.ctx, replication.Mutation{Op: "set", Key: env.key, Value: rec.Value, TTLMS: nil}, func() {
			w.store.Put(env.key, recordFor(rec.Value, nil, rec.Touched))
		})
		if err != nil {
			return errResp(err)
		}
		return Response{Status: StatusOK, Payload: true}
	})
}

// Refresh implements spec.md §4.2.5: reset Touched to now without changing
// TTL length or value, extending the deadline by the full TTL window.
func (w *Worker[K, V]) Refresh(ctx context.Context, key K, async bool) Response {
	return w.send(ctx, envelope[K, V]{op: "refresh", key: key, async: async})
}

func (w *Worker[K, V]) handleRefresh(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionRefresh, []any{env.key}, func() Response {
		now := w.clk.NowMS()
		rec, ok := w.store.Get(env.key)
		if !ok || rec.ExpiredAt(now) {
			return Response{Status: StatusMissing}
		}
		err := w.commit(env.ctx, replication.Mutation{Op: "set", Key: env.key, Value: rec.Value, TTLMS: rec.TTL}, func() {
			w.store.Put(env.key, recordFor(rec.Value, rec.TTL, now))
		})
		if err != nil {
			return errResp(err)
		}
		return Response{Status: StatusOK, Payload: true}
	})
}

// Purge implements spec.md §4.2.6: the janitor's active-eviction sweep,
// also callable directly. Returns the number of entries evicted.
func (w *Worker[K, V]) Purge(ctx context.Context) Response {
	return w.send(ctx, envelope[K, V]{op: "purge"})
}

func (w *Worker[K, V]) handlePurge(env envelope[K, V]) Response {
	return w.dispatch(hook.ActionPurge, nil, func() Response {
		now := w.clk.NowMS()
		var expired []K
		w.store.Scan(func(k K, r recordType[V]) bool {
			if r.ExpiredAt(now) {
				expired = append(expired, k)
			}
			return true
		})
		for _, k := range expired {
			w.store.Remove(k)
		}
		return Response{Status: StatusOK, Payload: len(expired)}
	})
}
