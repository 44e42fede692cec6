package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/burrowcache/burrow/clock"
	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/loader"
	"github.com/burrowcache/burrow/replication"
	"github.com/burrowcache/burrow/store"
	"github.com/burrowcache/burrow/supervisor"
)

func newTestWorker(t *testing.T, cfg Config[string, string]) (*Worker[string, string], *clock.Mock, *supervisor.Supervisor) {
	t.Helper()
	mc := clock.NewMock(0)
	reg := hook.NewRegistry()
	sup := supervisor.New(nil)
	disp := hook.NewDispatcher(reg, sup)
	w := New(cfg, store.NewMapStore[string, string](), mc, disp, replication.Noop{})
	sup.Spawn("worker", w.Run)
	t.Cleanup(sup.Stop)
	return w, mc, sup
}

func TestWorker_SetGetRoundTrip(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()

	resp := w.Set(ctx, "a", "1", nil, false)
	if resp.Status != StatusOK {
		t.Fatalf("set: %+v", resp)
	}

	resp = w.Get(ctx, "a", GetOptions[string, string]{})
	if resp.Status != StatusOK || resp.Payload != "1" {
		t.Fatalf("get: %+v", resp)
	}
}

func TestWorker_Get_MissingWithoutFallback(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	resp := w.Get(context.Background(), "nope", GetOptions[string, string]{})
	if resp.Status != StatusMissing {
		t.Fatalf("expected missing, got %+v", resp)
	}
}

func TestWorker_Get_TTLExpiry(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(100)

	w.Set(ctx, "a", "1", &ttl, false)
	mc.Advance(50)
	if resp := w.Get(ctx, "a", GetOptions[string, string]{}); resp.Status != StatusOK {
		t.Fatalf("expected still alive, got %+v", resp)
	}

	mc.Advance(51)
	if resp := w.Get(ctx, "a", GetOptions[string, string]{}); resp.Status != StatusMissing {
		t.Fatalf("expected expired, got %+v", resp)
	}
}

func TestWorker_Get_InvokesDefaultFallbackOnMiss(t *testing.T) {
	var calls int
	fb := loader.Func[string, string](func(_ context.Context, key string, _ ...any) (string, error) {
		calls++
		return key + "-loaded", nil
	})
	w, _, _ := newTestWorker(t, Config[string, string]{DefaultFallback: fb})

	resp := w.Get(context.Background(), "k", GetOptions[string, string]{})
	if resp.Status != StatusLoaded || resp.Payload != "k-loaded" {
		t.Fatalf("get: %+v", resp)
	}
	if calls != 1 {
		t.Fatalf("expected fallback called once, got %d", calls)
	}

	// second Get should now be satisfied from the store, not the fallback.
	resp = w.Get(context.Background(), "k", GetOptions[string, string]{})
	if resp.Status != StatusOK {
		t.Fatalf("expected hit after load, got %+v", resp)
	}
	if calls != 1 {
		t.Fatalf("fallback should not be called again, got %d calls", calls)
	}
}

func TestWorker_Get_FallbackErrorSurfaces(t *testing.T) {
	boom := errors.New("down")
	fb := loader.Func[string, string](func(context.Context, string, ...any) (string, error) {
		return "", boom
	})
	w, _, _ := newTestWorker(t, Config[string, string]{DefaultFallback: fb})

	resp := w.Get(context.Background(), "k", GetOptions[string, string]{})
	if resp.Status != StatusError {
		t.Fatalf("expected error status, got %+v", resp)
	}
	var fe *loader.ErrFallback
	if !errors.As(resp.Err, &fe) {
		t.Fatalf("expected *loader.ErrFallback, got %T", resp.Err)
	}
}

func TestWorker_TakeRemoves(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	w.Set(ctx, "a", "1", nil, false)

	resp := w.Take(ctx, "a", false)
	if resp.Status != StatusOK || resp.Payload != "1" {
		t.Fatalf("take: %+v", resp)
	}
	if resp := w.Get(ctx, "a", GetOptions[string, string]{}); resp.Status != StatusMissing {
		t.Fatalf("expected gone after take, got %+v", resp)
	}
}

func TestWorker_Clear(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	w.Set(ctx, "a", "1", nil, false)
	w.Set(ctx, "b", "2", nil, false)

	resp := w.Clear(ctx, false)
	if resp.Status != StatusOK || resp.Payload.(int) != 2 {
		t.Fatalf("clear: %+v", resp)
	}
	if resp := w.Size(ctx); resp.Payload.(int) != 0 {
		t.Fatalf("expected empty after clear, got %+v", resp)
	}
}

func TestWorker_Clear_AsyncReturnsSentinelNotCount(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	w.Set(ctx, "a", "1", nil, false)

	resp := w.Clear(ctx, true)
	if resp.Status != StatusOK || resp.Payload != true {
		t.Fatalf("expected async sentinel {ok, true}, got %+v", resp)
	}
}

func TestWorker_IncrDecr(t *testing.T) {
	w := newNumericWorker(t)
	ctx := context.Background()
	initial := int64(10)

	resp := w.Incr(ctx, "counter", 5, &initial, false)
	if resp.Status != StatusOK || resp.Payload.(int64) != 15 {
		t.Fatalf("incr seeded: %+v", resp)
	}

	resp = w.Decr(ctx, "counter", 3, nil, false)
	if resp.Status != StatusOK || resp.Payload.(int64) != 12 {
		t.Fatalf("decr: %+v", resp)
	}
}

func TestWorker_Incr_NotANumber(t *testing.T) {
	w := newNumericWorker(t)
	ctx := context.Background()
	w.Set(ctx, "s", "not-a-number", nil, false)

	resp := w.Incr(ctx, "s", 1, nil, false)
	if resp.Status != StatusError || !errors.Is(resp.Err, ErrNotANumber) {
		t.Fatalf("expected ErrNotANumber, got %+v", resp)
	}
}

func newNumericWorker(t *testing.T) *Worker[string, any] {
	t.Helper()
	mc := clock.NewMock(0)
	reg := hook.NewRegistry()
	sup := supervisor.New(nil)
	disp := hook.NewDispatcher(reg, sup)
	w := New(Config[string, any]{}, store.NewMapStore[string, any](), mc, disp, replication.Noop{})
	sup.Spawn("worker", w.Run)
	t.Cleanup(sup.Stop)
	return w
}

func TestWorker_ExpirePersistRefresh(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(1000)
	w.Set(ctx, "a", "1", &ttl, false)

	if resp := w.Expire(ctx, "a", 50, false); resp.Status != StatusOK {
		t.Fatalf("expire: %+v", resp)
	}
	mc.Advance(51)
	if resp := w.Get(ctx, "a", GetOptions[string, string]{}); resp.Status != StatusMissing {
		t.Fatalf("expected expired after shortened ttl, got %+v", resp)
	}

	w.Set(ctx, "b", "2", &ttl, false)
	if resp := w.Persist(ctx, "b", false); resp.Status != StatusOK {
		t.Fatalf("persist: %+v", resp)
	}
	mc.Advance(5000)
	if resp := w.Get(ctx, "b", GetOptions[string, string]{}); resp.Status != StatusOK {
		t.Fatalf("expected persisted entry to survive, got %+v", resp)
	}

	if resp := w.Refresh(ctx, "b", false); resp.Status != StatusOK {
		t.Fatalf("refresh: %+v", resp)
	}
}

func TestWorker_TTL(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(200)
	w.Set(ctx, "a", "1", &ttl, false)

	resp := w.TTL(ctx, "a")
	if resp.Status != StatusOK || resp.Payload.(int64) != 200 {
		t.Fatalf("ttl: %+v", resp)
	}

	w.Set(ctx, "b", "2", nil, false)
	resp = w.TTL(ctx, "b")
	if resp.Status != StatusOK || resp.Payload != (*int64)(nil) {
		t.Fatalf("expected nil ttl payload for non-expiring entry, got %+v", resp)
	}
}

func TestWorker_Size_IsExpiredInclusiveAndDoesNotEvict(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(10)
	w.Set(ctx, "a", "1", &ttl, false)
	w.Set(ctx, "b", "2", nil, false)
	mc.Advance(20)

	if resp := w.Size(ctx); resp.Payload.(int) != 2 {
		t.Fatalf("expected size to count the expired entry too, got %+v", resp)
	}
	// Size must not have evicted "a" as a side effect.
	if resp := w.Size(ctx); resp.Payload.(int) != 2 {
		t.Fatalf("expected size unchanged on repeat call, got %+v", resp)
	}
}

func TestWorker_Keys_IsExpiredInclusive(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(10)
	w.Set(ctx, "a", "1", &ttl, false)
	w.Set(ctx, "b", "2", nil, false)
	mc.Advance(20)

	resp := w.Keys(ctx)
	keys := resp.Payload.([]string)
	if len(keys) != 2 {
		t.Fatalf("expected both keys returned expired-inclusive, got %v", keys)
	}
}

func TestWorker_Incr_PreservesTouchedAndTTLOnHit(t *testing.T) {
	mc := clock.NewMock(0)
	reg := hook.NewRegistry()
	sup := supervisor.New(nil)
	disp := hook.NewDispatcher(reg, sup)
	w := New(Config[string, any]{}, store.NewMapStore[string, any](), mc, disp, replication.Noop{})
	sup.Spawn("worker", w.Run)
	t.Cleanup(sup.Stop)

	ctx := context.Background()
	ttl := int64(1000)
	w.Set(ctx, "counter", int64(10), &ttl, false)
	mc.Advance(300)

	if resp := w.Incr(ctx, "counter", 5, nil, false); resp.Status != StatusOK || resp.Payload.(int64) != 15 {
		t.Fatalf("incr: %+v", resp)
	}

	ttlResp := w.TTL(ctx, "counter")
	if ttlResp.Status != StatusOK {
		t.Fatalf("ttl: %+v", ttlResp)
	}
	if remaining := ttlResp.Payload.(int64); remaining != 700 {
		t.Fatalf("expected touched preserved (remaining 700ms), got %dms remaining", remaining)
	}
}

func TestWorker_GetAndUpdate_PreservesTouchedAndTTLOnHit(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(1000)
	w.Set(ctx, "a", "1", &ttl, false)
	mc.Advance(300)

	fn := func(v string, present bool) (string, error) { return v + "!", nil }
	resp := w.GetAndUpdate(ctx, "a", fn, GetOptions[string, string]{})
	if resp.Status != StatusOK || resp.Payload != "1" {
		t.Fatalf("get_and_update: %+v", resp)
	}

	ttlResp := w.TTL(ctx, "a")
	if ttlResp.Status != StatusOK {
		t.Fatalf("ttl: %+v", ttlResp)
	}
	if remaining := ttlResp.Payload.(int64); remaining != 700 {
		t.Fatalf("expected touched preserved (remaining 700ms), got %dms remaining", remaining)
	}

	if resp := w.Get(ctx, "a", GetOptions[string, string]{}); resp.Payload != "1!" {
		t.Fatalf("expected written-back value, got %+v", resp)
	}
}

func TestWorker_Update_MissingDoesNotWrite(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()

	resp := w.Update(ctx, "nope", "v", false)
	if resp.Status != StatusMissing || resp.Payload != false {
		t.Fatalf("expected {missing,false}, got %+v", resp)
	}
	if resp := w.Get(ctx, "nope", GetOptions[string, string]{}); resp.Status != StatusMissing {
		t.Fatalf("update on a miss must not write, got %+v", resp)
	}
}

func TestWorker_Update_OverwritesValuePreservingTouchedAndTTL(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(1000)
	w.Set(ctx, "a", "1", &ttl, false)
	mc.Advance(300)

	resp := w.Update(ctx, "a", "2", false)
	if resp.Status != StatusOK || resp.Payload != true {
		t.Fatalf("expected {ok,true}, got %+v", resp)
	}

	if resp := w.Get(ctx, "a", GetOptions[string, string]{}); resp.Payload != "2" {
		t.Fatalf("expected overwritten value, got %+v", resp)
	}

	ttlResp := w.TTL(ctx, "a")
	if remaining := ttlResp.Payload.(int64); remaining != 700 {
		t.Fatalf("expected touched preserved (remaining 700ms), got %dms remaining", remaining)
	}
}

func TestWorker_Purge(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(10)
	w.Set(ctx, "a", "1", &ttl, false)
	w.Set(ctx, "b", "2", nil, false)
	mc.Advance(20)

	resp := w.Purge(ctx)
	if resp.Status != StatusOK || resp.Payload.(int) != 1 {
		t.Fatalf("purge: %+v", resp)
	}
	if resp := w.Size(ctx); resp.Payload.(int) != 1 {
		t.Fatalf("expected one survivor after purge, got %+v", resp)
	}
}

func TestWorker_Count_ExcludesExpiredUnlikeSize(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(10)
	w.Set(ctx, "a", "1", &ttl, false)
	w.Set(ctx, "b", "2", nil, false)
	mc.Advance(20)

	if resp := w.Count(ctx); resp.Payload.(int) != 1 {
		t.Fatalf("expected count to exclude the expired entry, got %+v", resp)
	}
	if resp := w.Size(ctx); resp.Payload.(int) != 2 {
		t.Fatalf("expected size to still count the expired entry, got %+v", resp)
	}
	// Count must not have evicted "a" as a side effect.
	if resp := w.Size(ctx); resp.Payload.(int) != 2 {
		t.Fatalf("expected size unchanged after count, got %+v", resp)
	}
}

func TestWorker_Expire_NonPositiveMSEvictsImmediately(t *testing.T) {
	w, _, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(1000)
	w.Set(ctx, "a", "1", &ttl, false)

	if resp := w.Expire(ctx, "a", 0, false); resp.Status != StatusOK {
		t.Fatalf("expire: %+v", resp)
	}
	if resp := w.Size(ctx); resp.Payload.(int) != 0 {
		t.Fatalf("expected key physically evicted, got size %+v", resp)
	}
	if resp := w.Get(ctx, "a", GetOptions[string, string]{}); resp.Status != StatusMissing {
		t.Fatalf("expected missing after non-positive expire, got %+v", resp)
	}
}

func TestWorker_ExpireAt_PastTimestampEvictsImmediately(t *testing.T) {
	w, mc, _ := newTestWorker(t, Config[string, string]{})
	ctx := context.Background()
	ttl := int64(1000)
	w.Set(ctx, "a", "1", &ttl, false)
	mc.Advance(100)

	if resp := w.ExpireAt(ctx, "a", mc.NowMS()-1, false); resp.Status != StatusOK {
		t.Fatalf("expire_at: %+v", resp)
	}
	if resp := w.Size(ctx); resp.Payload.(int) != 0 {
		t.Fatalf("expected key physically evicted, got size %+v", resp)
	}
}

func TestWorker_ReplyTimeoutDoesNotStopExecution(t *testing.T) {
	mc := clock.NewMock(0)
	reg := hook.NewRegistry()
	sup := supervisor.New(nil)
	disp := hook.NewDispatcher(reg, sup)
	st := store.NewMapStore[string, string]()
	w := New(Config[string, string]{ReplyTimeout: time.Nanosecond}, st, mc, disp, replication.Noop{})
	sup.Spawn("worker", w.Run)
	t.Cleanup(sup.Stop)

	resp := w.Set(context.Background(), "a", "1", nil, false)
	if resp.Status != StatusError || !errors.Is(resp.Err, ErrTimeout) {
		t.Fatalf("expected timeout response, got %+v", resp)
	}

	// The worker keeps running and the mutation should still land in the
	// underlying store, since the reply timeout only governs how long the
	// caller waits, not whether the actor finishes the request. Check the
	// store directly rather than through the worker, since every call
	// through this worker shares the same 1ns ReplyTimeout.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := st.Get("a"); ok && rec.Value == "1" {
			return
		}
	}
	t.Fatal("expected set to eventually land despite client-side timeout")
}
