// Package worker implements the single-writer actor of spec.md §4.2: one
// goroutine owns the store and services every request FIFO, reads included,
// so no two operations ever race each other.
// The design is grounded in the teacher's main.go request-pipeline shape
// (a chain of steps run per call) generalised from HTTP handlers to cache
// operations, and in tempuscache's single-goroutine-owns-the-map pattern.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/burrowcache/burrow/clock"
	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/loader"
	"github.com/burrowcache/burrow/replication"
	"github.com/burrowcache/burrow/store"
)

// Status is the outcome tag of spec.md §6's (status, payload) reply shape.
type Status string

const (
	StatusOK      Status = "ok"
	StatusMissing Status = "missing"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

// Response is what every public Worker method returns. lazyExpired is an
// internal-only signal, never surfaced to callers: it tells dispatch that
// this particular miss was produced by observing and evicting an expired
// record rather than the key never having been present, so hook.Stats can
// count it under expired_count as well as miss_count while Status itself
// stays StatusMissing per spec.md's "expired reads as absent" contract.
type Response struct {
	Status      Status
	Payload     any
	Err         error
	lazyExpired bool
}

func errResp(err error) Response { return Response{Status: StatusError, Payload: nil, Err: err} }

// Sentinel errors, the error kinds of spec.md §7 not already covered by
// loader.ErrFallback.
var (
	ErrTimeout           = fmt.Errorf("burrow: reply timeout")
	ErrNotANumber        = fmt.Errorf("burrow: value is not a number")
	ErrReplicationFailed = fmt.Errorf("burrow: replication failed")
)

// Config bundles everything a Worker needs to run one cache instance.
// burrow.StartLink builds one from its Options; a zero ReplyTimeout is
// replaced by New with the 250ms default.
type Config[K comparable, V any] struct {
	Name            string
	DefaultTTLMS    *int64
	DefaultFallback loader.Func[K, V]
	FallbackArgs    []any
	Remote          bool
	Transactional   bool
	ReplyTimeout    time.Duration
	CoalesceFallback bool
}

// Worker is the single-writer actor owning one cache's store.
type Worker[K comparable, V any] struct {
	cfg   Config[K, V]
	store store.Store[K, V]
	clk   clock.Clock
	disp  *hook.Dispatcher
	repl  replication.Broadcaster

	inbox chan envelope[K, V]

	inflight map[any]chan loadResult[V] // in-flight fallback coalescing, keyed by cache key
}

type loadResult[V any] struct {
	v   V
	err error
}

// New constructs a Worker. Callers register its run loop with a
// supervisor.Supervisor (or any compatible Spawner) so a panic inside the
// loop restarts it rather than taking the whole cache down.
func New[K comparable, V any](cfg Config[K, V], st store.Store[K, V], clk clock.Clock, disp *hook.Dispatcher, repl replication.Broadcaster) *Worker[K, V] {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 250 * time.Millisecond
	}
	if repl == nil {
		repl = replication.Noop{}
	}
	return &Worker[K, V]{
		cfg:      cfg,
		store:    st,
		clk:      clk,
		disp:     disp,
		repl:     repl,
		inbox:    make(chan envelope[K, V], 256),
		inflight: make(map[any]chan loadResult[V]),
	}
}

// Run is the actor loop. It is the fn passed to supervisor.Spawn: stop is
// closed on shutdown, and returning nil (rather than an error) tells the
// supervisor this was an intentional exit, not a fault to restart from.
func (w *Worker[K, V]) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case env := <-w.inbox:
			w.handle(env)
		}
	}
}

// envelope is the tagged request the single run loop dispatches on. Each
// op field is populated only for the ops that use it; this keeps one
// channel type instead of twenty, at the cost of some unused zero fields
// per request (acceptable: requests are short-lived and small).
type envelope[K comparable, V any] struct {
	ctx   context.Context
	op    string
	key   K
	value V
	has   bool // value/amount validity flag, meaning depends on op
	amt   int64
	init  int64
	hasInit bool
	fn    func(V, bool) (V, error)
	ttl   *int64
	fallback loader.Func[K, V]
	useFallback bool // whether a per-call fallback override was supplied
	ms    int64
	ts    int64
	async bool
	reply chan Response
}

// send enqueues env and, unless it is async, blocks for either a reply or
// cfg.ReplyTimeout. The worker keeps executing the request to completion
// even after the caller gives up: reply is buffered so the eventual send
// never blocks the actor loop.
func (w *Worker[K, V]) send(ctx context.Context, env envelope[K, V]) Response {
	env.ctx = ctx
	env.reply = make(chan Response, 1)
	select {
	case w.inbox <- env:
	case <-ctx.Done():
		return errResp(ctx.Err())
	}

	if env.async {
		return Response{Status: StatusOK, Payload: true}
	}

	select {
	case resp := <-env.reply:
		return resp
	case <-time.After(w.cfg.ReplyTimeout):
		return errResp(ErrTimeout)
	case <-ctx.Done():
		return errResp(ctx.Err())
	}
}

func (w *Worker[K, V]) reply(env envelope[K, V], resp Response) {
	if env.reply != nil {
		env.reply <- resp
	}
}

// dispatch wraps the actual op logic with the pre/post hook events of
// spec.md §4.5, mirroring the teacher's interceptor chain shape (a step
// runs before and after the real handler).
func (w *Worker[K, V]) dispatch(action string, args []any, fn func() Response) Response {
	w.disp.DispatchPre(action, args)
	resp := fn()
	w.disp.DispatchPost(action, args, hook.Result{Status: string(resp.Status), Payload: resp.Payload, Err: resp.Err, Expired: resp.lazyExpired})
	return resp
}

// handle routes one dequeued envelope to its op-specific handler and
// delivers the reply. It is the only place in the package that knows every
// op name, matching the teacher's single-switch request router shape.
func (w *Worker[K, V]) handle(env envelope[K, V]) {
	var resp Response
	switch env.op {
	case "get":
		resp = w.handleGet(env.ctx, env)
	case "get_and_update":
		resp = w.handleGetAndUpdate(env.ctx, env)
	case "set":
		resp = w.handleSet(env)
	case "update":
		resp = w.handleUpdate(env)
	case "del":
		resp = w.handleDel(env)
	case "clear":
		resp = w.handleClear(env)
	case "take":
		resp = w.handleTake(env)
	case "incr":
		resp = w.handleIncr(env)
	case "decr":
		resp = w.handleDecr(env)
	case "expire":
		resp = w.handleExpire(env)
	case "expire_at":
		resp = w.handleExpireAt(env)
	case "persist":
		resp = w.handlePersist(env)
	case "refresh":
		resp = w.handleRefresh(env)
	case "ttl":
		resp = w.handleTTL(env)
	case "size":
		resp = w.handleSize(env)
	case "keys":
		resp = w.handleKeys(env)
	case "count":
		resp = w.handleCount(env)
	case "empty":
		resp = w.handleEmpty(env)
	case "exists":
		resp = w.handleExists(env)
	case "purge":
		resp = w.handlePurge(env)
	default:
		resp = errResp(fmt.Errorf("burrow: unknown worker op %q", env.op))
	}
	w.reply(env, resp)
}
