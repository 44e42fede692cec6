package hook

import "sync"

// queueBound is the default per-hook event buffer. A hook that cannot keep
// up with its queue exerts no backpressure on the worker; once the buffer
// fills, the oldest queued event is dropped in favour of the newest one.
const queueBound = 1024

// Spawner runs fn under supervision, restarting it one-for-one if it panics
// or returns an error (spec.md §3 Lifecycle, §7 propagation policy: hook
// crashes never propagate to clients). supervisor.Supervisor satisfies this
// interface.
type Spawner interface {
	Spawn(name string, fn func(stop <-chan struct{}) error)
}

type event struct {
	post   bool
	action string
	args   []any
	result Result
}

// hookQueue is a bounded, drop-oldest FIFO feeding a single hook's dispatch
// goroutine.
type hookQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []event
	bound   int
	closed  bool
	dropped int64
}

func newHookQueue(bound int) *hookQueue {
	q := &hookQueue{bound: bound}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *hookQueue) push(e event) {
	q.mu.Lock()
	if len(q.buf) >= q.bound {
		q.buf = q.buf[1:]
		q.dropped++
	}
	q.buf = append(q.buf, e)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an event is available or the queue is closed and
// drained, in which case ok is false.
func (q *hookQueue) pop() (e event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return event{}, false
	}
	e = q.buf[0]
	q.buf = q.buf[1:]
	return e, true
}

func (q *hookQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *hookQueue) droppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Dispatcher owns one bounded queue and one supervised goroutine per
// registered hook, preserving both per-action and cross-action delivery
// order (spec.md §4.4).
type Dispatcher struct {
	registry *Registry
	queues   []*hookQueue
}

// NewDispatcher starts one supervised dispatch loop per hook in reg.
func NewDispatcher(reg *Registry, sup Spawner) *Dispatcher {
	hooks := reg.All()
	d := &Dispatcher{registry: reg, queues: make([]*hookQueue, len(hooks))}

	for i, h := range hooks {
		q := newHookQueue(queueBound)
		d.queues[i] = q
		hh := h
		sup.Spawn("hook-dispatch", func(stop <-chan struct{}) error {
			for {
				e, ok := q.pop()
				if !ok {
					return nil
				}
				if e.post {
					hh.HandlePost(e.action, e.args, e.result)
				} else {
					hh.HandlePre(e.action, e.args)
				}
			}
		})
	}
	return d
}

// DispatchPre enqueues a pre-hook event for every registered hook.
func (d *Dispatcher) DispatchPre(action string, args []any) {
	for _, q := range d.queues {
		q.push(event{post: false, action: action, args: args})
	}
}

// DispatchPost enqueues a post-hook event for every registered hook.
func (d *Dispatcher) DispatchPost(action string, args []any, result Result) {
	for _, q := range d.queues {
		q.push(event{post: true, action: action, args: args, result: result})
	}
}

// Dropped returns, per registered hook (in registration order), the count of
// events dropped due to a full queue.
func (d *Dispatcher) Dropped() []int64 {
	out := make([]int64, len(d.queues))
	for i, q := range d.queues {
		out[i] = q.droppedCount()
	}
	return out
}

// Close stops every dispatch loop once its queue drains.
func (d *Dispatcher) Close() {
	for _, q := range d.queues {
		q.close()
	}
}
