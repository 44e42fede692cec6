// Package replication implements the optional broadcast layer of spec.md
// §4.6: applying a mutation on every configured peer node, with a
// row-locking transactional mode. It is an orthogonal execution mode of the
// worker (spec.md §4.2) — local-mode caches never touch this package.
package replication

import "context"

// Mutation describes a single worker write to replicate. Key/Value are
// boxed as any because this package is not parameterised over the cache's
// key/value types — it only ever serialises and compares them.
type Mutation struct {
	Op    string // mirrors hook action names: "set", "del", "incr", ...
	Key   any
	Value any
	TTLMS *int64
}

// Broadcaster is the replication contract a remote-mode worker depends on.
type Broadcaster interface {
	// Broadcast applies m on every configured peer. It succeeds iff every
	// node acknowledges (GRPCBroadcasterConfig.MinAcks can lower that
	// threshold); a timeout or crash yields the list of
	// nodes that did not ack alongside an error. Per spec.md §9, nodes that
	// DID ack are not rolled back.
	Broadcast(ctx context.Context, m Mutation) (failed []string, err error)

	// Transactional acquires row locks on keys across all nodes, runs fn,
	// and releases the locks on every exit path (including fn panicking).
	Transactional(ctx context.Context, keys []any, fn func() error) error
}

// Noop is the Broadcaster used when a cache's Nodes option is ["self"]
// (non-replicated, spec.md §3). Its Broadcast is a trivial success and its
// Transactional takes no locks and simply runs fn; a local cache's
// exclusion comes from the worker's single goroutine.
type Noop struct{}

func (Noop) Broadcast(context.Context, Mutation) ([]string, error) { return nil, nil }

func (Noop) Transactional(_ context.Context, _ []any, fn func() error) error {
	return fn()
}
