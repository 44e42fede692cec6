// Package loader provides the fallback function type spec.md §4.2.1 and
// §9 describe abstractly ("accept any callable producing the value") as a
// typed function object, plus a guarded Invoke that maps a panicking or
// erroring fallback to the fallback_error kind (spec.md §7).
package loader

import (
	"context"
	"fmt"
)

// Func is a fallback loader: given a key and the cache's configured
// fallback_args, it produces a value or an error.
type Func[K any, V any] func(ctx context.Context, key K, args ...any) (V, error)

// ErrFallback wraps any error or panic raised by a Func invocation, the
// fallback_error kind of spec.md §7.
type ErrFallback struct {
	Key   any
	Cause error
}

func (e *ErrFallback) Error() string {
	return fmt.Sprintf("fallback_error: key %v: %v", e.Key, e.Cause)
}

func (e *ErrFallback) Unwrap() error { return e.Cause }

// Invoke calls fn, converting both a returned error and a recovered panic
// into *ErrFallback so callers (worker.Worker) have one failure shape to
// handle regardless of how the user's fallback misbehaved.
func Invoke[K any, V any](ctx context.Context, fn Func[K, V], key K, args ...any) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrFallback{Key: key, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	v, err = fn(ctx, key, args...)
	if err != nil {
		return v, &ErrFallback{Key: key, Cause: err}
	}
	return v, nil
}
