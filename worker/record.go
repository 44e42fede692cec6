package worker

import "github.com/burrowcache/burrow/store"

// recordType is a local alias so op files don't need to import store
// directly for the sole purpose of naming the Scan callback's second
// parameter type.
type recordType[V any] = store.Record[V]

func recordFor[V any](v V, ttl *int64, now int64) store.Record[V] {
	return store.Record[V]{Touched: now, TTL: ttl, Value: v}
}
