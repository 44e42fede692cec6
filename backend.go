package burrow

// BackendKind selects the store.Store implementation a cache is backed
// by, spec.md §3's pluggable storage requirement.
type BackendKind int

const (
	// BackendMap uses store.MapStore: a plain mutex-guarded map, the
	// default for any K comparable / V any instantiation.
	BackendMap BackendKind = iota
	// BackendRistretto uses store.RistrettoStore, a cost-aware admission
	// cache. Only valid for Cache[string, V] instantiations.
	BackendRistretto
)
