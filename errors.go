package burrow

import (
	"fmt"

	"github.com/burrowcache/burrow/worker"
)

// Sentinel errors for the construction-time failure kinds of spec.md §7.
var (
	ErrInvalidOption   = fmt.Errorf("burrow: invalid option")
	ErrNameInUse       = fmt.Errorf("burrow: cache name already in use")
	ErrStatsNotEnabled = fmt.Errorf("burrow: stats hook not enabled for this cache")
)

// Per-request failure kinds live next to the worker code that raises them
// and are re-exported here so callers never need to import package worker
// directly.
var (
	ErrTimeout           = worker.ErrTimeout
	ErrNotANumber        = worker.ErrNotANumber
	ErrReplicationFailed = worker.ErrReplicationFailed
)
