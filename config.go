package burrow

import (
	"time"

	"github.com/burrowcache/burrow/hook"
	"github.com/burrowcache/burrow/loader"
	"github.com/burrowcache/burrow/replication"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// config collects every Option's effect before StartLink builds the
// actual Worker/Cache, mirroring the teacher's own config/Option split in
// options.go and defaults.go.
type config[K comparable, V any] struct {
	name    string
	backend BackendKind
	maxCost int64

	defaultTTLMS     *int64
	fallback         loader.Func[K, V]
	fallbackArgs     []any
	coalesceFallback bool

	hooks        []hook.Hook
	statsEnabled bool
	statsReg     prometheus.Registerer

	tracingEnabled bool
	tracerProvider trace.TracerProvider

	remote        bool
	transactional bool
	replicator    replication.Broadcaster

	replyTimeout    time.Duration
	janitorInterval time.Duration
}
