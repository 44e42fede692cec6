package hook

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the plain counters spec.md §4.5 mandates: op_count,
// hit_count, miss_count, set_count, eviction_count, expired_count,
// request_count (alias of op_count), plus creation_date.
type Snapshot struct {
	OpCount       int64
	HitCount      int64
	MissCount     int64
	SetCount      int64
	EvictionCount int64
	ExpiredCount  int64
	RequestCount  int64
	CreationDate  int64 // wall-clock ms
}

// Stats is the canonical built-in post-hook of spec.md §4.5: it folds
// action events into counters and, because the teacher's stack carries
// github.com/prometheus/client_golang, exports the same counters as real
// Prometheus metrics labelled by cache name so rpcfront.MetricsHandler can
// serve them alongside the wire layer's own metrics.
type Stats struct {
	cacheName string

	mu            sync.Mutex
	opCount       int64
	hitCount      int64
	missCount     int64
	setCount      int64
	evictionCount int64
	expiredCount  int64
	creationDate  int64

	promOps      prometheus.Counter
	promHits     prometheus.Counter
	promMisses   prometheus.Counter
	promSets     prometheus.Counter
	promEvicts   prometheus.Counter
	promExpired  prometheus.Counter
}

// NewStats creates a Stats hook for the named cache, registering its
// counters on reg (pass prometheus.DefaultRegisterer for the global
// registry, or nil to skip Prometheus export entirely).
func NewStats(cacheName string, reg prometheus.Registerer) *Stats {
	s := &Stats{cacheName: cacheName, creationDate: time.Now().UnixMilli()}

	factory := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "burrow",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": cacheName},
		})
		if reg != nil {
			reg.MustRegister(c)
		}
		return c
	}

	s.promOps = factory("op_count", "Total cache operations observed.")
	s.promHits = factory("hit_count", "Total cache hits.")
	s.promMisses = factory("miss_count", "Total cache misses.")
	s.promSets = factory("set_count", "Total set operations.")
	s.promEvicts = factory("eviction_count", "Total janitor/purge evictions.")
	s.promExpired = factory("expired_count", "Total lazily-observed expirations.")

	return s
}

func (s *Stats) HandlePre(action string, args []any) {}

func (s *Stats) HandlePost(action string, args []any, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opCount++
	s.promOps.Inc()

	switch action {
	case ActionGet, ActionGetAndUpdate, ActionTake:
		switch result.Status {
		case "ok":
			s.hitCount++
			s.promHits.Inc()
		case "missing":
			s.missCount++
			s.promMisses.Inc()
		case "loaded":
			s.missCount++
			s.promMisses.Inc()
		}
	case ActionSet, ActionIncr, ActionDecr:
		s.setCount++
		s.promSets.Inc()
	case ActionPurge:
		if n, ok := result.Payload.(int); ok {
			s.evictionCount += int64(n)
			s.promEvicts.Add(float64(n))
		}
	}

	if result.Expired {
		s.expiredCount++
		s.promExpired.Inc()
	}
}

// Snapshot returns the current counters, the payload of spec.md's `stats`
// call (§4.2.10).
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		OpCount:       s.opCount,
		HitCount:      s.hitCount,
		MissCount:     s.missCount,
		SetCount:      s.setCount,
		EvictionCount: s.evictionCount,
		ExpiredCount:  s.expiredCount,
		RequestCount:  s.opCount,
		CreationDate:  s.creationDate,
	}
}
