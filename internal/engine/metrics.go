package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts unit of work activity. A nil *Metrics records nothing.
type Metrics struct {
	commits         prometheus.Counter
	rollbacks       prometheus.Counter
	prepareFailures prometheus.Counter
	conflicts       prometheus.Counter
	cacheLoads      *prometheus.CounterVec
	evictions       prometheus.Counter
	queryLatency    prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg, if reg is
// not nil. It panics if registration fails, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "entigraph",
			Name:      "commits_total",
			Help:      "Root units of work committed",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "entigraph",
			Name:      "rollbacks_total",
			Help:      "Root units of work rolled back",
		}),
		prepareFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "entigraph",
			Name:      "prepare_failures_total",
			Help:      "Prepare attempts that failed",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "entigraph",
			Name:      "concurrent_modifications_total",
			Help:      "Conflicting changes detected at prepare or commit",
		}),
		cacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entigraph",
			Name:      "entity_loads_total",
			Help:      "Entities loaded into a unit of work cache",
		}, []string{"type"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "entigraph",
			Name:      "entity_evictions_total",
			Help:      "Entities evicted from a bounded cache",
		}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "entigraph",
			Name:      "query_latency_seconds",
			Help:      "Query execution latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.commits, m.rollbacks, m.prepareFailures, m.conflicts,
			m.cacheLoads, m.evictions, m.queryLatency)
	}
	return m
}

func (m *Metrics) commit() {
	if m != nil {
		m.commits.Inc()
	}
}

func (m *Metrics) rollback() {
	if m != nil {
		m.rollbacks.Inc()
	}
}

func (m *Metrics) prepareFailed(err error) {
	if m == nil {
		return
	}
	m.prepareFailures.Inc()
	m.conflict(err)
}

func (m *Metrics) conflict(err error) {
	if m != nil && IsConcurrentModification(err) {
		m.conflicts.Inc()
	}
}

func (m *Metrics) load(typeName string) {
	if m != nil {
		m.cacheLoads.WithLabelValues(typeName).Inc()
	}
}

func (m *Metrics) evict() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) observeQuery(start time.Time) {
	if m != nil {
		m.queryLatency.Observe(time.Since(start).Seconds())
	}
}
