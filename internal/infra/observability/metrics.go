package observability

import (
	"time"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the lead service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	transitions       *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	conflictRetries   prometheus.Counter
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	events            *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_operation_duration_seconds",
				Help:    "Duration of lifecycle operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_transitions_total",
				Help: "Committed lifecycle transitions by kind.",
			},
			[]string{"kind"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_rejections_total",
				Help: "Lifecycle operations rejected, by error kind.",
			},
			[]string{"operation", "kind"},
		),
		conflictRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leads_conflict_retries_total",
				Help: "Retries caused by concurrent modification.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_events_total",
				Help: "Lifecycle events handed to the publisher, by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordOperation records the duration of a lifecycle operation.
func (m *Metrics) RecordOperation(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTransition counts a committed transition ("claim", "progress", "contact", "create").
func (m *Metrics) IncrTransition(kind string) {
	m.transitions.WithLabelValues(kind).Inc()
}

// IncrRejection counts a rejected operation by error kind.
func (m *Metrics) IncrRejection(operation string, err error) {
	m.rejections.WithLabelValues(operation, domain.ErrorKind(err)).Inc()
}

// IncrConflictRetry counts a retry after a lost conditional write.
func (m *Metrics) IncrConflictRetry() {
	m.conflictRetries.Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrEvent counts an event publish attempt ("published" or "failed").
func (m *Metrics) IncrEvent(outcome string) {
	m.events.WithLabelValues(outcome).Inc()
}

// GetLeadSnapshot returns a snapshot of lifecycle counters suitable for the
// GET /v1/metrics/leads endpoint.
func (m *Metrics) GetLeadSnapshot() *domain.LeadMetrics {
	cacheHits := getCounterValue(m.cacheHits, "lead")
	cacheMisses := getCounterValue(m.cacheMisses, "lead")

	cacheHitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.LeadMetrics{
		Claims:          int64(getCounterValue(m.transitions, "claim")),
		ProgressUpdates: int64(getCounterValue(m.transitions, "progress")),
		ContactsLogged:  int64(getCounterValue(m.transitions, "contact")),
		LeadsCreated:    int64(getCounterValue(m.transitions, "create")),
		Rejections:      m.rejectionTotals(),
		ConflictRetries: int64(readCounter(m.conflictRetries)),
		CacheHitRate:    cacheHitRate,
		EventsPublished: int64(getCounterValue(m.events, "published")),
		EventsFailed:    int64(getCounterValue(m.events, "failed")),
		Period:          "all_time",
	}
}

// rejectionTotals sums rejections per error kind across operations.
func (m *Metrics) rejectionTotals() map[string]int64 {
	out := make(map[string]int64)
	ch := make(chan prometheus.Metric, 64)
	go func() {
		m.rejections.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		pb := &dto.Metric{}
		if err := metric.Write(pb); err != nil || pb.Counter == nil {
			continue
		}
		for _, lp := range pb.GetLabel() {
			if lp.GetName() == "kind" {
				out[lp.GetValue()] += int64(pb.Counter.GetValue())
			}
		}
	}
	return out
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
