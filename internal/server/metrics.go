package server

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report API activity.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	searchResults   prometheus.Histogram
	entriesAdded    prometheus.Counter
	rulesUpdated    prometheus.Counter
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Collectors are created only once so that
// building the server repeatedly (e.g. in tests) cannot panic on duplicate
// registration.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Pass a fresh registry in tests that assert on metric values. Registration
// errors other than AlreadyRegistered panic, surfacing configuration bugs
// early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reko",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests by route and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
	searchResults := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reko",
			Subsystem: "search",
			Name:      "results_per_query",
			Help:      "Number of results returned per search query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)
	entriesAdded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reko",
			Subsystem: "archive",
			Name:      "entries_added_total",
			Help:      "Total number of entries written to the archives.",
		},
	)
	rulesUpdated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reko",
			Subsystem: "archive",
			Name:      "rules_updated_total",
			Help:      "Total number of custom rule upserts.",
		},
	)

	collectors := []prometheus.Collector{requestDuration, searchResults, entriesAdded, rulesUpdated}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector.(type) {
				case *prometheus.HistogramVec:
					requestDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case prometheus.Histogram:
					searchResults = already.ExistingCollector.(prometheus.Histogram)
				case prometheus.Counter:
					if collector == entriesAdded {
						entriesAdded = already.ExistingCollector.(prometheus.Counter)
					} else {
						rulesUpdated = already.ExistingCollector.(prometheus.Counter)
					}
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		requestDuration: requestDuration,
		searchResults:   searchResults,
		entriesAdded:    entriesAdded,
		rulesUpdated:    rulesUpdated,
	}
}

// ObserveRequest records one handled request.
func (m *Metrics) ObserveRequest(route, status string, duration time.Duration) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, status).Observe(duration.Seconds())
}

// ObserveSearchResults records the result count of one search.
func (m *Metrics) ObserveSearchResults(count int) {
	if m == nil || m.searchResults == nil {
		return
	}
	m.searchResults.Observe(float64(count))
}

// IncEntriesAdded counts a successful archive write.
func (m *Metrics) IncEntriesAdded() {
	if m == nil || m.entriesAdded == nil {
		return
	}
	m.entriesAdded.Inc()
}

// IncRulesUpdated counts a successful rule upsert.
func (m *Metrics) IncRulesUpdated() {
	if m == nil || m.rulesUpdated == nil {
		return
	}
	m.rulesUpdated.Inc()
}
