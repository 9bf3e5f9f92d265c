// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal    *prometheus.CounterVec
	fetchRetriesTotal    prometheus.Counter
	fetchFailuresTotal   *prometheus.CounterVec
	recordsInsertedTotal prometheus.Counter
	duplicatesTotal      prometheus.Counter
	runsTotal            *prometheus.CounterVec
	backoffDelaySeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_fetched_total",
				Help: "Total pages fetched, labeled by kind (search or detail).",
			},
			[]string{"kind"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_fetch_retries_total",
				Help: "Total fetch attempts beyond the first.",
			},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_failures_total",
				Help: "Total failed fetches after retries, labeled by class.",
			},
			[]string{"class"},
		)

		recordsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_inserted_total",
				Help: "Total harvested records accepted into the store.",
			},
		)

		duplicatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_duplicates_total",
				Help: "Total records skipped because the email was already stored.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total crawl sessions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		backoffDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_backoff_delay_seconds",
				Help:    "Histogram of politeness and backoff wait durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetched increments the page counter for a fetch kind.
func ObservePageFetched(kind string) {
	pagesFetchedTotal.WithLabelValues(kind).Inc()
}

// ObserveFetchRetry counts a retried fetch attempt.
func ObserveFetchRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveFetchFailure counts a fetch that failed after retries.
func ObserveFetchFailure(class string) {
	fetchFailuresTotal.WithLabelValues(class).Inc()
}

// ObserveInserted counts accepted records.
func ObserveInserted(n int) {
	recordsInsertedTotal.Add(float64(n))
}

// ObserveDuplicate counts a deduplicated record.
func ObserveDuplicate() {
	duplicatesTotal.Inc()
}

// ObserveRun counts a finished crawl session by outcome.
func ObserveRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDelay records a politeness or backoff wait.
func ObserveDelay(d time.Duration) {
	backoffDelaySeconds.Observe(d.Seconds())
}
