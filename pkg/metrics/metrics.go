// Package metrics provides Prometheus instrumentation for the import
// pipeline. Metrics are registered on the default registry via promauto and
// exposed by the CLI when a metrics listen address is configured.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchesTotal counts batch runs by terminal outcome: success, retry,
	// abandoned, terminated.
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snowcap",
		Name:      "batches_total",
		Help:      "Batch runs by outcome",
	}, []string{"outcome"})

	// RowsIngested counts rows fetched from the source and transformed.
	RowsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snowcap",
		Name:      "rows_ingested_total",
		Help:      "Rows fetched and transformed",
	})

	// EventsEmitted counts events delivered to the capture sink.
	EventsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snowcap",
		Name:      "events_emitted_total",
		Help:      "Events emitted to the capture sink",
	})

	// RetryDelaySeconds observes the backoff delays scheduled for retries.
	RetryDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snowcap",
		Name:      "retry_delay_seconds",
		Help:      "Backoff delay scheduled before a batch retry",
		Buckets:   prometheus.ExponentialBuckets(3, 2, 15),
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
