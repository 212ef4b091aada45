// Package monitoring exposes Prometheus metrics for the harvesting engine.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's Prometheus collectors. Each Metrics owns its
// registry so multiple engines can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	harvestsTotal   *prometheus.CounterVec
	harvestDuration *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	rateLimitWait   prometheus.Histogram
	batchItemsTotal *prometheus.CounterVec
	pagesInUse      prometheus.Gauge
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		harvestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domharvest",
			Name:      "harvests_total",
			Help:      "Total harvest requests by terminal status",
		}, []string{"status"}),
		harvestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "domharvest",
			Name:      "harvest_duration_seconds",
			Help:      "End-to-end harvest duration including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "domharvest",
			Name:      "harvest_retries_total",
			Help:      "Total retry attempts across all requests",
		}),
		rateLimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "domharvest",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent suspended in rate-limiter admission",
			Buckets:   []float64{.001, .01, .1, .5, 1, 2, 5, 10, 30},
		}),
		batchItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domharvest",
			Name:      "batch_items_total",
			Help:      "Batch items by terminal status",
		}, []string{"status"}),
		pagesInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "domharvest",
			Name:      "pages_in_use",
			Help:      "Browser pages currently owned by in-flight attempts",
		}),
	}
}

// ObserveHarvest records one finished harvest request.
func (m *Metrics) ObserveHarvest(status string, d time.Duration) {
	m.harvestsTotal.WithLabelValues(status).Inc()
	m.harvestDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncRetries counts one retry attempt.
func (m *Metrics) IncRetries() { m.retriesTotal.Inc() }

// ObserveRateLimitWait records time spent waiting for admission.
func (m *Metrics) ObserveRateLimitWait(d time.Duration) {
	m.rateLimitWait.Observe(d.Seconds())
}

// BatchItem counts one terminal batch item.
func (m *Metrics) BatchItem(status string) {
	m.batchItemsTotal.WithLabelValues(status).Inc()
}

// PageCheckedOut marks a page leaving the pool for an attempt.
func (m *Metrics) PageCheckedOut() { m.pagesInUse.Inc() }

// PageReturned marks an attempt releasing its page.
func (m *Metrics) PageReturned() { m.pagesInUse.Dec() }

// Handler serves this engine's metrics in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
