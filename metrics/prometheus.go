package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_upstream_requests_total",
			Help: "Total number of upstream HTTP requests made by store adapters.",
		},
		[]string{"store", "status"},
	)
	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_upstream_request_duration_seconds",
			Help:    "Histogram of upstream HTTP request durations.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"store", "status"},
	)
	productsScrapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_products_scraped_total",
			Help: "Products ingested with a new price history point.",
		},
		[]string{"store"},
	)
	scrapeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Records lost to fetch, schema or persistence failures.",
		},
		[]string{"store", "kind"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_store_run_duration_seconds",
			Help:    "Duration of one store scrape.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"store"},
	)
)

func init() {
	prometheus.MustRegister(upstreamRequestsTotal)
	prometheus.MustRegister(upstreamRequestDuration)
	prometheus.MustRegister(productsScrapedTotal)
	prometheus.MustRegister(scrapeErrorsTotal)
	prometheus.MustRegister(runDuration)
}

// RecordRequest records one upstream request. A zero statusCode means the
// request failed before a response arrived.
func RecordRequest(store string, statusCode int, duration time.Duration) {
	status := ClassifyStatus(statusCode)
	upstreamRequestsTotal.WithLabelValues(store, status).Inc()
	upstreamRequestDuration.WithLabelValues(store, status).Observe(duration.Seconds())
}

// RecordProduct counts one ingested product.
func RecordProduct(store string) {
	productsScrapedTotal.WithLabelValues(store).Inc()
}

// RecordErrors adds n lost records of the given kind.
func RecordErrors(store, kind string, n int) {
	if n <= 0 {
		return
	}
	scrapeErrorsTotal.WithLabelValues(store, kind).Add(float64(n))
}

// ObserveRun records how long a store scrape took.
func ObserveRun(store string, d time.Duration) {
	runDuration.WithLabelValues(store).Observe(d.Seconds())
}

// ClassifyStatus maps an HTTP status code to its class label.
func ClassifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	case statusCode == 0:
		return "transport_error"
	}
	return "unknown"
}

// Handler returns the HTTP handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
