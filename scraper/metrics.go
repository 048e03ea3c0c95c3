package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	PagesTotal          prometheus.Counter
	RecordsTotal        *prometheus.CounterVec
	CategoriesTotal     prometheus.Counter
	RetriesTotal        prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
	ThrottleWait        prometheus.Histogram
	SnapshotRows        prometheus.Gauge
	LastSuccessfulCrawl prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Listing pages walked.",
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_records_total",
			Help: "Book records extracted, by category.",
		},
		[]string{"category"},
	)
	categories := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_categories_total",
			Help: "Categories walked to completion.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Total number of retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)
	throttleWait := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_throttle_wait_seconds",
			Help:    "Time spent waiting on the politeness throttle.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
	snapshotRows := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_snapshot_rows",
			Help: "Rows in the last written snapshot.",
		},
	)
	lastSuccess := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_last_success_timestamp_seconds",
			Help: "Unix time of the last crawl that wrote a snapshot.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, records, categories, retries, errorsTotal, throttleWait, snapshotRows, lastSuccess)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		PagesTotal:          pages,
		RecordsTotal:        records,
		CategoriesTotal:     categories,
		RetriesTotal:        retries,
		ErrorsTotal:         errorsTotal,
		ThrottleWait:        throttleWait,
		SnapshotRows:        snapshotRows,
		LastSuccessfulCrawl: lastSuccess,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddRecords adds n extracted records for a category.
func (m *Metrics) AddRecords(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(category).Add(float64(n))
}

// IncCategories increments the completed categories counter.
func (m *Metrics) IncCategories() {
	if m == nil {
		return
	}
	m.CategoriesTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveThrottle records time spent blocked on the throttle.
func (m *Metrics) ObserveThrottle(d time.Duration) {
	if m == nil {
		return
	}
	m.ThrottleWait.Observe(d.Seconds())
}

// SnapshotWritten records a successful snapshot write.
func (m *Metrics) SnapshotWritten(rows int, at time.Time) {
	if m == nil {
		return
	}
	m.SnapshotRows.Set(float64(rows))
	m.LastSuccessfulCrawl.Set(float64(at.Unix()))
}
