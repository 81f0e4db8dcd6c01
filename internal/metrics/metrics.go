package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the pipeline.
type Metrics struct {
	Registry         *prometheus.Registry
	PagesTotal       *prometheus.CounterVec
	FetchErrorsTotal *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	ExtractionsTotal *prometheus.CounterVec
	CrawlsTotal      *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteextract_pages_fetched_total",
			Help: "Pages fetched, by fetch mode.",
		},
		[]string{"mode"},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteextract_fetch_errors_total",
			Help: "Failed page fetches by error type.",
		},
		[]string{"error_type"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siteextract_fetch_duration_seconds",
			Help:    "Latency of single page fetches.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	extractions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteextract_extractions_total",
			Help: "Extraction attempts by outcome.",
		},
		[]string{"outcome"},
	)
	crawls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteextract_crawls_total",
			Help: "Crawl-and-extract invocations by status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(pages, fetchErrors, fetchDuration, extractions, crawls)

	return &Metrics{
		Registry:         registry,
		PagesTotal:       pages,
		FetchErrorsTotal: fetchErrors,
		FetchDuration:    fetchDuration,
		ExtractionsTotal: extractions,
		CrawlsTotal:      crawls,
	}
}

// IncPage counts a fetched page ("rendered", "fallback" or "cached").
func (m *Metrics) IncPage(mode string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(mode).Inc()
}

// IncFetchError increments the fetch error counter for a type label.
func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) IncExtraction(outcome string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCrawl(status string) {
	if m == nil {
		return
	}
	m.CrawlsTotal.WithLabelValues(status).Inc()
}
