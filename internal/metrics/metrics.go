// Package metrics holds the Prometheus instrumentation for the scanner.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the scanner exports.
type Registry struct {
	ScanDuration      prometheus.Histogram
	ScansTotal        *prometheus.CounterVec
	ActiveScans       prometheus.Gauge
	SymbolFetchErrors prometheus.Counter
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	QuoteFetches      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the scanner metrics on the given registerer. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "oiscan_scan_duration_seconds",
			Help:    "Duration of a full scan run in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oiscan_scans_total",
			Help: "Scan runs by outcome",
		}, []string{"result"}),
		ActiveScans: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oiscan_active_scans",
			Help: "Number of scan runs currently in flight (0 or 1)",
		}),
		SymbolFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "oiscan_symbol_fetch_errors_total",
			Help: "Per-symbol market data fetch failures absorbed as ignored",
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oiscan_cache_hits_total",
			Help: "Cache hits by cache name",
		}, []string{"cache"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oiscan_cache_misses_total",
			Help: "Cache misses by cache name",
		}, []string{"cache"}),
		QuoteFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oiscan_quote_fetches_total",
			Help: "Index quote fetches by outcome",
		}, []string{"result"}),

		gatherer: reg,
	}
}

// Handler returns the scrape endpoint handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
