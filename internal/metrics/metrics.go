package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBucketsMs = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	// CacheLookupsTotal kind: listing|locality, result: hit|miss|error
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_discovery_cache_lookups_total",
		Help: "Cache lookups by kind and result",
	}, []string{"kind", "result"})
	CacheErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_discovery_cache_errors_total",
		Help: "Cache backend errors swallowed as misses, by operation",
	}, []string{"op"})
	PlacesRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_discovery_places_requests_total",
		Help: "Places API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
	PlacesDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listing_discovery_places_duration_ms",
		Help:    "Places API call duration in milliseconds",
		Buckets: durationBucketsMs,
	}, []string{"endpoint"})
	StoreQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_discovery_store_queries_total",
		Help: "GeoStore calls by operation and outcome",
	}, []string{"op", "outcome"})
	// SearchesTotal source: cache|store
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_discovery_searches_total",
		Help: "Locality searches by result source",
	}, []string{"source"})
	SearchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "listing_discovery_search_duration_ms",
		Help:    "Search duration in milliseconds",
		Buckets: durationBucketsMs,
	})
	EventsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_discovery_events_processed_total",
		Help: "Listing mutation events by type and outcome",
	}, []string{"type", "outcome"})
)

func init() {
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(CacheErrorsTotal)
	prometheus.MustRegister(PlacesRequestsTotal)
	prometheus.MustRegister(PlacesDurationMs)
	prometheus.MustRegister(StoreQueriesTotal)
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDurationMs)
	prometheus.MustRegister(EventsProcessedTotal)
}

// Handler exposes the default registry for scraping
func Handler() http.Handler { return promhttp.Handler() }

// Outcome maps an error to an "ok"/"error" label
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
