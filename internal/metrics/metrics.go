// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestedMovies counts movies added to the vector index.
	IngestedMovies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelrank_ingested_movies_total",
		Help: "Total number of movies added to the vector index",
	})

	// IndexSize is the number of vectors currently held by the index.
	IndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelrank_index_vectors",
		Help: "Number of vectors in the similarity index",
	})

	// SearchDuration tracks end-to-end similarity search latency by strategy.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelrank_search_duration_seconds",
			Help:    "Duration of similarity searches in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"strategy"},
	)

	// EnrichmentFallbacks counts searches that returned cached metadata because
	// the relational store was slow, failing or behind an open breaker.
	EnrichmentFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_enrichment_fallbacks_total",
			Help: "Total number of enrichment lookups that fell back to cached metadata",
		},
		[]string{"reason"},
	)

	// SnapshotFailures counts snapshot writes that failed.
	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelrank_snapshot_failures_total",
		Help: "Total number of failed snapshot writes",
	})

	// MirrorFailures counts failed writes to the Qdrant mirror.
	MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelrank_mirror_failures_total",
		Help: "Total number of failed vector mirror writes",
	})

	// HTTPRequestDuration tracks request latency by route pattern, method and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelrank_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// ObserveSearch records the duration of a search that started at start.
func ObserveSearch(strategy string, start time.Time) {
	SearchDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

// Middleware records HTTPRequestDuration for every request. The route label is
// the matched chi pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
