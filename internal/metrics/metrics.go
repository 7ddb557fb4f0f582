// Package metrics holds the Prometheus collectors for ingestion and the
// read API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick outcomes.
const (
	TickOK         = "ok"
	TickEmpty      = "empty"
	TickFetchError = "fetch_error"
	TickStoreError = "store_error"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsb_history",
			Subsystem: "ingest",
			Name:      "ticks_total",
			Help:      "Ingestion ticks by outcome.",
		},
		[]string{"result"},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "adsb_history",
			Subsystem: "ingest",
			Name:      "tick_duration_seconds",
			Help:      "Duration of ingestion ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
	)

	positions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsb_history",
			Subsystem: "ingest",
			Name:      "positions_total",
			Help:      "Feed entries seen, by disposition.",
		},
		[]string{"disposition"}, // stored, skipped
	)

	aircraftInFeed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adsb_history",
			Subsystem: "ingest",
			Name:      "feed_aircraft",
			Help:      "Aircraft entries in the most recent feed snapshot.",
		},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adsb_history",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsb_history",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adsb_history",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		ticks,
		tickDuration,
		positions,
		aircraftInFeed,
		httpInFlight,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordTick records one ingestion tick. Feed counters are left alone when
// the fetch itself failed.
func RecordTick(result string, fetched, stored, skipped int, duration time.Duration) {
	ticks.WithLabelValues(result).Inc()
	tickDuration.Observe(duration.Seconds())

	if result == TickFetchError {
		return
	}
	aircraftInFeed.Set(float64(fetched))
	positions.WithLabelValues("stored").Add(float64(stored))
	positions.WithLabelValues("skipped").Add(float64(skipped))
}

// InstrumentHandler is chi middleware collecting HTTP metrics. It must be
// mounted with Use so the route pattern is known after the handler runs.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
