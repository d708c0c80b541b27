package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutti-stock/tutti-stock/internal/inventory"
)

const unmatchedRoute = "unmatched"

// NewRegistry returns a registry carrying the Go runtime and process collectors.
// The API and the worker each scrape their own.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// HandlerFor serves the given gatherer in the Prometheus text format.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Metrics holds the API collectors.
type Metrics struct {
	gatherer   prometheus.Gatherer
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	rejections *prometheus.CounterVec
	postings   *prometheus.CounterVec
}

// NewMetrics builds API metrics on a fresh registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(NewRegistry())
}

// NewMetricsWith registers the API collectors on registry.
func NewMetricsWith(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		gatherer: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutti",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests partitioned by route and status code.",
		}, []string{"route", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tutti",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency per route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutti",
			Subsystem: "planner",
			Name:      "rejections_total",
			Help:      "Delivery plan edits refused by the allocator, by reason.",
		}, []string{"reason"}),
		postings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutti",
			Subsystem: "inventory",
			Name:      "postings_total",
			Help:      "Ledger lines recorded, by transaction type.",
		}, []string{"type"}),
	}
}

// Handler serves /metrics. A nil receiver answers 503.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return HandlerFor(m.gatherer)
}

// Middleware counts requests per matched chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := matchedRoute(r)
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(started).Seconds())
	})
}

// AllocationRejected counts a refused plan edit.
func (m *Metrics) AllocationRejected(reason string) {
	if m != nil {
		m.rejections.WithLabelValues(reason).Inc()
	}
}

// HandlePosted adds the ledger lines of a committed posting.
func (m *Metrics) HandlePosted(_ context.Context, evt inventory.PostedEvent) error {
	if m != nil && evt.TxCount > 0 {
		m.postings.WithLabelValues(string(evt.Type)).Add(float64(evt.TxCount))
	}
	return nil
}

// matchedRoute keeps label cardinality bounded by the route table.
func matchedRoute(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}
