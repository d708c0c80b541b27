package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tutti-stock/tutti-stock/internal/inventory"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `tutti_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `tutti_http_request_duration_seconds_bucket{route="/test"`)
}

func TestAllocationRejectedCountsByReason(t *testing.T) {
	metrics := NewMetrics()
	metrics.AllocationRejected("exceeds_warehouse_stock")
	metrics.AllocationRejected("exceeds_warehouse_stock")
	metrics.AllocationRejected("plan_finalized")

	body := scrape(t, metrics)
	require.Contains(t, body, `tutti_planner_rejections_total{reason="exceeds_warehouse_stock"} 2`)
	require.Contains(t, body, `tutti_planner_rejections_total{reason="plan_finalized"} 1`)
}

func TestHandlePostedCountsLines(t *testing.T) {
	metrics := NewMetrics()
	require.NoError(t, metrics.HandlePosted(context.Background(), inventory.PostedEvent{Type: inventory.TransactionReceive, TxCount: 3}))
	require.NoError(t, metrics.HandlePosted(context.Background(), inventory.PostedEvent{Type: inventory.TransactionReceive}))

	body := scrape(t, metrics)
	require.True(t, strings.Contains(body, `tutti_inventory_postings_total{type="RECEIVE"} 3`), body)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.AllocationRejected("x")
	require.NoError(t, metrics.HandlePosted(context.Background(), inventory.PostedEvent{TxCount: 1}))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRegistryCarriesRuntimeCollectors(t *testing.T) {
	body := scrape(t, NewMetrics())
	require.Contains(t, body, "go_goroutines")
}

func TestUnmatchedRouteLabel(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	body := scrape(t, metrics)
	require.Contains(t, body, `tutti_http_requests_total{code="200",route="unmatched"} 1`)
}
