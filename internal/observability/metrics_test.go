package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesModuleCollectors(t *testing.T) {
	metrics := NewMetrics()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "odyssey_ledger_postings_total", Help: "test"})
	metrics.Registerer().MustRegister(counter)
	counter.Inc()

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "odyssey_ledger_postings_total 1")
	require.Contains(t, rr.Body.String(), "go_goroutines")
}

func withRoute(req *http.Request, pattern string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, pattern)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/entries/17/post", nil), "/api/v1/entries/{id}/post"))
	require.Equal(t, http.StatusCreated, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_ledger_http_requests_total{code="201",method="POST",route="/api/v1/entries/{id}/post"} 1`)
	require.Contains(t, body, `odyssey_ledger_http_request_duration_seconds_bucket{method="POST",route="/api/v1/entries/{id}/post"`)
	require.Contains(t, body, "odyssey_ledger_http_inflight_requests 0")
	require.NotContains(t, body, "/api/v1/entries/17/post")
	require.NotContains(t, body, "odyssey_ledger_http_problems_total{")
}

func TestMetricsMiddlewareCountsProblems(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/assets/3/depreciate", nil), "/api/v1/assets/{id}/depreciate"))
	}

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_ledger_http_problems_total{code="409",route="/api/v1/assets/{id}/depreciate"} 2`)
	require.Contains(t, body, `odyssey_ledger_http_requests_total{code="409",method="POST",route="/api/v1/assets/{id}/depreciate"} 2`)
}

func TestMetricsMiddlewareSkipsScrapes(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(metrics.Handler())

	handler.ServeHTTP(httptest.NewRecorder(), withRoute(httptest.NewRequest(http.MethodGet, "/metrics", nil), "/metrics"))

	require.NotContains(t, scrape(t, metrics), `route="/metrics"`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, metrics.Middleware(next))
	require.Equal(t, prometheus.DefaultRegisterer, metrics.Registerer())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
