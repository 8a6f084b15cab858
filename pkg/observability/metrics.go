package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthzDecisionsTotal   *prometheus.CounterVec
	AuthzDecisionDuration *prometheus.HistogramVec
	GrantMutationsTotal   *prometheus.CounterVec

	SignatureTransitionsTotal *prometheus.CounterVec
	RateLimitRejectionsTotal  *prometheus.CounterVec

	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBWaitCount        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsite_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trialsite_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsite_authz_decisions_total",
				Help: "Document permission decisions by requested level and outcome",
			},
			[]string{"level", "outcome"},
		),
		AuthzDecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trialsite_authz_decision_duration_seconds",
				Help:    "Time spent resolving a document permission",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"level"},
		),
		GrantMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsite_grant_mutations_total",
				Help: "Grant creations and revocations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		SignatureTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsite_signature_transitions_total",
				Help: "Signature request status changes",
			},
			[]string{"status"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsite_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"backend"},
		),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trialsite_db_connections_open",
			Help: "Open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trialsite_db_connections_in_use",
			Help: "Database connections in use",
		}),
		DBWaitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trialsite_db_connections_wait_count",
			Help: "Total number of connections waited for",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionDuration,
		m.GrantMutationsTotal,
		m.SignatureTransitionsTotal,
		m.RateLimitRejectionsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBWaitCount,
	)
	return m
}

// RecordDecision counts one permission decision
func (m *Metrics) RecordDecision(_ context.Context, level, outcome string, elapsed time.Duration) {
	m.AuthzDecisionsTotal.WithLabelValues(level, outcome).Inc()
	m.AuthzDecisionDuration.WithLabelValues(level).Observe(elapsed.Seconds())
}

// RecordGrantMutation counts one grant or revoke attempt
func (m *Metrics) RecordGrantMutation(_ context.Context, operation, outcome string) {
	m.GrantMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordSignatureTransition counts a signature request entering status
func (m *Metrics) RecordSignatureTransition(_ context.Context, status string) {
	m.SignatureTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordRateLimited counts a rejected request
func (m *Metrics) RecordRateLimited(backend string) {
	m.RateLimitRejectionsTotal.WithLabelValues(backend).Inc()
}

// ObserveDBStats copies connection pool statistics into gauges
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the mux path template so ids do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments requests. Install it with
// Router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
