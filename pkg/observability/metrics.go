package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the service exports. One
// instance is created at startup and threaded through the packages that
// record against it.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP surface.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization.
	AuthzDecisionsTotal *prometheus.CounterVec
	ResolverCacheHits   prometheus.Counter
	ResolverCacheMisses prometheus.Counter

	// Audit pipeline.
	AuditEventsTotal      *prometheus.CounterVec
	AuditStoreErrorsTotal prometheus.Counter
	AlertDeliveriesTotal  *prometheus.CounterVec
	RetentionDeletedTotal prometheus.Counter

	// IP allowlist.
	AllowlistDecisionsTotal *prometheus.CounterVec
	AllowlistCacheHits      prometheus.Counter
	AllowlistCacheMisses    prometheus.Counter

	// Failed-login tracking.
	FailedLoginsTotal prometheus.Counter

	// Database pool.
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics builds and registers the full collector set on a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_http_requests_total",
			Help: "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perimeter_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		AuthzDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_authz_decisions_total",
			Help: "Guard evaluations, by guard type, outcome and denial code.",
		}, []string{"guard", "outcome", "code"}),
		ResolverCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_resolver_cache_hits_total",
			Help: "Permission resolutions served from the role cache.",
		}),
		ResolverCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_resolver_cache_misses_total",
			Help: "Permission resolutions that recomputed the role's set.",
		}),

		AuditEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_audit_events_total",
			Help: "Security events recorded, by event type and severity.",
		}, []string{"event_type", "severity"}),
		AuditStoreErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_audit_store_errors_total",
			Help: "Security events that failed to persist.",
		}),
		AlertDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_alert_deliveries_total",
			Help: "Webhook alert deliveries, by outcome.",
		}, []string{"outcome"}),
		RetentionDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_retention_deleted_total",
			Help: "Security events removed by the retention sweeper.",
		}),

		AllowlistDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perimeter_allowlist_decisions_total",
			Help: "IP allowlist evaluations, by outcome.",
		}, []string{"outcome"}),
		AllowlistCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_allowlist_cache_hits_total",
			Help: "Allowlist lookups served from the entry cache.",
		}),
		AllowlistCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_allowlist_cache_misses_total",
			Help: "Allowlist lookups that went to the store.",
		}),

		FailedLoginsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perimeter_failed_logins_total",
			Help: "Failed login attempts registered by the tracker.",
		}),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perimeter_db_connections_active",
			Help: "Open connections in the database pool.",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perimeter_db_connections_idle",
			Help: "Idle connections in the database pool.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.ResolverCacheHits,
		m.ResolverCacheMisses,
		m.AuditEventsTotal,
		m.AuditStoreErrorsTotal,
		m.AlertDeliveriesTotal,
		m.RetentionDeletedTotal,
		m.AllowlistDecisionsTotal,
		m.AllowlistCacheHits,
		m.AllowlistCacheMisses,
		m.FailedLoginsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// UpdateDBStats refreshes the pool gauges from a live pool snapshot.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request counts and latency. The route label is
// the mux route template when available, otherwise the raw path.
func (m *Metrics) HTTPMiddleware(routeName func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if routeName != nil {
				if n := routeName(r); n != "" {
					route = n
				}
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
