// Package metrics exposes Prometheus metrics for the portal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the portal's custom Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts      *prometheus.CounterVec
	AuditEntries       *prometheus.CounterVec
	SessionChecks      *prometheus.CounterVec
	CredentialChanges  *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
	HostCPUPercent     prometheus.Gauge
	HostMemoryPercent  prometheus.Gauge
	HostLoad1          prometheus.Gauge
}

// New creates the metrics on a private registry, with Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_login_attempts_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		AuditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_audit_entries_total",
			Help: "Audit entries appended by action",
		}, []string{"action"}),
		SessionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_session_checks_total",
			Help: "Session validations by result",
		}, []string{"result"}),
		CredentialChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_credential_changes_total",
			Help: "Self-service username and password changes by kind and result",
		}, []string{"kind", "result"}),
		HTTPRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		HostCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_host_cpu_percent",
			Help: "Host CPU utilisation",
		}),
		HostMemoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_host_memory_percent",
			Help: "Host memory utilisation",
		}),
		HostLoad1: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_host_load1",
			Help: "Host one-minute load average",
		}),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.AuditEntries,
		m.SessionChecks,
		m.CredentialChanges,
		m.HTTPRequestSeconds,
		m.HostCPUPercent,
		m.HostMemoryPercent,
		m.HostLoad1,
	)
	return m
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// ObserveAudit counts an appended audit entry.
func (m *Metrics) ObserveAudit(action string) {
	if m == nil {
		return
	}
	m.AuditEntries.WithLabelValues(action).Inc()
}

// ObserveSessionCheck counts a session validation.
func (m *Metrics) ObserveSessionCheck(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.SessionChecks.WithLabelValues(result).Inc()
}

// ObserveCredentialChange counts a username or password change outcome.
func (m *Metrics) ObserveCredentialChange(kind, result string) {
	if m == nil {
		return
	}
	m.CredentialChanges.WithLabelValues(kind, result).Inc()
}

// ObserveHost records a host resource snapshot.
func (m *Metrics) ObserveHost(cpuPercent, memPercent, load1 float64) {
	if m == nil {
		return
	}
	m.HostCPUPercent.Set(cpuPercent)
	m.HostMemoryPercent.Set(memPercent)
	m.HostLoad1.Set(load1)
}

// Middleware records request latency labelled by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
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
		m.HTTPRequestSeconds.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
