// Package metrics exposes Prometheus counters for the HTTP surface and the
// time-entry engine. *Metrics implements timesheet.Recorder.
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

	"github.com/warp/timesheet-engine/timesheet"
)

type Metrics struct {
	registry    *prometheus.Registry
	httpReqCnt  *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	httpInfl    prometheus.Gauge
	reconciled  *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	schedRuns   *prometheus.CounterVec
	schedLastOK prometheus.Gauge
}

var _ timesheet.Recorder = (*Metrics)(nil)

func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: r,
		httpReqCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
		}, []string{"method", "route", "status"}),
		httpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInfl: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_requests_inflight",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "time_entries_reconciled_total",
			Help: "Time entry submissions by outcome (inserted or merged).",
		}, []string{"outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "validation_rejections_total",
			Help: "Rejected writes by validation code.",
		}, []string{"code"}),
		schedRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "period_scheduler_runs_total",
		}, []string{"result"}),
		schedLastOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "period_scheduler_last_success_timestamp_seconds",
		}),
	}
	r.MustRegister(m.httpReqCnt, m.httpDur, m.httpInfl, m.reconciled, m.rejected, m.schedRuns, m.schedLastOK)
	return m
}

// =============================================================================
// ENGINE
// =============================================================================

func (m *Metrics) TimeEntryReconciled(outcome timesheet.ReconcileOutcome) {
	m.reconciled.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) ValidationRejected(code timesheet.ValidationCode) {
	m.rejected.WithLabelValues(string(code)).Inc()
}

// SchedulerRun records one period scheduler pass.
func (m *Metrics) SchedulerRun(at time.Time, err error) {
	if err != nil {
		m.schedRuns.WithLabelValues("error").Inc()
		return
	}
	m.schedRuns.WithLabelValues("ok").Inc()
	m.schedLastOK.Set(float64(at.Unix()))
}

// =============================================================================
// HTTP
// =============================================================================

// Middleware counts requests by chi route pattern so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInfl.Inc()
		defer m.httpInfl.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpReqCnt.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDur.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
