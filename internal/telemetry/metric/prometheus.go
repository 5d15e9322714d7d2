package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gridbackup"

// Registry holds all application metrics.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	// Job metrics
	JobsTotal     *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	SnapshotBytes prometheus.Counter

	// Run metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RunsRejected prometheus.Counter

	// Request metrics
	RequestsTotal *prometheus.CounterVec
}

// NewRegistry creates the metrics and registers them, together with the
// Go runtime and process collectors, on a private prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Backup jobs by result (ok, skipped, failed, rejected, timeout).",
		}, []string{"result"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Time from job start to snapshot commit.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		SnapshotBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshot_bytes_total",
			Help:      "Bytes of committed snapshot files.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Completed backup sweeps by trigger.",
		}, []string{"trigger"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a backup sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}),
		RunsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_rejected_total",
			Help:      "Triggers refused because a sweep was already running.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin API requests by method and status code.",
		}, []string{"method", "code"}),
	}

	r.reg.MustRegister(
		r.JobsTotal,
		r.JobDuration,
		r.SnapshotBytes,
		r.RunsTotal,
		r.RunDuration,
		r.RunsRejected,
		r.RequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Register adds an extra collector.
func (r *Registry) Register(c prometheus.Collector) error {
	if r == nil {
		return nil
	}
	return r.reg.Register(c)
}

// ObserveJob records one finished backup job.
func (r *Registry) ObserveJob(result string, d time.Duration, bytes int64) {
	if r == nil {
		return
	}
	r.JobsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		r.JobDuration.Observe(d.Seconds())
		r.SnapshotBytes.Add(float64(bytes))
	}
}

// ObserveRun records one finished sweep.
func (r *Registry) ObserveRun(trigger string, d time.Duration) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(trigger).Inc()
	r.RunDuration.Observe(d.Seconds())
}

// RunRejected records a trigger that found a sweep already running.
func (r *Registry) RunRejected() {
	if r == nil {
		return
	}
	r.RunsRejected.Inc()
}

// ObserveRequest records one admin API request.
func (r *Registry) ObserveRequest(method string, status int) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
