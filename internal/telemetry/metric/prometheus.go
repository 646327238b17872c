package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "metastore"

// Index build outcomes.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recovery modes.
const (
	RecoveryIndex  = "index"
	RecoveryReplay = "replay"
)

// Registry holds all application metrics.
//
// All helper methods are safe to call on a nil *Registry, so components
// can run without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	// Row metrics
	Mutations *prometheus.CounterVec

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WAL index metrics
	IndexBuilds        *prometheus.CounterVec
	IndexBuildDuration prometheus.Histogram
	IndexEntries       prometheus.Gauge
	IndexBytes         prometheus.Gauge
	IndexLastBuild     prometheus.Gauge

	// Recovery metrics
	Recoveries       *prometheus.CounterVec
	RecoveryDuration *prometheus.HistogramVec
	ReplayedRecords  *prometheus.CounterVec
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rows",
			Name:      "mutations_total",
			Help:      "Row mutations written to the WAL",
		}, []string{"table", "action"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "code"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		IndexBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "walindex",
			Name:      "builds_total",
			Help:      "WAL index build passes by result",
		}, []string{"result"}),

		IndexBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "walindex",
			Name:      "build_duration_seconds",
			Help:      "Duration of successful WAL index builds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		IndexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "walindex",
			Name:      "entries",
			Help:      "Entries in the last persisted WAL index",
		}),

		IndexBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "walindex",
			Name:      "size_bytes",
			Help:      "Size of the last persisted WAL index",
		}),

		IndexLastBuild: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "walindex",
			Name:      "last_build_timestamp_seconds",
			Help:      "Unix time of the last successful WAL index build",
		}),

		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "recovery",
			Name:      "total",
			Help:      "Startup recoveries by mode",
		}, []string{"mode"}),

		RecoveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "recovery",
			Name:      "duration_seconds",
			Help:      "Startup recovery duration by mode",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"mode"}),

		ReplayedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "recovery",
			Name:      "records_total",
			Help:      "Records loaded during recovery by source",
		}, []string{"source"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Mutations,
		r.RequestsTotal,
		r.RequestDuration,
		r.IndexBuilds,
		r.IndexBuildDuration,
		r.IndexEntries,
		r.IndexBytes,
		r.IndexLastBuild,
		r.Recoveries,
		r.RecoveryDuration,
		r.ReplayedRecords,
	)
	return r
}

// Register adds an extra collector.
func (r *Registry) Register(c prometheus.Collector) error {
	if r == nil {
		return nil
	}
	return r.reg.Register(c)
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// IncMutation counts one row mutation.
func (r *Registry) IncMutation(table int32, action string) {
	if r == nil {
		return
	}
	r.Mutations.WithLabelValues(strconv.Itoa(int(table)), action).Inc()
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(method, route string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveIndexBuild records a build pass. entries and size are only
// applied on success.
func (r *Registry) ObserveIndexBuild(err error, d time.Duration, entries, size int) {
	if r == nil {
		return
	}
	if err != nil {
		r.IndexBuilds.WithLabelValues(ResultError).Inc()
		return
	}
	r.IndexBuilds.WithLabelValues(ResultOK).Inc()
	r.IndexBuildDuration.Observe(d.Seconds())
	r.IndexEntries.Set(float64(entries))
	r.IndexBytes.Set(float64(size))
	r.IndexLastBuild.SetToCurrentTime()
}

// ObserveRecovery records a finished recovery. fromIndex and replayed are
// the record counts loaded from the index and from WAL replay.
func (r *Registry) ObserveRecovery(mode string, d time.Duration, fromIndex, replayed int) {
	if r == nil {
		return
	}
	r.Recoveries.WithLabelValues(mode).Inc()
	r.RecoveryDuration.WithLabelValues(mode).Observe(d.Seconds())
	r.ReplayedRecords.WithLabelValues("index").Add(float64(fromIndex))
	r.ReplayedRecords.WithLabelValues("wal").Add(float64(replayed))
}
