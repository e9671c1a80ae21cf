package internal

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

var _metricsNamespace = "paperglass"

// NewMetrics creates a new Prometheus registry with default collectors
// already registered.
func NewMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: _metricsNamespace,
		}),
		collectors.NewBuildInfoCollector(),
	)

	return reg
}

// _patternRE is used for stripping all `{...}` segments from the pattern
// to build a label.
var _patternRE = regexp.MustCompile(`\{[^/]+\}`)

type discoveryMetrics struct {
	totals    *prometheus.CounterVec
	sources   *prometheus.CounterVec
	durations prometheus.Histogram
}

type cacheMetrics struct {
	totals *prometheus.CounterVec
}

func newDiscoveryMetrics(reg *prometheus.Registry) *discoveryMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "discovery",
			Name:      "total_operations",
			Help:      "Counts of discovery operations by type.",
		},
		[]string{"type"},
	)
	sources := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "discovery",
			Name:      "source_outcomes",
			Help:      "Per-source fan-out outcomes.",
		},
		[]string{"source", "outcome"},
	)
	durations := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: _metricsNamespace,
			Subsystem: "discovery",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of cold discovery runs.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
	)
	if reg != nil {
		reg.MustRegister(totals, sources, durations)
	}
	return &discoveryMetrics{totals: totals, sources: sources, durations: durations}
}

func newCacheMetrics(reg *prometheus.Registry) *cacheMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "cache",
			Name:      "total",
			Help:      "Totals for cache system.",
		},
		[]string{"type"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &cacheMetrics{totals: totals}
}

// Instrument wraps an HTTP handler to automatically record timing and status
// codes.
func Instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "requests",
			Help:      "HTTP request latencies by method & path",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2.0, 2.5, 5, 7.5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "inflight",
			Help:      "Current number of inbound in-flight HTTP requests.",
		},
	)

	normalized := map[string]string{}

	reg.MustRegister(requests, inflight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path, ok := normalized[r.Pattern]
		if !ok {
			path = normalizePattern(r.Pattern)
			normalized[r.Pattern] = path
		}
		if path == "" {
			// Don't record traffic for unrecognized endpoints.
			return
		}

		duration := time.Since(start).Seconds()
		requests.WithLabelValues(r.Method, path, fmt.Sprint(ww.Status())).Observe(duration)
	})
}

func (dm *discoveryMetrics) discoveriesInc() {
	dm.totals.WithLabelValues("discoveries").Inc()
}

func (dm *discoveryMetrics) droppedCandidatesAdd(delta int) {
	if delta <= 0 {
		return
	}
	dm.totals.WithLabelValues("dropped_candidates").Add(float64(delta))
}

func (dm *discoveryMetrics) droppedCandidatesGet() int64 {
	m := &dto.Metric{}
	err := dm.totals.WithLabelValues("dropped_candidates").Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (dm *discoveryMetrics) feedbackInc() {
	dm.totals.WithLabelValues("feedback_events").Inc()
}

func (dm *discoveryMetrics) sourceOutcomeInc(src Source, outcome string) {
	dm.sources.WithLabelValues(string(src), outcome).Inc()
}

func (dm *discoveryMetrics) sourceOutcomeGet(src Source, outcome string) int64 {
	m := &dto.Metric{}
	err := dm.sources.WithLabelValues(string(src), outcome).Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (dm *discoveryMetrics) durationObserve(d time.Duration) {
	dm.durations.Observe(d.Seconds())
}

func (cm *cacheMetrics) cacheHitInc() {
	cm.totals.WithLabelValues("hits").Inc()
}

func (cm *cacheMetrics) cacheHitGet() int64 {
	m := &dto.Metric{}
	err := cm.totals.WithLabelValues("hits").Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (cm *cacheMetrics) cacheMissInc() {
	cm.totals.WithLabelValues("misses").Inc()
}

func (cm *cacheMetrics) cacheMissGet() int64 {
	m := &dto.Metric{}
	err := cm.totals.WithLabelValues("misses").Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (cm *cacheMetrics) cacheReadErrInc() {
	cm.totals.WithLabelValues("read_errors").Inc()
}

func (cm *cacheMetrics) cacheWriteErrInc() {
	cm.totals.WithLabelValues("write_errors").Inc()
}

func (cm *cacheMetrics) cacheHitRatioGet() float64 {
	hits := cm.cacheHitGet()
	misses := cm.cacheMissGet()
	if hits+misses == 0 {
		return 0.0
	}
	return float64(hits) / float64(hits+misses)
}

// normalizePattern derives the constant label from the pattern:
//
//	"/related/{paperID}" → "/related"
//	"/discover"          → "/discover"
func normalizePattern(pattern string) string {
	p := _patternRE.ReplaceAllString(pattern, "")
	p = strings.TrimSuffix(p, "/")
	p = strings.ReplaceAll(p, "//", "/")
	return p
}
