package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/respack/internal/version"
)

// ServerMetrics is the registry the pack server exposes at /metrics.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	rateLimited    prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	packInfo     *prometheus.GaugeVec
	packEntries  *prometheus.GaugeVec
	packLoadedTs prometheus.Gauge

	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec

	watcherPolls         prometheus.Counter
	watcherSwaps         prometheus.Counter
	watcherErrors        *prometheus.CounterVec
	watcherLastSuccessTs prometheus.Gauge
	watcherStale         prometheus.Gauge

	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + pack metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the per-client rate limiter",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "version", "commit", "vcs_dirty", "go_version"}),
		packInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "respack_pack_info",
			Help: "Pack currently served (labels carry identity, value is always 1)",
		}, []string{"name", "sha256"}),
		packEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "respack_pack_entries",
			Help: "Entries in the served pack by kind",
		}, []string{"kind"}),
		packLoadedTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "respack_pack_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the served pack was loaded",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "respack_store_operations_total",
			Help: "Remote store operations by operation and result",
		}, []string{"op", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "respack_store_operation_duration_seconds",
			Help:    "Remote store operation latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		watcherPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "respack_watcher_polls_total",
			Help: "Total number of watcher poll cycles",
		}),
		watcherSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "respack_watcher_swaps_total",
			Help: "Total number of packs hot-swapped by the watcher",
		}),
		watcherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "respack_watcher_errors_total",
			Help: "Total watcher errors by type",
		}, []string{"type"}),
		watcherLastSuccessTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "respack_watcher_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful pointer poll",
		}),
		watcherStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "respack_watcher_stale",
			Help: "Whether the watcher is stale (1) or healthy (0)",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.rateLimited,
		m.buildInfo,
		m.packInfo,
		m.packEntries,
		m.packLoadedTs,
		m.storeOps,
		m.storeDuration,
		m.watcherPolls,
		m.watcherSwaps,
		m.watcherErrors,
		m.watcherLastSuccessTs,
		m.watcherStale,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

// set once at startup.
func (m *ServerMetrics) SetBuildInfo(vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        vi.App,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"vcs_dirty":  dirty,
		"go_version": vi.GoVersion,
	}).Set(1)
}

func (m *ServerMetrics) IncHTTPPanic() { m.httpPanicTotal.Inc() }

func (m *ServerMetrics) IncRateLimited() { m.rateLimited.Inc() }

// SetPack records the pack now being served. Previous label values are
// cleared so only one pack is ever reported.
func (m *ServerMetrics) SetPack(name, sha256 string, files, values int, loadedAt time.Time) {
	m.packInfo.Reset()
	m.packInfo.WithLabelValues(name, sha256).Set(1)
	m.packEntries.WithLabelValues("file").Set(float64(files))
	m.packEntries.WithLabelValues("value").Set(float64(values))
	m.packLoadedTs.Set(float64(loadedAt.Unix()))
}

// ObserveStoreOp counts one remote store call and its latency.
func (m *ServerMetrics) ObserveStoreOp(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOps.WithLabelValues(op, result).Inc()
	m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *ServerMetrics) IncWatcherPolls() { m.watcherPolls.Inc() }

func (m *ServerMetrics) IncWatcherSwaps() { m.watcherSwaps.Inc() }

func (m *ServerMetrics) IncWatcherError(errType string) {
	m.watcherErrors.WithLabelValues(errType).Inc()
}

func (m *ServerMetrics) SetWatcherLastSuccess(t time.Time) {
	m.watcherLastSuccessTs.Set(float64(t.Unix()))
}

func (m *ServerMetrics) SetWatcherStale(stale bool) { m.watcherStale.Set(boolGauge(stale)) }

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
