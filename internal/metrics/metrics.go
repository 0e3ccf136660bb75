package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrescak/Draftboard-sub002/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	errorsTotal            *prometheus.CounterVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	profilingActive        prometheus.Gauge

	// publishing
	deploymentsInitialized prometheus.Counter
	deploymentsFinalized   prometheus.Counter
	filesSigned            prometheus.Counter
	sessionsIssued         prometheus.Counter
	authFailures           *prometheus.CounterVec
	notifyFailures         prometheus.Counter

	// serving
	siteLookups *prometheus.CounterVec
}

// New returns a fresh registry + standard collectors + HTTP and publishing
// metrics. Labels are bounded sets only (method, route, code, reason,
// result) to avoid cardinality explosions from owner or site slugs.
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
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		deploymentsInitialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deployments_initialized_total",
			Help: "Total deployments opened for upload",
		}),
		deploymentsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deployments_finalized_total",
			Help: "Total successful finalize calls",
		}),
		filesSigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deployment_files_signed_total",
			Help: "Total presigned upload URLs issued",
		}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publish_sessions_issued_total",
			Help: "Total publish sessions minted",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publish_auth_failures_total",
			Help: "Rejected publish credentials by reason",
		}, []string{"reason"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deployment_notify_failures_total",
			Help: "Activation events that could not be published",
		}),
		siteLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "site_object_lookups_total",
			Help: "Static site requests by resolution result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.profilingActive,
		m.deploymentsInitialized,
		m.deploymentsFinalized,
		m.filesSigned,
		m.sessionsIssued,
		m.authFailures,
		m.notifyFailures,
		m.siteLookups,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// Registry exposes the registry for tests and extra collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.AppName,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// DeploymentInitialized, DeploymentFinalized, FilesSigned and NotifyFailed
// make ServerMetrics a deploy.Recorder.
func (m *ServerMetrics) DeploymentInitialized() { m.deploymentsInitialized.Inc() }
func (m *ServerMetrics) DeploymentFinalized()   { m.deploymentsFinalized.Inc() }
func (m *ServerMetrics) FilesSigned(n int)      { m.filesSigned.Add(float64(n)) }
func (m *ServerMetrics) NotifyFailed()          { m.notifyFailures.Inc() }

func (m *ServerMetrics) IncSessionIssued() {
	m.sessionsIssued.Inc()
}

func (m *ServerMetrics) IncAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

func (m *ServerMetrics) IncSiteLookup(result string) {
	m.siteLookups.WithLabelValues(result).Inc()
}
