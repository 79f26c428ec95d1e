package observability

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Prometheus configuration
	MetricsPath string // HTTP path for metrics endpoint (default: /metrics)
	MetricsAddr string // Listen address for the metrics server (default: :9090)

	// Metric options
	Namespace        string    // Prometheus namespace (default: quichttp)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for latency

	// Labels to add to all metrics
	ConstLabels prometheus.Labels

	// Registerer and Gatherer default to the Prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Logger logging.Logger
}

// MetricsProvider records binding metrics
type MetricsProvider interface {
	// Requests
	RecordRequest(ctx context.Context, method, status string, duration time.Duration)
	RecordIncomingRequest(ctx context.Context, method, status string, duration time.Duration)

	// Transport events
	RecordBytes(direction string, n int)
	RecordSessionEvent(event string)
	RecordActiveSessions(delta int)
	RecordActiveStreams(delta int)

	// Errors, labelled by component and error code name
	RecordError(component string, err error)

	// Management
	Handler() http.Handler
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus
type PrometheusMetricsProvider struct {
	config MetricsConfig
	logger logging.Logger

	mu     sync.Mutex
	server *http.Server
	addr   string

	requestDuration         *prometheus.HistogramVec
	requestTotal            *prometheus.CounterVec
	incomingRequestDuration *prometheus.HistogramVec
	incomingRequestTotal    *prometheus.CounterVec

	bytesTotal     *prometheus.CounterVec
	sessionEvents  *prometheus.CounterVec
	activeSessions prometheus.Gauge
	activeStreams  prometheus.Gauge

	errorTotal *prometheus.CounterVec
}

var _ MetricsProvider = (*PrometheusMetricsProvider)(nil)

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	// Set defaults
	if config.Namespace == "" {
		config.Namespace = "quichttp"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsAddr == "" {
		config.MetricsAddr = ":9090"
	}
	if config.HistogramBuckets == nil {
		// Default buckets for milliseconds
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	// Add service labels to const labels
	labels := prometheus.Labels{}
	for k, v := range config.ConstLabels {
		labels[k] = v
	}
	if config.ServiceName != "" {
		labels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		labels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		labels["environment"] = config.Environment
	}
	config.ConstLabels = labels

	p := &PrometheusMetricsProvider{
		config: config,
		logger: logger.Named("metrics"),
	}
	p.initializeMetrics()

	if err := p.registerMetrics(); err != nil {
		return nil, errors.WrapError(err, errors.CodeConfigError,
			"Failed to register metrics", errors.CategoryConfig, errors.SeverityError)
	}
	return p, nil
}

// initializeMetrics creates all metric collectors
func (p *PrometheusMetricsProvider) initializeMetrics() {
	c := p.config

	p.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "request_duration_milliseconds",
			Help:        "Duration of outgoing requests in milliseconds",
			Buckets:     c.HistogramBuckets,
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)

	p.requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "request_total",
			Help:        "Total number of outgoing requests",
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)

	p.incomingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "incoming_request_duration_milliseconds",
			Help:        "Duration of served request streams in milliseconds",
			Buckets:     c.HistogramBuckets,
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)

	p.incomingRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "incoming_request_total",
			Help:        "Total number of served request streams",
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)

	p.bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "body_bytes_total",
			Help:        "Body bytes moved through streams",
			ConstLabels: c.ConstLabels,
		},
		[]string{"direction"},
	)

	p.sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "session_events_total",
			Help:        "Session lifecycle events",
			ConstLabels: c.ConstLabels,
		},
		[]string{"event"},
	)

	p.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of open sessions",
			ConstLabels: c.ConstLabels,
		},
	)

	p.activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "active_streams",
			Help:        "Number of open request streams",
			ConstLabels: c.ConstLabels,
		},
	)

	p.errorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of errors by component and code",
			ConstLabels: c.ConstLabels,
		},
		[]string{"component", "code", "category"},
	)
}

// registerMetrics registers all metrics. Collectors that are already
// registered are reused so several providers can share a registry.
func (p *PrometheusMetricsProvider) registerMetrics() error {
	register := func(c prometheus.Collector) (prometheus.Collector, error) {
		if err := p.config.Registerer.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			return are.ExistingCollector, nil
		}
		return c, nil
	}

	for _, hv := range []**prometheus.HistogramVec{&p.requestDuration, &p.incomingRequestDuration} {
		c, err := register(*hv)
		if err != nil {
			return err
		}
		*hv = c.(*prometheus.HistogramVec)
	}
	for _, cv := range []**prometheus.CounterVec{
		&p.requestTotal, &p.incomingRequestTotal, &p.bytesTotal, &p.sessionEvents, &p.errorTotal,
	} {
		c, err := register(*cv)
		if err != nil {
			return err
		}
		*cv = c.(*prometheus.CounterVec)
	}
	for _, g := range []*prometheus.Gauge{&p.activeSessions, &p.activeStreams} {
		c, err := register(*g)
		if err != nil {
			return err
		}
		*g = c.(prometheus.Gauge)
	}
	return nil
}

// observe attaches the trace id as an exemplar when ctx carries a sampled span.
func observe(ctx context.Context, o prometheus.Observer, v float64) {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsSampled() {
			if eo, ok := o.(prometheus.ExemplarObserver); ok {
				eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": sc.TraceID().String()})
				return
			}
		}
	}
	o.Observe(v)
}

// RecordRequest records an outgoing request
func (p *PrometheusMetricsProvider) RecordRequest(ctx context.Context, method, status string, duration time.Duration) {
	observe(ctx, p.requestDuration.WithLabelValues(method, status), float64(duration.Milliseconds()))
	p.requestTotal.WithLabelValues(method, status).Inc()
}

// RecordIncomingRequest records a served request stream
func (p *PrometheusMetricsProvider) RecordIncomingRequest(ctx context.Context, method, status string, duration time.Duration) {
	observe(ctx, p.incomingRequestDuration.WithLabelValues(method, status), float64(duration.Milliseconds()))
	p.incomingRequestTotal.WithLabelValues(method, status).Inc()
}

// RecordBytes counts body bytes; direction is "sent" or "received".
func (p *PrometheusMetricsProvider) RecordBytes(direction string, n int) {
	if n > 0 {
		p.bytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordSessionEvent counts a session lifecycle event
func (p *PrometheusMetricsProvider) RecordSessionEvent(event string) {
	p.sessionEvents.WithLabelValues(event).Inc()
}

// RecordActiveSessions records the change in open sessions
func (p *PrometheusMetricsProvider) RecordActiveSessions(delta int) {
	p.activeSessions.Add(float64(delta))
}

// RecordActiveStreams records the change in open streams
func (p *PrometheusMetricsProvider) RecordActiveStreams(delta int) {
	p.activeStreams.Add(float64(delta))
}

// RecordError counts err under its code name and category
func (p *PrometheusMetricsProvider) RecordError(component string, err error) {
	if err == nil {
		return
	}
	code, category := "UnknownError", string(errors.CategoryInternal)
	if e, ok := errors.AsError(err); ok {
		code = errors.GetErrorCodeName(e.Code())
		category = string(e.Category())
	}
	p.errorTotal.WithLabelValues(component, code, category).Inc()
}

// Handler serves the gathered metrics, with request logging
func (p *PrometheusMetricsProvider) Handler() http.Handler {
	h := promhttp.HandlerFor(p.config.Gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return logging.HTTPMiddleware(p.logger)(h)
}

// Start binds the metrics endpoint and serves it in the background
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.config.MetricsAddr)
	if err != nil {
		return errors.ConnectionFailed("metrics", p.config.MetricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, p.Handler())
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	p.addr = ln.Addr().String()

	srv := p.server
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			p.logger.Error("Metrics server stopped", logging.ErrorField(err))
		}
	}()

	p.logger.Info("Serving metrics", logging.String("addr", p.addr), logging.String("path", p.config.MetricsPath))
	return nil
}

// Addr reports the bound metrics address, or "" before Start.
func (p *PrometheusMetricsProvider) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// Shutdown gracefully shuts down the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	srv := p.server
	p.server = nil
	p.addr = ""
	p.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
