package client

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/observability"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// Client issues requests through a transport.Fetcher.
type Client struct {
	fetcher    transport.Fetcher
	logger     logging.Logger
	metrics    observability.MetricsProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request metrics and instruments the fetcher.
func WithMetrics(metrics observability.MetricsProvider) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithTracerProvider sets the provider request spans are started from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(observability.TracerName)
		}
	}
}

// WithTracing starts request spans from tp and propagates trace context
// with its propagator.
func WithTracing(tp *observability.TracingProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.TracerProvider().Tracer(observability.TracerName)
			c.propagator = tp.Propagator()
		}
	}
}

// WithPropagator sets how trace context is written into request headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) {
		if p != nil {
			c.propagator = p
		}
	}
}

// New creates a Client over fetcher.
func New(fetcher transport.Fetcher, options ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		logger:  logging.NewNop(),
		tracer:  otel.GetTracerProvider().Tracer(observability.TracerName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	for _, option := range options {
		option(c)
	}

	c.logger = c.logger.Named("client")
	if fetcher != nil {
		c.fetcher = observability.InstrumentFetcher(fetcher, c.metrics)
	}
	return c
}

// Prepare normalizes in and creates the request without sending it, so that
// observers can be registered before the first frame arrives.
func (c *Client) Prepare(ctx context.Context, in protocol.Input) (*IncomingResponse, error) {
	desc, err := protocol.Normalize(in)
	if err != nil {
		return nil, err
	}
	return c.prepare(ctx, desc)
}

// Observer registers callbacks on a response before it is started. Pass
// observers to Request or a verb so that none of the exchange is missed.
type Observer func(r *IncomingResponse)

// ObserveHeaders registers fn for header frames.
func ObserveHeaders(fn func(HeadersEvent)) Observer {
	return func(r *IncomingResponse) { r.OnHeaders(fn) }
}

// ObserveData registers fn for body chunks.
func ObserveData(fn func(DataEvent)) Observer {
	return func(r *IncomingResponse) { r.OnData(fn) }
}

// ObserveResponse registers fn for the aggregated response.
func ObserveResponse(fn func(*Response)) Observer {
	return func(r *IncomingResponse) { r.OnResponse(fn) }
}

// ObserveError registers fn for a terminal failure.
func ObserveError(fn func(error)) Observer {
	return func(r *IncomingResponse) { r.OnError(fn) }
}

// PrepareAs is Prepare with the method fixed to m.
func (c *Client) PrepareAs(ctx context.Context, in protocol.Input, m protocol.Method) (*IncomingResponse, error) {
	desc, err := protocol.NormalizeAs(in, m)
	if err != nil {
		return nil, err
	}
	return c.prepare(ctx, desc)
}

// Request normalizes in, registers observers and sends it. Frames may arrive
// before observers registered on the returned handle; Wait always sees the
// outcome.
func (c *Client) Request(ctx context.Context, in protocol.Input, observers ...Observer) (*IncomingResponse, error) {
	desc, err := protocol.Normalize(in)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, desc, observers)
}

// Get sends in as a GET request.
func (c *Client) Get(ctx context.Context, in protocol.Input, observers ...Observer) (*IncomingResponse, error) {
	return c.requestAs(ctx, in, protocol.MethodGet, observers)
}

// Post sends in as a POST request.
func (c *Client) Post(ctx context.Context, in protocol.Input, observers ...Observer) (*IncomingResponse, error) {
	return c.requestAs(ctx, in, protocol.MethodPost, observers)
}

// Put sends in as a PUT request.
func (c *Client) Put(ctx context.Context, in protocol.Input, observers ...Observer) (*IncomingResponse, error) {
	return c.requestAs(ctx, in, protocol.MethodPut, observers)
}

// Patch sends in as a PATCH request.
func (c *Client) Patch(ctx context.Context, in protocol.Input, observers ...Observer) (*IncomingResponse, error) {
	return c.requestAs(ctx, in, protocol.MethodPatch, observers)
}

// Head sends in as a HEAD request.
func (c *Client) Head(ctx context.Context, in protocol.Input, observers ...Observer) (*IncomingResponse, error) {
	return c.requestAs(ctx, in, protocol.MethodHead, observers)
}

// Delete sends in as a DELETE request.
func (c *Client) Delete(ctx context.Context, in protocol.Input, observers ...Observer) (*IncomingResponse, error) {
	return c.requestAs(ctx, in, protocol.MethodDelete, observers)
}

// Close closes the underlying fetcher.
func (c *Client) Close() error {
	if c.fetcher == nil {
		return nil
	}
	return c.fetcher.Close()
}

func (c *Client) requestAs(ctx context.Context, in protocol.Input, m protocol.Method, observers []Observer) (*IncomingResponse, error) {
	desc, err := protocol.NormalizeAs(in, m)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, desc, observers)
}

func (c *Client) send(ctx context.Context, desc *protocol.RequestDescriptor, observers []Observer) (*IncomingResponse, error) {
	resp, err := c.prepare(ctx, desc)
	if err != nil {
		return nil, err
	}
	for _, observe := range observers {
		if observe != nil {
			observe(resp)
		}
	}
	if err := resp.Start(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) prepare(ctx context.Context, desc *protocol.RequestDescriptor) (*IncomingResponse, error) {
	if c.fetcher == nil {
		return nil, errors.MissingParameter("fetcher")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := desc.Method().String()
	ctx, span := observability.StartRequestSpan(ctx, c.tracer, trace.SpanKindClient, method, desc.URL(), desc.Path())

	carrier := protocol.Headers{}
	c.propagator.Inject(ctx, observability.HeadersCarrier(carrier))
	if len(carrier) > 0 {
		desc = desc.WithHeaders(carrier)
	}

	stream, err := c.fetcher.CreateRequest(desc)
	if err != nil {
		observability.EndRequestSpan(span, 0, err)
		c.recordRequest(ctx, method, 0, err, 0)
		return nil, err
	}

	var upload *UploadWriter
	if desc.IsChunkedUpload() {
		upload = newUploadWriter(c.fetcher, stream.ID())
	}

	logger := c.logger.WithFields(
		logging.String("request_id", stream.ID()),
		logging.String("method", method),
		logging.String("url", desc.URL()),
	)

	started := time.Now()
	onFinish := func(status int, err error) {
		observability.EndRequestSpan(span, status, err)
		c.recordRequest(ctx, method, status, err, time.Since(started))
	}

	return newIncomingResponse(ctx, desc, stream, upload, logger, onFinish), nil
}

func (c *Client) recordRequest(ctx context.Context, method string, status int, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	label := strconv.Itoa(status)
	if err != nil {
		label = "error"
	}
	c.metrics.RecordRequest(ctx, method, label, d)
}
