package server

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/event"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/observability"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// Config holds the TLS material handed to the engine.
type Config struct {
	CertPath string
	KeyPath  string
}

// Handler serves one request stream. It is invoked once per stream, as soon
// as the stream is created and before the request head arrives; it observes
// the request through its events and answers through res.
type Handler interface {
	ServeQUIC(req *IncomingRequest, res *OutgoingResponse)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(req *IncomingRequest, res *OutgoingResponse)

// ServeQUIC calls f(req, res).
func (f HandlerFunc) ServeQUIC(req *IncomingRequest, res *OutgoingResponse) { f(req, res) }

// SessionClosedEvent reports a closed session.
type SessionClosedEvent struct {
	SessionID string
	Code      uint64
	Detail    string
}

// StreamEvent reports a created or closed stream. Request and Response are
// nil for streams the server never dispatched.
type StreamEvent struct {
	SessionID string
	StreamID  uint64
	Request   *IncomingRequest
	Response  *OutgoingResponse
}

// MalformedStatus answers a request whose head failed validation.
const MalformedStatus = 400

// Server dispatches the streams of an Engine to a Handler.
type Server struct {
	cfg     Config
	handler Handler
	engine  transport.Engine

	logger     logging.Logger
	metrics    observability.MetricsProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	group          event.Group
	sessions       *event.List[string]
	sessionsClosed *event.List[SessionClosedEvent]
	streams        *event.List[StreamEvent]
	streamsClosed  *event.List[StreamEvent]

	mu       sync.Mutex
	entries  map[streamKey]*entry
	shutdown bool
}

type streamKey struct {
	session string
	stream  uint64
}

type entry struct {
	req   *IncomingRequest
	res   *OutgoingResponse
	start time.Time
	span  trace.Span
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records served requests and instruments the engine notifications.
func WithMetrics(metrics observability.MetricsProvider) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracerProvider sets the provider request spans are started from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracer = tp.Tracer(observability.TracerName)
		}
	}
}

// WithTracing starts request spans from tp and propagates trace context
// with its propagator.
func WithTracing(tp *observability.TracingProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracer = tp.TracerProvider().Tracer(observability.TracerName)
			s.propagator = tp.Propagator()
		}
	}
}

// WithPropagator sets how trace context is read from request headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(s *Server) {
		if p != nil {
			s.propagator = p
		}
	}
}

// New validates cfg and handler and builds the engine through factory. The
// certificate and key files must exist before the factory is invoked.
func New(cfg Config, factory transport.EngineFactory, handler Handler, options ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.MissingParameter("handler")
	}
	if factory == nil {
		return nil, errors.MissingParameter("engine factory")
	}
	if err := checkFile("cert", cfg.CertPath); err != nil {
		return nil, err
	}
	if err := checkFile("key", cfg.KeyPath); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logging.NewNop(),
		tracer:  otel.GetTracerProvider().Tracer(observability.TracerName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		entries: make(map[streamKey]*entry),
	}
	s.sessions = event.NewList[string](&s.group)
	s.sessionsClosed = event.NewList[SessionClosedEvent](&s.group)
	s.streams = event.NewList[StreamEvent](&s.group)
	s.streamsClosed = event.NewList[StreamEvent](&s.group)

	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.Named("server")

	engine, err := factory(transport.EngineConfig{
		CertPath: cfg.CertPath,
		KeyPath:  cfg.KeyPath,
		Notifier: observability.InstrumentNotifier(s.Notifier(), s.metrics),
		Logger:   s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

func checkFile(parameter, path string) error {
	if path == "" {
		return errors.MissingParameter(parameter)
	}
	if _, err := os.Stat(path); err != nil {
		return errors.FileNotFound(parameter, path, err)
	}
	return nil
}

// Listen binds the engine and serves in the background.
func (s *Server) Listen(bindAddress string, port int) error {
	s.mu.Lock()
	closed := s.shutdown
	s.mu.Unlock()
	if closed {
		return errors.NotListening("server", "listen").WithDetail("server was shut down")
	}

	if err := s.engine.Listen(bindAddress, port); err != nil {
		s.logger.WithError(err).Error("Failed to listen",
			logging.String("bind_address", bindAddress), logging.Int("port", port))
		return err
	}

	s.logger.Info("Server listening", logging.String("addr", s.engine.Addr()))
	return nil
}

// Addr reports the engine's bound address.
func (s *Server) Addr() string { return s.engine.Addr() }

// Shutdown stops the engine and detaches the server's observers.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	err := s.engine.Shutdown()
	s.group.Terminate()

	s.logger.Info("Server shut down", logging.Int("active_streams", s.ActiveStreams()))
	return err
}

// ActiveStreams returns the number of dispatched streams not yet closed.
func (s *Server) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// OnSession registers fn for created sessions.
func (s *Server) OnSession(fn func(sessionID string)) bool { return s.sessions.Add(fn) }

// OnSessionClosed registers fn for closed sessions.
func (s *Server) OnSessionClosed(fn func(SessionClosedEvent)) bool {
	return s.sessionsClosed.Add(fn)
}

// OnStream registers fn for dispatched streams.
func (s *Server) OnStream(fn func(StreamEvent)) bool { return s.streams.Add(fn) }

// OnStreamClosed registers fn for closed streams.
func (s *Server) OnStreamClosed(fn func(StreamEvent)) bool { return s.streamsClosed.Add(fn) }

// Notifier returns the transport.Notifier the engine reports to.
func (s *Server) Notifier() transport.Notifier { return notifier{s} }

type notifier struct{ s *Server }

func (n notifier) OnSessionCreated(sessionID string) {
	n.s.logger.Debug("Session created", logging.String("session_id", sessionID))
	n.s.sessions.Emit(sessionID)
}

func (n notifier) OnSessionClosed(sessionID string, code uint64, detail string) {
	n.s.logger.Debug("Session closed",
		logging.String("session_id", sessionID),
		logging.Uint64("code", code),
		logging.String("detail", detail))
	n.s.sessionsClosed.Emit(SessionClosedEvent{SessionID: sessionID, Code: code, Detail: detail})
}

func (n notifier) OnStreamCreated(sessionID string, stream transport.ServerStream) {
	n.s.dispatch(sessionID, stream)
}

func (n notifier) OnStreamClosed(sessionID string, streamID uint64) {
	n.s.release(sessionID, streamID)
}

func (s *Server) dispatch(sessionID string, stream transport.ServerStream) {
	key := streamKey{session: sessionID, stream: stream.StreamID()}
	logger := s.logger.WithFields(
		logging.String("session_id", sessionID),
		logging.Uint64("stream_id", key.stream),
	)

	s.mu.Lock()
	if _, dup := s.entries[key]; dup {
		s.mu.Unlock()
		logger.Warn("Ignoring duplicate stream notification")
		return
	}
	id := uuid.NewString()
	e := &entry{
		req:   newIncomingRequest(id, stream, logger.WithFields(logging.String("request_id", id))),
		res:   newOutgoingResponse(stream),
		start: time.Now(),
	}
	s.entries[key] = e
	s.mu.Unlock()

	e.req.onHead = func(h protocol.Headers) context.Context {
		return s.startSpan(e, h)
	}
	e.req.onMalformed = func(err error) {
		s.rejectMalformed(e, logger, err)
	}

	s.serve(e, logger)
	s.streams.Emit(StreamEvent{SessionID: sessionID, StreamID: key.stream, Request: e.req, Response: e.res})
}

func (s *Server) serve(e *entry, logger logging.Logger) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.InternalError("handler panicked", fmt.Errorf("%v", r))
			logger.WithError(err).Error("Recovered from handler panic")
			if s.metrics != nil {
				s.metrics.RecordError("server", err)
			}
		}
	}()
	s.handler.ServeQUIC(e.req, e.res)
}

func (s *Server) startSpan(e *entry, h protocol.Headers) context.Context {
	ctx := s.propagator.Extract(e.req.Context(), observability.HeadersCarrier(h))

	method, path := h.Get(protocol.PseudoMethod), h.Get(protocol.PseudoPath)
	url := h.Get(protocol.PseudoScheme) + "://" + h.Get(protocol.PseudoAuthority) + path
	ctx, span := observability.StartRequestSpan(ctx, s.tracer, trace.SpanKindServer, method, url, path)

	s.mu.Lock()
	e.span = span
	s.mu.Unlock()
	return ctx
}

func (s *Server) rejectMalformed(e *entry, logger logging.Logger, err error) {
	logger.WithError(err).Warn("Rejecting malformed request")
	if s.metrics != nil {
		s.metrics.RecordError("server", err)
	}

	if e.res.HeadersSent() {
		return
	}
	if werr := e.res.WriteHeaders(MalformedStatus, nil, true); werr != nil {
		logger.WithError(werr).Debug("Failed to answer malformed request")
	}
}

func (s *Server) release(sessionID string, streamID uint64) {
	key := streamKey{session: sessionID, stream: streamID}

	s.mu.Lock()
	e, ok := s.entries[key]
	delete(s.entries, key)
	var span trace.Span
	if ok {
		span = e.span
	}
	s.mu.Unlock()

	if !ok {
		s.streamsClosed.Emit(StreamEvent{SessionID: sessionID, StreamID: streamID})
		return
	}

	e.req.detach()

	status := e.res.Status()
	if span != nil {
		observability.EndRequestSpan(span, status, nil)
	}
	if s.metrics != nil {
		method := e.req.Method()
		if method == "" {
			method = "UNKNOWN"
		}
		label := "none"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		s.metrics.RecordIncomingRequest(e.req.Context(), method, label, time.Since(e.start))
	}

	s.logger.Debug("Stream closed",
		logging.String("session_id", sessionID),
		logging.Uint64("stream_id", streamID),
		logging.Int("status", status),
		logging.Duration("duration", time.Since(e.start)))

	s.streamsClosed.Emit(StreamEvent{SessionID: sessionID, StreamID: streamID, Request: e.req, Response: e.res})
}
