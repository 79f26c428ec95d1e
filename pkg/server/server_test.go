package server

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/observability"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
	"github.com/ajitpratap0/quic-http-go/pkg/transport/transporttest"
)

func tlsFiles(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		CertPath: filepath.Join(dir, "cert.pem"),
		KeyPath:  filepath.Join(dir, "key.pem"),
	}
	require.NoError(t, os.WriteFile(cfg.CertPath, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(cfg.KeyPath, []byte("key"), 0o600))
	return cfg
}

func newTestServer(t *testing.T, h Handler, options ...Option) (*Server, *transporttest.Engine) {
	t.Helper()
	engine := &transporttest.Engine{}
	srv, err := New(tlsFiles(t), engine.Factory(), h, options...)
	require.NoError(t, err)
	return srv, engine
}

func validHead() protocol.Headers {
	return protocol.Headers{
		":method":    "POST",
		":scheme":    "https",
		":authority": "example.com",
		":path":      "/echo",
		"x-custom":   "yes",
	}
}

func TestNewValidation(t *testing.T) {
	h := HandlerFunc(func(*IncomingRequest, *OutgoingResponse) {})
	var calls int32
	factory := func(cfg transport.EngineConfig) (transport.Engine, error) {
		atomic.AddInt32(&calls, 1)
		return &transporttest.Engine{}, nil
	}

	t.Run("nil handler", func(t *testing.T) {
		_, err := New(tlsFiles(t), factory, nil)
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("missing cert", func(t *testing.T) {
		cfg := tlsFiles(t)
		cfg.CertPath = filepath.Join(t.TempDir(), "absent.pem")
		_, err := New(cfg, factory, h)
		assert.True(t, errors.IsCode(err, errors.CodeFileNotFound))
	})

	t.Run("missing key", func(t *testing.T) {
		cfg := tlsFiles(t)
		cfg.KeyPath = filepath.Join(t.TempDir(), "absent.pem")
		_, err := New(cfg, factory, h)
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("empty paths", func(t *testing.T) {
		_, err := New(Config{}, factory, h)
		assert.True(t, errors.IsCode(err, errors.CodeMissingParameter))
	})

	assert.Zero(t, atomic.LoadInt32(&calls), "factory must not run for invalid configuration")

	_, err := New(tlsFiles(t), factory, h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNewPassesConfigToFactory(t *testing.T) {
	cfg := tlsFiles(t)
	engine := &transporttest.Engine{}
	_, err := New(cfg, engine.Factory(), HandlerFunc(func(*IncomingRequest, *OutgoingResponse) {}))
	require.NoError(t, err)

	assert.Equal(t, cfg.CertPath, engine.Config.CertPath)
	assert.Equal(t, cfg.KeyPath, engine.Config.KeyPath)
	assert.NotNil(t, engine.Config.Notifier)
	assert.NotNil(t, engine.Config.Logger)
}

func TestHandlerInvokedOncePerStream(t *testing.T) {
	var calls int32
	srv, engine := newTestServer(t, HandlerFunc(func(*IncomingRequest, *OutgoingResponse) {
		atomic.AddInt32(&calls, 1)
	}))

	n := engine.Notifier()
	stream := transporttest.NewServerStream("s1", 0)
	n.OnStreamCreated("s1", stream)
	n.OnStreamCreated("s1", stream)
	n.OnStreamCreated("s1", transporttest.NewServerStream("s1", 4))
	n.OnStreamCreated("s2", transporttest.NewServerStream("s2", 0))

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, 3, srv.ActiveStreams())

	n.OnStreamClosed("s1", 0)
	assert.Equal(t, 2, srv.ActiveStreams())

	// The key is free again once the stream closed.
	n.OnStreamCreated("s1", transporttest.NewServerStream("s1", 0))
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestEchoThroughDispatcher(t *testing.T) {
	_, engine := newTestServer(t, HandlerFunc(func(req *IncomingRequest, res *OutgoingResponse) {
		req.OnHeaders(func(ev HeadersEvent) {
			if !ev.Trailers {
				assert.NoError(t, res.WriteHeaders(200, ev.Headers, ev.Fin))
			}
		})
		req.OnData(func(ev DataEvent) {
			assert.NoError(t, res.WriteData(ev.Data, ev.Fin))
		})
	}))

	stream := transporttest.NewServerStream("s1", 0)
	engine.Notifier().OnStreamCreated("s1", stream)
	stream.DeliverHeaders(validHead(), false)
	stream.DeliverData([]byte("ping"), false)
	stream.DeliverData([]byte("pong"), true)

	writes := stream.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, "headers", writes[0].Kind)
	assert.Equal(t, "200", writes[0].Headers.Get(":status"))
	assert.Equal(t, "yes", writes[0].Headers.Get("x-custom"))
	assert.Equal(t, "ping", string(writes[1].Data))
	assert.Equal(t, "pong", string(writes[2].Data))
	assert.True(t, writes[2].Fin)
}

func TestLifecycleEventsRepublished(t *testing.T) {
	srv, engine := newTestServer(t, HandlerFunc(func(*IncomingRequest, *OutgoingResponse) {}))

	var got []string
	require.True(t, srv.OnSession(func(id string) { got = append(got, "session "+id) }))
	require.True(t, srv.OnSessionClosed(func(ev SessionClosedEvent) {
		got = append(got, "session-closed "+ev.SessionID+" "+ev.Detail)
	}))
	require.True(t, srv.OnStream(func(ev StreamEvent) {
		assert.NotNil(t, ev.Request)
		assert.NotNil(t, ev.Response)
		got = append(got, "stream "+ev.SessionID)
	}))
	require.True(t, srv.OnStreamClosed(func(ev StreamEvent) {
		got = append(got, "stream-closed "+ev.SessionID)
	}))

	n := engine.Notifier()
	n.OnSessionCreated("s1")
	n.OnStreamCreated("s1", transporttest.NewServerStream("s1", 0))
	n.OnStreamClosed("s1", 0)
	n.OnSessionClosed("s1", 0, "idle")

	assert.Equal(t, []string{
		"session s1",
		"stream s1",
		"stream-closed s1",
		"session-closed s1 idle",
	}, got)
}

func TestStreamClosedDetachesRequestObservers(t *testing.T) {
	var req *IncomingRequest
	srv, engine := newTestServer(t, HandlerFunc(func(r *IncomingRequest, _ *OutgoingResponse) {
		req = r
	}))

	stream := transporttest.NewServerStream("s1", 0)
	engine.Notifier().OnStreamCreated("s1", stream)
	require.NotNil(t, req)

	var headers int
	require.True(t, req.OnHeaders(func(HeadersEvent) { headers++ }))

	engine.Notifier().OnStreamClosed("s1", 0)
	stream.DeliverHeaders(validHead(), true)

	assert.Zero(t, headers)
	assert.False(t, req.OnHeaders(func(HeadersEvent) {}))
	assert.Zero(t, srv.ActiveStreams())
}

func TestMalformedRequestAnswered400(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var reqErr error
	_, engine := newTestServer(t, HandlerFunc(func(req *IncomingRequest, _ *OutgoingResponse) {
		req.OnError(func(err error) { reqErr = err })
	}), WithLogger(logging.New(zap.New(core))))

	stream := transporttest.NewServerStream("s1", 8)
	engine.Notifier().OnStreamCreated("s1", stream)

	head := validHead()
	delete(head, ":path")
	stream.DeliverHeaders(head, false)

	require.Error(t, reqErr)
	assert.True(t, errors.IsProtocolError(reqErr))
	assert.True(t, errors.IsCode(reqErr, errors.CodeMissingPseudoHeader))
	e, ok := errors.AsError(reqErr)
	require.True(t, ok)
	assert.Equal(t, "s1", e.Context().SessionID)
	assert.EqualValues(t, 8, e.Context().StreamID)

	writes := stream.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "400", writes[0].Headers.Get(":status"))
	assert.True(t, writes[0].Fin)

	assert.Equal(t, 1, logs.FilterMessage("Rejecting malformed request").Len())
}

func TestMalformedRequestAfterHeadersSent(t *testing.T) {
	_, engine := newTestServer(t, HandlerFunc(func(_ *IncomingRequest, res *OutgoingResponse) {
		assert.NoError(t, res.WriteHeaders(202, nil, false))
	}))

	stream := transporttest.NewServerStream("s1", 0)
	engine.Notifier().OnStreamCreated("s1", stream)
	stream.DeliverHeaders(protocol.Headers{":method": "GET"}, true)

	writes := stream.Writes()
	require.Len(t, writes, 1, "no 400 once the handler answered")
	assert.Equal(t, "202", writes[0].Headers.Get(":status"))
}

func TestHandlerPanicRecovered(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	srv, engine := newTestServer(t, HandlerFunc(func(*IncomingRequest, *OutgoingResponse) {
		panic("boom")
	}), WithLogger(logging.New(zap.New(core))))

	assert.NotPanics(t, func() {
		engine.Notifier().OnStreamCreated("s1", transporttest.NewServerStream("s1", 0))
	})
	assert.Equal(t, 1, logs.FilterMessage("Recovered from handler panic").Len())
	assert.Equal(t, 1, srv.ActiveStreams())
}

func TestListenAndShutdown(t *testing.T) {
	srv, engine := newTestServer(t, HandlerFunc(func(*IncomingRequest, *OutgoingResponse) {}))

	require.NoError(t, srv.Listen("127.0.0.1", 4433))
	assert.Equal(t, "127.0.0.1:4433", srv.Addr())

	var sessions int
	require.True(t, srv.OnSession(func(string) { sessions++ }))

	require.NoError(t, srv.Shutdown())
	require.NoError(t, srv.Shutdown())
	assert.Equal(t, 1, engine.Shutdowns())

	engine.Notifier().OnSessionCreated("late")
	assert.Zero(t, sessions, "observers are detached by shutdown")
	assert.False(t, srv.OnSession(func(string) {}))

	err := srv.Listen("127.0.0.1", 4433)
	assert.True(t, errors.IsCode(err, errors.CodeNotListening))
}

func TestListenFailure(t *testing.T) {
	engine := &transporttest.Engine{ListenErr: errors.ConnectionFailed("fake", "127.0.0.1:1", nil)}
	srv, err := New(tlsFiles(t), engine.Factory(), HandlerFunc(func(*IncomingRequest, *OutgoingResponse) {}))
	require.NoError(t, err)

	err = srv.Listen("127.0.0.1", 1)
	assert.True(t, errors.IsTransportError(err))
}

func TestRequestSpanFromPropagatedContext(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	var req *IncomingRequest
	_, engine := newTestServer(t, HandlerFunc(func(r *IncomingRequest, res *OutgoingResponse) {
		req = r
		r.OnHeaders(func(HeadersEvent) {
			assert.NoError(t, res.WriteHeaders(204, nil, true))
		})
	}), WithTracerProvider(tp), WithPropagator(propagation.TraceContext{}))

	head := validHead()
	head.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	stream := transporttest.NewServerStream("s1", 0)
	engine.Notifier().OnStreamCreated("s1", stream)
	stream.DeliverHeaders(head, true)
	engine.Notifier().OnStreamClosed("s1", 0)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST", spans[0].Name())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
	assert.NotEmpty(t, logging.RequestIDFromContext(req.Context()))
}

func TestWithTracingExtractsThroughProvider(t *testing.T) {
	tp, err := observability.NewTracingProvider(observability.TracingConfig{ServiceName: "test"})
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var req *IncomingRequest
	_, engine := newTestServer(t, HandlerFunc(func(r *IncomingRequest, res *OutgoingResponse) {
		req = r
		r.OnHeaders(func(HeadersEvent) {
			assert.NoError(t, res.WriteHeaders(204, nil, true))
		})
	}), WithTracing(tp))

	head := validHead()
	head.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	stream := transporttest.NewServerStream("s1", 0)
	engine.Notifier().OnStreamCreated("s1", stream)
	stream.DeliverHeaders(head, true)

	sc := trace.SpanContextFromContext(req.Context())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.NotEqual(t, "00f067aa0ba902b7", sc.SpanID().String())

	engine.Notifier().OnStreamClosed("s1", 0)
}

func TestServedRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{
		Namespace:  "test",
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)

	_, engine := newTestServer(t, HandlerFunc(func(req *IncomingRequest, res *OutgoingResponse) {
		req.OnHeaders(func(HeadersEvent) {
			assert.NoError(t, res.WriteData([]byte("ok"), true))
		})
	}), WithMetrics(metrics))

	n := engine.Notifier()
	stream := transporttest.NewServerStream("s1", 0)
	n.OnSessionCreated("s1")
	n.OnStreamCreated("s1", stream)
	stream.DeliverHeaders(validHead(), true)
	n.OnStreamClosed("s1", 0)

	count, err := testutil.GatherAndCount(reg, "test_incoming_request_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "test_body_bytes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the sent direction saw bytes")
}
