package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

func newTestMetrics(t *testing.T) (*PrometheusMetricsProvider, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewMetricsProvider(MetricsConfig{
		ServiceName: "test",
		MetricsAddr: "127.0.0.1:0",
		Registerer:  reg,
		Gatherer:    reg,
	})
	require.NoError(t, err)
	return m, reg
}

func TestMetrics_RecordRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRequest(context.Background(), "GET", "200", 15*time.Millisecond)
	m.RecordRequest(context.Background(), "GET", "200", 5*time.Millisecond)
	m.RecordIncomingRequest(context.Background(), "POST", "201", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.incomingRequestTotal.WithLabelValues("POST", "201")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestMetrics_GaugesAndBytes(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordActiveSessions(1)
	m.RecordActiveSessions(1)
	m.RecordActiveSessions(-1)
	m.RecordActiveStreams(3)
	m.RecordBytes("sent", 10)
	m.RecordBytes("sent", 0)
	m.RecordSessionEvent("created")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeStreams))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.bytesTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionEvents.WithLabelValues("created")))
}

func TestMetrics_RecordErrorUsesCodeName(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordError("server", errors.MissingPseudoHeader(":path"))
	m.RecordError("server", io.EOF)
	m.RecordError("server", nil)

	name := errors.GetErrorCodeName(errors.CodeMissingPseudoHeader)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorTotal.WithLabelValues("server", name, "protocol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorTotal.WithLabelValues("server", "UnknownError", "internal")))
}

func TestMetrics_SharedRegistryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMetricsProvider(MetricsConfig{Registerer: reg, Gatherer: reg})
	require.NoError(t, err)
	b, err := NewMetricsProvider(MetricsConfig{Registerer: reg, Gatherer: reg})
	require.NoError(t, err)

	a.RecordSessionEvent("created")
	b.RecordSessionEvent("created")
	assert.Equal(t, 2.0, testutil.ToFloat64(a.sessionEvents.WithLabelValues("created")))
}

func TestMetrics_Handler(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.RecordSessionEvent("created")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quichttp_session_events_total")
}

func TestMetrics_StartAndShutdown(t *testing.T) {
	m, _ := newTestMetrics(t)
	require.NoError(t, m.Start(context.Background()))
	require.NotEmpty(t, m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Empty(t, m.Addr())
}
