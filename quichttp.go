package quichttp

import (
	"github.com/ajitpratap0/quic-http-go/pkg/client"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/server"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
	"github.com/ajitpratap0/quic-http-go/pkg/transport/quic"
)

// Version represents the current version of the binding
const Version = "0.1.0"

// Core types
type (
	Handler          = server.Handler
	HandlerFunc      = server.HandlerFunc
	IncomingRequest  = server.IncomingRequest
	OutgoingResponse = server.OutgoingResponse
	IncomingResponse = client.IncomingResponse
	RequestConfig    = protocol.RequestConfig
	URL              = protocol.URL
	Headers          = protocol.Headers
)

// Log levels accepted by SetMinLogLevel
const (
	LogDebug = logging.DebugLevel
	LogInfo  = logging.InfoLevel
	LogWarn  = logging.WarnLevel
	LogError = logging.ErrorLevel
	LogFatal = logging.FatalLevel
)

// These exports provide direct access to the core components
var (
	// NewClient creates a client over any transport.Fetcher
	NewClient = client.New

	// NewLoopback creates an in-memory transport
	NewLoopback = transport.NewLoopback

	// Normalize validates loose request input
	Normalize = protocol.Normalize

	// SetMinLogLevel sets the process-wide minimum log level
	SetMinLogLevel = logging.SetMinLogLevel

	// DefaultTransportConfig returns the default QUIC settings
	DefaultTransportConfig = quic.DefaultConfig
)

// Client options
var (
	WithClientLogger         = client.WithLogger
	WithClientMetrics        = client.WithMetrics
	WithClientTracerProvider = client.WithTracerProvider
	WithClientTracing        = client.WithTracing
)

// Response observers
var (
	ObserveHeaders  = client.ObserveHeaders
	ObserveData     = client.ObserveData
	ObserveResponse = client.ObserveResponse
	ObserveError    = client.ObserveError
)

// Server options
var (
	WithServerLogger         = server.WithLogger
	WithServerMetrics        = server.WithMetrics
	WithServerTracerProvider = server.WithTracerProvider
	WithServerTracing        = server.WithTracing
)

// NewFetcher creates a client that sends requests over QUIC.
func NewFetcher(cfg quic.Config, options ...client.Option) *client.Client {
	return client.New(quic.NewFetcher(cfg), options...)
}

// NewServer creates a server that accepts QUIC sessions with the certificate
// and key at the given paths.
func NewServer(certPath, keyPath string, cfg quic.Config, handler Handler, options ...server.Option) (*server.Server, error) {
	return server.New(server.Config{CertPath: certPath, KeyPath: keyPath}, quic.NewEngineFactory(cfg), handler, options...)
}

// NewLoopbackServer creates a server attached to an in-memory transport. The
// certificate and key are checked but never loaded.
func NewLoopbackServer(lb *transport.Loopback, certPath, keyPath string, handler Handler, options ...server.Option) (*server.Server, error) {
	return server.New(server.Config{CertPath: certPath, KeyPath: keyPath}, lb.EngineFactory(), handler, options...)
}
