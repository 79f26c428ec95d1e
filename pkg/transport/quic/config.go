// Package quic implements the transport contract over QUIC using quic-go and
// its HTTP/3 layer.
//
// The Engine accepts QUIC connections, reports each as a session and serves
// every HTTP/3 request stream on it as a transport.ServerStream. The Fetcher
// issues requests over an http3.Transport, streaming chunked uploads from an
// in-memory queue and retrying replayable requests according to the
// descriptor's retry budgets.
package quic

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/cenkalti/backoff/v4"
	quicgo "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/ajitpratap0/quic-http-go/pkg/logging"
)

const transportName = "quic"

// RetryConfig shapes the delay between retried requests.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// Config holds the QUIC and TLS settings shared by the Engine and the Fetcher.
type Config struct {
	HandshakeIdleTimeout time.Duration
	MaxIdleTimeout       time.Duration
	KeepAlivePeriod      time.Duration
	MaxIncomingStreams   int64
	Allow0RTT            bool

	// Client-side TLS verification.
	InsecureSkipVerify bool
	RootCAs            *x509.CertPool

	Retry  RetryConfig
	Logger logging.Logger
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		HandshakeIdleTimeout: 10 * time.Second,
		MaxIdleTimeout:       30 * time.Second,
		KeepAlivePeriod:      15 * time.Second,
		MaxIncomingStreams:   100,
		Retry: RetryConfig{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
		},
	}
}

func (c Config) logger() logging.Logger {
	if c.Logger == nil {
		return logging.NewNop()
	}
	return c.Logger
}

func (c Config) quicConfig() *quicgo.Config {
	return &quicgo.Config{
		HandshakeIdleTimeout: c.HandshakeIdleTimeout,
		MaxIdleTimeout:       c.MaxIdleTimeout,
		KeepAlivePeriod:      c.KeepAlivePeriod,
		MaxIncomingStreams:   c.MaxIncomingStreams,
		Allow0RTT:            c.Allow0RTT,
	}
}

func (c Config) clientTLS() *tls.Config {
	return &tls.Config{
		RootCAs:            c.RootCAs,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed test servers
		NextProtos:         []string{http3.NextProtoH3},
		MinVersion:         tls.VersionTLS13,
	}
}

// newBackOff returns an unbounded exponential policy; attempt budgets are
// enforced by the caller.
func (c Config) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.Retry.InitialInterval > 0 {
		b.InitialInterval = c.Retry.InitialInterval
	}
	if c.Retry.MaxInterval > 0 {
		b.MaxInterval = c.Retry.MaxInterval
	}
	if c.Retry.Multiplier > 0 {
		b.Multiplier = c.Retry.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
