// Package config loads the YAML configuration of a QUIC server.
//
// A minimal file:
//
//	server:
//	  bind_address: 0.0.0.0
//	  port: 4433
//	  cert_path: /etc/quic/cert.pem
//	  key_path: /etc/quic/key.pem
//	logging:
//	  level: info
//
// Every other setting falls back to DefaultServerConfig.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/observability"
	"github.com/ajitpratap0/quic-http-go/pkg/server"
	"github.com/ajitpratap0/quic-http-go/pkg/transport/quic"
)

// ServerConfig is the root of the configuration file.
type ServerConfig struct {
	Server  ListenConfig  `yaml:"server"`
	QUIC    QUICConfig    `yaml:"quic"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ListenConfig is where the server binds and the TLS material it serves.
type ListenConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	CertPath    string `yaml:"cert_path"`
	KeyPath     string `yaml:"key_path"`
}

// QUICConfig tunes the QUIC engine.
type QUICConfig struct {
	HandshakeIdleTimeout time.Duration    `yaml:"handshake_idle_timeout"`
	MaxIdleTimeout       time.Duration    `yaml:"max_idle_timeout"`
	KeepAlivePeriod      time.Duration    `yaml:"keep_alive_period"`
	MaxIncomingStreams   int64            `yaml:"max_incoming_streams"`
	Allow0RTT            bool             `yaml:"allow_0rtt"`
	Retry                quic.RetryConfig `yaml:"retry"`
}

// LoggingConfig sets the process-wide log level.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Exporter    string            `yaml:"exporter"`
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	SampleRate  float64           `yaml:"sample_rate"`
	ServiceName string            `yaml:"service_name"`
	Headers     map[string]string `yaml:"headers"`
}

// DefaultServerConfig returns the configuration used for absent settings.
func DefaultServerConfig() ServerConfig {
	q := quic.DefaultConfig()
	return ServerConfig{
		Server: ListenConfig{
			BindAddress: "0.0.0.0",
			Port:        4433,
		},
		QUIC: QUICConfig{
			HandshakeIdleTimeout: q.HandshakeIdleTimeout,
			MaxIdleTimeout:       q.MaxIdleTimeout,
			KeepAlivePeriod:      q.KeepAlivePeriod,
			MaxIncomingStreams:   q.MaxIncomingStreams,
			Retry:                q.Retry,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Path:      "/metrics",
			Namespace: "quichttp",
		},
		Tracing: TracingConfig{
			Exporter:    string(observability.ExporterTypeNoop),
			SampleRate:  1.0,
			ServiceName: "quic-http",
		},
	}
}

// LoadServerConfig reads path over the defaults and validates the result.
func LoadServerConfig(path string) (ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, errors.FileNotFound("config", path, err)
	}
	return ParseServerConfig(data)
}

// ParseServerConfig decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func ParseServerConfig(data []byte) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return ServerConfig{}, errors.WrapError(err, errors.CodeConfigError,
			"Failed to parse server configuration", errors.CategoryConfig, errors.SeverityError)
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate checks ranges and required settings.
func (c ServerConfig) Validate() error {
	if c.Server.CertPath == "" {
		return errors.MissingParameter("server.cert_path")
	}
	if c.Server.KeyPath == "" {
		return errors.MissingParameter("server.key_path")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.InvalidParameter("server.port", c.Server.Port, "0-65535")
	}
	if c.QUIC.MaxIncomingStreams < 0 {
		return errors.InvalidParameter("quic.max_incoming_streams", c.QUIC.MaxIncomingStreams, "non-negative")
	}
	for name, d := range map[string]time.Duration{
		"quic.handshake_idle_timeout": c.QUIC.HandshakeIdleTimeout,
		"quic.max_idle_timeout":       c.QUIC.MaxIdleTimeout,
		"quic.keep_alive_period":      c.QUIC.KeepAlivePeriod,
	} {
		if d < 0 {
			return errors.InvalidParameter(name, d.String(), "non-negative duration")
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errors.InvalidParameter("logging.level", c.Logging.Level, "debug, info, warn, error or fatal")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.InvalidParameter("tracing.sample_rate", c.Tracing.SampleRate, "0.0-1.0")
	}
	switch observability.ExporterType(c.Tracing.Exporter) {
	case "", observability.ExporterTypeNoop, observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
	default:
		return errors.InvalidParameter("tracing.exporter", c.Tracing.Exporter, "noop, otlp-grpc or otlp-http")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.MissingParameter("metrics.addr")
	}
	return nil
}

// TLS returns the certificate and key paths the server is created with.
func (c ServerConfig) TLS() server.Config {
	return server.Config{CertPath: c.Server.CertPath, KeyPath: c.Server.KeyPath}
}

// Transport returns the QUIC engine settings.
func (c ServerConfig) Transport(logger logging.Logger) quic.Config {
	return quic.Config{
		HandshakeIdleTimeout: c.QUIC.HandshakeIdleTimeout,
		MaxIdleTimeout:       c.QUIC.MaxIdleTimeout,
		KeepAlivePeriod:      c.QUIC.KeepAlivePeriod,
		MaxIncomingStreams:   c.QUIC.MaxIncomingStreams,
		Allow0RTT:            c.QUIC.Allow0RTT,
		Retry:                c.QUIC.Retry,
		Logger:               logger,
	}
}

// MetricsProviderConfig returns the Prometheus settings.
func (c ServerConfig) MetricsProviderConfig(serviceVersion string, logger logging.Logger) observability.MetricsConfig {
	return observability.MetricsConfig{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: serviceVersion,
		MetricsAddr:    c.Metrics.Addr,
		MetricsPath:    c.Metrics.Path,
		Namespace:      c.Metrics.Namespace,
		Logger:         logger,
	}
}

// TracingProviderConfig returns the tracing settings.
func (c ServerConfig) TracingProviderConfig(serviceVersion string) observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: serviceVersion,
		ExporterType:   observability.ExporterType(c.Tracing.Exporter),
		Endpoint:       c.Tracing.Endpoint,
		Headers:        c.Tracing.Headers,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
		SetGlobal:      true,
	}
}
