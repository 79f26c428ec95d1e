// Command quic-echo-server answers every request with its own headers and body.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	quichttp "github.com/ajitpratap0/quic-http-go"
	"github.com/ajitpratap0/quic-http-go/pkg/config"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/observability"
	"github.com/ajitpratap0/quic-http-go/pkg/server"
	"github.com/ajitpratap0/quic-http-go/pkg/transport/quic"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		bind       = flag.String("bind", "", "bind address (overrides the configuration)")
		port       = flag.Int("port", 0, "UDP port (overrides the configuration)")
		certPath   = flag.String("cert", "", "certificate path (overrides the configuration)")
		keyPath    = flag.String("key", "", "private key path (overrides the configuration)")
		logLevel   = flag.String("log-level", "", "debug, info, warn, error or fatal")
		metrics    = flag.Bool("metrics", false, "serve Prometheus metrics")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, func(c *config.ServerConfig) {
		if *bind != "" {
			c.Server.BindAddress = *bind
		}
		if *port != 0 {
			c.Server.Port = *port
		}
		if *certPath != "" {
			c.Server.CertPath = *certPath
		}
		if *keyPath != "" {
			c.Server.KeyPath = *keyPath
		}
		if *logLevel != "" {
			c.Logging.Level = *logLevel
		}
		if *metrics {
			c.Metrics.Enabled = true
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "quic-echo-server: %v\n", err)
		os.Exit(2)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.SetMinLogLevel(level)
	logger := logging.Default()
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Echo server failed")
	}
}

func loadConfig(path string, override func(*config.ServerConfig)) (config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()
	if path != "" {
		loaded, err := config.LoadServerConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	override(&cfg)
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.ServerConfig, logger logging.Logger) error {
	tracing, err := observability.NewTracingProvider(cfg.TracingProviderConfig(quichttp.Version))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	options := []server.Option{
		server.WithLogger(logger),
		server.WithTracing(tracing),
	}

	var metrics *observability.PrometheusMetricsProvider
	if cfg.Metrics.Enabled {
		metrics, err = observability.NewMetricsProvider(cfg.MetricsProviderConfig(quichttp.Version, logger))
		if err != nil {
			return err
		}
		options = append(options, server.WithMetrics(metrics))
	}

	srv, err := server.New(cfg.TLS(), quic.NewEngineFactory(cfg.Transport(logger)), server.HandlerFunc(echo), options...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if metrics != nil {
		if err := metrics.Start(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metrics.Shutdown(shutdownCtx)
		})
	}

	if err := srv.Listen(cfg.Server.BindAddress, cfg.Server.Port); err != nil {
		return err
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		return srv.Shutdown()
	})

	return g.Wait()
}

// echo writes the request head back as the response head and streams the
// body back chunk by chunk. Request trailers become response trailers.
func echo(req *server.IncomingRequest, res *server.OutgoingResponse) {
	req.OnHeaders(func(ev server.HeadersEvent) {
		if ev.Trailers {
			_ = res.WriteTrailers(ev.Headers)
			return
		}
		h := ev.Headers.Clone()
		h.Set("x-echo-method", req.Method())
		h.Set("x-echo-path", req.URL())
		_ = res.WriteHeaders(200, h, ev.Fin)
	})
	req.OnData(func(ev server.DataEvent) {
		_ = res.WriteData(ev.Data, ev.Fin)
	})
}
