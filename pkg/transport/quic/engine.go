package quic

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	quicgo "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// Engine serves HTTP/3 over QUIC and reports sessions and streams to a
// transport.Notifier.
type Engine struct {
	cfg      Config
	tlsConf  *tls.Config
	notifier transport.Notifier
	logger   logging.Logger

	mu       sync.Mutex
	ln       *quicgo.EarlyListener
	cancel   context.CancelFunc
	group    *errgroup.Group
	sessions map[string]*session
}

var _ transport.Engine = (*Engine)(nil)

// NewEngineFactory returns a factory that loads the certificate pair named in
// the EngineConfig.
func NewEngineFactory(cfg Config) transport.EngineFactory {
	return func(ec transport.EngineConfig) (transport.Engine, error) {
		return NewEngine(cfg, ec)
	}
}

// NewEngine builds an Engine. The certificate and key are loaded eagerly so a
// bad pair fails before Listen.
func NewEngine(cfg Config, ec transport.EngineConfig) (*Engine, error) {
	if ec.Notifier == nil {
		return nil, errors.MissingParameter("notifier")
	}

	cert, err := tls.LoadX509KeyPair(ec.CertPath, ec.KeyPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CodeInvalidParameter,
			"Failed to load certificate pair", errors.CategoryConfig, errors.SeverityCritical).
			WithData(&errors.ParameterErrorData{Parameter: "certPath,keyPath", Value: ec.CertPath + "," + ec.KeyPath})
	}

	logger := ec.Logger
	if logger == nil {
		logger = cfg.logger()
	}

	return &Engine{
		cfg: cfg,
		tlsConf: http3.ConfigureTLSConfig(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		}),
		notifier: ec.Notifier,
		logger:   logger.Named("quic-engine"),
		sessions: make(map[string]*session),
	}, nil
}

// Listen binds a UDP socket and starts accepting connections in the background.
func (e *Engine) Listen(bindAddress string, port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ln != nil {
		return errors.TransportError(transportName, "listen", stderrors.New("already listening"))
	}

	addr := net.JoinHostPort(bindAddress, strconv.Itoa(port))
	ln, err := quicgo.ListenAddrEarly(addr, e.tlsConf, e.cfg.quicConfig())
	if err != nil {
		return errors.ConnectionFailed(transportName, addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.ln = ln
	e.cancel = cancel
	group := &errgroup.Group{}
	e.group = group
	group.Go(func() error {
		return e.acceptLoop(ctx, ln, group)
	})

	e.logger.Info("Listening", logging.String("addr", ln.Addr().String()))
	return nil
}

// Addr reports the bound UDP address.
func (e *Engine) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.Addr().String()
}

// Shutdown closes the listener and every open connection, then waits for the
// connection goroutines to finish.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	ln, cancel, group := e.ln, e.cancel, e.group
	if ln == nil {
		e.mu.Unlock()
		return nil
	}
	e.ln = nil
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	cancel()
	closeErr := ln.Close()
	for _, s := range sessions {
		_ = s.conn.CloseWithError(0, "server shutdown")
	}

	if err := group.Wait(); err != nil {
		e.logger.WithError(err).Warn("Accept loop ended with error")
	}
	e.logger.Info("Shut down")

	if closeErr != nil {
		return errors.TransportError(transportName, "shutdown", closeErr)
	}
	return nil
}

func (e *Engine) acceptLoop(ctx context.Context, ln *quicgo.EarlyListener, group *errgroup.Group) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, quicgo.ErrServerClosed) {
				return nil
			}
			return err
		}

		s := &session{id: uuid.New().String(), conn: conn}

		e.mu.Lock()
		if e.ln != ln {
			e.mu.Unlock()
			_ = conn.CloseWithError(0, "server shutdown")
			return nil
		}
		e.sessions[s.id] = s
		e.mu.Unlock()

		group.Go(func() error {
			e.serveSession(s)
			return nil
		})
	}
}

type session struct {
	id         string
	conn       *quicgo.Conn
	nextStream atomic.Uint64
}

// streamID numbers streams whose request does not expose the wire id.
func (s *session) streamID() uint64 {
	return (s.nextStream.Add(1) - 1) * 4
}

func (e *Engine) serveSession(s *session) {
	logger := e.logger.WithFields(
		logging.String("session_id", s.id),
		logging.String("remote_addr", s.conn.RemoteAddr().String()),
	)
	logger.Debug("Session opened")
	e.notifier.OnSessionCreated(s.id)

	srv := &http3.Server{Handler: e.streamHandler(s, logger)}
	if err := srv.ServeQUICConn(s.conn); err != nil {
		logger.Debug("Session serve ended", logging.ErrorField(err))
	}

	code, detail := closeReason(context.Cause(s.conn.Context()))

	e.mu.Lock()
	delete(e.sessions, s.id)
	e.mu.Unlock()

	logger.Debug("Session closed", logging.Uint64("code", code), logging.String("detail", detail))
	e.notifier.OnSessionClosed(s.id, code, detail)
}

// closeReason extracts the application close code and reason from the cause
// a QUIC connection context was cancelled with.
func closeReason(cause error) (uint64, string) {
	if cause == nil {
		return 0, ""
	}

	var appErr *quicgo.ApplicationError
	if stderrors.As(cause, &appErr) {
		return uint64(appErr.ErrorCode), appErr.ErrorMessage
	}

	var idleErr *quicgo.IdleTimeoutError
	if stderrors.As(cause, &idleErr) {
		return 0, "idle timeout"
	}

	return 0, cause.Error()
}
