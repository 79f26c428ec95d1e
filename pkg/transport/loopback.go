package transport

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
)

const loopbackName = "loopback"

// Loopback is an in-memory transport pairing Fetchers with one listening
// Engine. Every callback, on both sides, runs on the Loopback's Loop.
type Loopback struct {
	loop   *Loop
	logger logging.Logger

	mu     sync.Mutex
	engine *loopbackEngine
}

// LoopbackOption configures a Loopback.
type LoopbackOption func(*Loopback)

// WithLoopbackLogger sets the logger.
func WithLoopbackLogger(logger logging.Logger) LoopbackOption {
	return func(lb *Loopback) {
		if logger != nil {
			lb.logger = logger
		}
	}
}

// NewLoopback creates an in-memory transport with its own Loop.
func NewLoopback(opts ...LoopbackOption) *Loopback {
	lb := &Loopback{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(lb)
	}
	lb.logger = lb.logger.Named(loopbackName)
	lb.loop = NewLoop(lb.logger)
	return lb
}

// EngineFactory returns a factory for engines that accept this Loopback's sessions.
func (lb *Loopback) EngineFactory() EngineFactory {
	return func(cfg EngineConfig) (Engine, error) {
		if cfg.Notifier == nil {
			return nil, errors.MissingParameter("notifier")
		}
		return &loopbackEngine{lb: lb, notifier: cfg.Notifier}, nil
	}
}

// NewFetcher returns a Fetcher. Each Fetcher opens at most one session at a time.
func (lb *Loopback) NewFetcher() Fetcher {
	return &loopbackFetcher{lb: lb, requests: make(map[string]*loopbackRequest)}
}

// Flush waits until every callback queued so far has run.
func (lb *Loopback) Flush() {
	lb.loop.Flush()
}

// Close shuts down the listening engine and stops the Loop after draining it.
func (lb *Loopback) Close() error {
	lb.mu.Lock()
	e := lb.engine
	lb.mu.Unlock()

	if e != nil {
		_ = e.Shutdown()
	}
	lb.loop.Close()
	return nil
}

func (lb *Loopback) post(fn func()) {
	if !lb.loop.Post(fn) {
		lb.logger.Debug("Dropping callback after loop close")
	}
}

type loopbackEngine struct {
	lb       *Loopback
	notifier Notifier

	// guarded by lb.mu
	addr      string
	listening bool
	sessions  map[string]*loopbackSession
}

func (e *loopbackEngine) Listen(bindAddress string, port int) error {
	lb := e.lb
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.engine != nil && lb.engine != e {
		return errors.TransportError(loopbackName, "listen", net.ErrClosed).
			WithDetail("another engine is already listening on " + lb.engine.addr)
	}

	e.addr = net.JoinHostPort(bindAddress, strconv.Itoa(port))
	e.listening = true
	if e.sessions == nil {
		e.sessions = make(map[string]*loopbackSession)
	}
	lb.engine = e

	lb.logger.Info("Engine listening", logging.String("addr", e.addr))
	return nil
}

func (e *loopbackEngine) Addr() string {
	e.lb.mu.Lock()
	defer e.lb.mu.Unlock()
	return e.addr
}

func (e *loopbackEngine) Shutdown() error {
	lb := e.lb
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if !e.listening {
		return nil
	}
	e.listening = false
	if lb.engine == e {
		lb.engine = nil
	}

	for _, s := range e.sessions {
		s.closeLocked(0, "server shutdown", errors.ConnectionLost(loopbackName, "server shut down"))
	}

	lb.logger.Info("Engine shut down", logging.String("addr", e.addr))
	return nil
}

type loopbackSession struct {
	id         string
	engine     *loopbackEngine
	fetcher    *loopbackFetcher
	nextStream uint64
	requests   map[string]*loopbackRequest
}

// closeLocked aborts every open request of the session and reports it closed.
func (s *loopbackSession) closeLocked(code uint64, detail string, cause error) {
	for _, r := range s.requests {
		r.abortLocked(cause)
	}

	delete(s.engine.sessions, s.id)
	if s.fetcher.session == s {
		s.fetcher.session = nil
	}

	notifier, id := s.engine.notifier, s.id
	s.engine.lb.post(func() { notifier.OnSessionClosed(id, code, detail) })
}

type loopbackFetcher struct {
	lb *Loopback

	// guarded by lb.mu
	session  *loopbackSession
	requests map[string]*loopbackRequest
	closed   bool
}

func (f *loopbackFetcher) CreateRequest(desc *protocol.RequestDescriptor) (RequestStream, error) {
	if desc == nil {
		return nil, errors.MissingParameter("descriptor")
	}

	f.lb.mu.Lock()
	defer f.lb.mu.Unlock()

	if f.closed {
		return nil, errors.TransportError(loopbackName, "create request", net.ErrClosed)
	}

	r := &loopbackRequest{
		lb:      f.lb,
		fetcher: f,
		id:      uuid.New().String(),
		desc:    desc,
	}
	f.requests[r.id] = r
	return r, nil
}

func (f *loopbackFetcher) AppendChunkToUpload(requestID string, data []byte, fin bool) error {
	lb := f.lb
	lb.mu.Lock()
	defer lb.mu.Unlock()

	r, ok := f.requests[requestID]
	switch {
	case !ok:
		return errors.StreamClosed("", 0, "append chunk").WithDetail("unknown request " + requestID)
	case !r.desc.IsChunkedUpload():
		return errors.NotChunkedUpload(requestID)
	case r.uploadFin:
		return errors.WriteAfterFin(requestID)
	case !r.started:
		return errors.InvalidSequence("request start", "upload chunk")
	}

	chunk := append([]byte(nil), data...)
	if fin {
		r.uploadFin = true
	}
	stream := r.stream
	lb.post(func() { stream.emitData(chunk, fin) })

	if fin {
		r.maybeFinishLocked()
	}
	return nil
}

func (f *loopbackFetcher) Close() error {
	lb := f.lb
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	cause := errors.ConnectionLost(loopbackName, "fetcher closed")
	if f.session != nil {
		f.session.closeLocked(0, "client closed", cause)
	}
	for _, r := range f.requests {
		r.abortLocked(cause)
	}
	return nil
}

// sessionLocked returns the fetcher's session on e, opening one if needed.
func (f *loopbackFetcher) sessionLocked(e *loopbackEngine) *loopbackSession {
	if f.session != nil && f.session.engine == e {
		return f.session
	}

	s := &loopbackSession{
		id:       uuid.New().String(),
		engine:   e,
		fetcher:  f,
		requests: make(map[string]*loopbackRequest),
	}
	e.sessions[s.id] = s
	f.session = s

	notifier, id := e.notifier, s.id
	f.lb.post(func() { notifier.OnSessionCreated(id) })
	return s
}

type loopbackRequest struct {
	lb      *Loopback
	fetcher *loopbackFetcher
	id      string
	desc    *protocol.RequestDescriptor

	// guarded by lb.mu
	session     *loopbackSession
	stream      *loopbackStream
	timer       *time.Timer
	onHeaders   HeadersCallback
	onData      DataCallback
	onError     ErrorCallback
	started     bool
	uploadFin   bool
	responseFin bool
	done        bool
}

func (r *loopbackRequest) ID() string { return r.id }

func (r *loopbackRequest) SetHeadersAvailableCallback(cb HeadersCallback) {
	r.lb.mu.Lock()
	r.onHeaders = cb
	r.lb.mu.Unlock()
}

func (r *loopbackRequest) SetDataAvailableCallback(cb DataCallback) {
	r.lb.mu.Lock()
	r.onData = cb
	r.lb.mu.Unlock()
}

func (r *loopbackRequest) SetErrorCallback(cb ErrorCallback) {
	r.lb.mu.Lock()
	r.onError = cb
	r.lb.mu.Unlock()
}

func (r *loopbackRequest) Start() error {
	lb := r.lb
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if r.started {
		return errors.InvalidSequence("unstarted request", "second start")
	}
	r.started = true

	if r.done {
		return nil
	}

	e := lb.engine
	if e == nil || !e.listening {
		r.abortLocked(errors.ConnectionFailed(loopbackName, r.desc.Authority(), nil))
		return nil
	}

	s := r.fetcher.sessionLocked(e)
	r.session = s
	r.stream = &loopbackStream{req: r, sessionID: s.id, streamID: s.nextStream}
	s.nextStream += 4
	s.requests[r.id] = r

	if !r.desc.IsChunkedUpload() {
		r.uploadFin = true
	}
	r.timer = time.AfterFunc(r.desc.Timeout(), r.expire)

	notifier := e.notifier
	stream := r.stream
	head := r.desc.HeaderBlock()
	payload := r.desc.Payload()
	headFin := payload == nil && !r.desc.IsChunkedUpload()

	lb.post(func() {
		notifier.OnStreamCreated(stream.sessionID, stream)
		stream.emitHeaders(head, headFin)
		if payload != nil {
			stream.emitData(payload, true)
		}
	})
	return nil
}

func (r *loopbackRequest) expire() {
	r.lb.mu.Lock()
	defer r.lb.mu.Unlock()

	if r.done || r.responseFin {
		return
	}
	r.abortLocked(errors.RequestTimeout(loopbackName, r.desc.URL(), r.desc.Timeout()))
}

// abortLocked fails the request with cause and tears the stream down.
func (r *loopbackRequest) abortLocked(cause error) {
	if r.done {
		return
	}
	r.uploadFin = true
	r.responseFin = true
	r.lb.post(func() { r.emitError(cause) })
	r.finishLocked()
}

func (r *loopbackRequest) maybeFinishLocked() {
	if r.uploadFin && r.responseFin {
		r.finishLocked()
	}
}

func (r *loopbackRequest) finishLocked() {
	if r.done {
		return
	}
	r.done = true

	if r.timer != nil {
		r.timer.Stop()
	}
	delete(r.fetcher.requests, r.id)

	if s := r.session; s != nil {
		delete(s.requests, r.id)
		notifier, sessionID, streamID := s.engine.notifier, s.id, r.stream.streamID
		r.lb.post(func() { notifier.OnStreamClosed(sessionID, streamID) })
	}
}

func (r *loopbackRequest) emitHeaders(h protocol.Headers, fin bool) {
	r.lb.mu.Lock()
	cb := r.onHeaders
	r.lb.mu.Unlock()
	if cb != nil {
		cb(h, fin)
	}
}

func (r *loopbackRequest) emitData(data []byte, fin bool) {
	r.lb.mu.Lock()
	cb := r.onData
	r.lb.mu.Unlock()
	if cb != nil {
		cb(data, fin)
	}
}

func (r *loopbackRequest) emitError(err error) {
	r.lb.mu.Lock()
	cb := r.onError
	r.lb.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// loopbackStream is the server half of a loopbackRequest.
type loopbackStream struct {
	req       *loopbackRequest
	sessionID string
	streamID  uint64

	// guarded by req.lb.mu
	onHeaders HeadersCallback
	onData    DataCallback
}

func (s *loopbackStream) SessionID() string { return s.sessionID }
func (s *loopbackStream) StreamID() uint64  { return s.streamID }

func (s *loopbackStream) SetHeadersAvailableCallback(cb HeadersCallback) {
	s.req.lb.mu.Lock()
	s.onHeaders = cb
	s.req.lb.mu.Unlock()
}

func (s *loopbackStream) SetDataAvailableCallback(cb DataCallback) {
	s.req.lb.mu.Lock()
	s.onData = cb
	s.req.lb.mu.Unlock()
}

func (s *loopbackStream) WriteHeaders(headers protocol.Headers, fin bool) error {
	h := headers.Clone()
	return s.respond(fin, func(r *loopbackRequest) { r.emitHeaders(h, fin) })
}

func (s *loopbackStream) WriteData(data []byte, fin bool) error {
	chunk := append([]byte(nil), data...)
	return s.respond(fin, func(r *loopbackRequest) { r.emitData(chunk, fin) })
}

func (s *loopbackStream) WriteTrailers(trailers protocol.Headers) error {
	h := trailers.Clone()
	return s.respond(true, func(r *loopbackRequest) { r.emitHeaders(h, true) })
}

func (s *loopbackStream) respond(fin bool, deliver func(*loopbackRequest)) error {
	r := s.req
	lb := r.lb
	lb.mu.Lock()
	defer lb.mu.Unlock()

	switch {
	case r.responseFin && !r.done:
		return errors.WriteAfterFin(r.id)
	case r.done:
		return errors.StreamClosed(s.sessionID, s.streamID, "write")
	}

	if fin {
		r.responseFin = true
	}
	lb.post(func() { deliver(r) })

	if fin {
		r.maybeFinishLocked()
	}
	return nil
}

func (s *loopbackStream) emitHeaders(h protocol.Headers, fin bool) {
	s.req.lb.mu.Lock()
	cb := s.onHeaders
	s.req.lb.mu.Unlock()
	if cb != nil {
		cb(h, fin)
	}
}

func (s *loopbackStream) emitData(data []byte, fin bool) {
	s.req.lb.mu.Lock()
	cb := s.onData
	s.req.lb.mu.Unlock()
	if cb != nil {
		cb(data, fin)
	}
}
