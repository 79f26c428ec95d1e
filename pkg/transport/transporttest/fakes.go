// Package transporttest provides recording fakes of the transport contract
// for unit tests of the client and server packages.
package transporttest

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// Write is one frame written to a fake stream.
type Write struct {
	Kind    string // "headers", "data" or "trailers"
	Headers protocol.Headers
	Data    []byte
	Fin     bool
}

// ServerStream is a fake transport.ServerStream that records writes.
type ServerStream struct {
	Session string
	Stream  uint64

	mu        sync.Mutex
	onHeaders transport.HeadersCallback
	onData    transport.DataCallback
	writes    []Write
	writeErr  error
}

var _ transport.ServerStream = (*ServerStream)(nil)

// NewServerStream creates a fake stream.
func NewServerStream(session string, stream uint64) *ServerStream {
	return &ServerStream{Session: session, Stream: stream}
}

func (s *ServerStream) SessionID() string { return s.Session }
func (s *ServerStream) StreamID() uint64  { return s.Stream }

func (s *ServerStream) SetHeadersAvailableCallback(cb transport.HeadersCallback) {
	s.mu.Lock()
	s.onHeaders = cb
	s.mu.Unlock()
}

func (s *ServerStream) SetDataAvailableCallback(cb transport.DataCallback) {
	s.mu.Lock()
	s.onData = cb
	s.mu.Unlock()
}

// FailWrites makes every later write return err.
func (s *ServerStream) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *ServerStream) WriteHeaders(headers protocol.Headers, fin bool) error {
	return s.record(Write{Kind: "headers", Headers: headers.Clone(), Fin: fin})
}

func (s *ServerStream) WriteData(data []byte, fin bool) error {
	return s.record(Write{Kind: "data", Data: append([]byte(nil), data...), Fin: fin})
}

func (s *ServerStream) WriteTrailers(trailers protocol.Headers) error {
	return s.record(Write{Kind: "trailers", Headers: trailers.Clone(), Fin: true})
}

func (s *ServerStream) record(w Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, w)
	return nil
}

// Writes returns the recorded writes.
func (s *ServerStream) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// DeliverHeaders invokes the headers callback as the transport would.
func (s *ServerStream) DeliverHeaders(h protocol.Headers, fin bool) {
	s.mu.Lock()
	cb := s.onHeaders
	s.mu.Unlock()
	if cb != nil {
		cb(h, fin)
	}
}

// DeliverData invokes the data callback as the transport would.
func (s *ServerStream) DeliverData(data []byte, fin bool) {
	s.mu.Lock()
	cb := s.onData
	s.mu.Unlock()
	if cb != nil {
		cb(data, fin)
	}
}

// RequestStream is a fake transport.RequestStream.
type RequestStream struct {
	Descriptor *protocol.RequestDescriptor

	id        string
	mu        sync.Mutex
	onHeaders transport.HeadersCallback
	onData    transport.DataCallback
	onError   transport.ErrorCallback
	started   int
	startErr  error
}

var _ transport.RequestStream = (*RequestStream)(nil)

func (r *RequestStream) ID() string { return r.id }

func (r *RequestStream) SetHeadersAvailableCallback(cb transport.HeadersCallback) {
	r.mu.Lock()
	r.onHeaders = cb
	r.mu.Unlock()
}

func (r *RequestStream) SetDataAvailableCallback(cb transport.DataCallback) {
	r.mu.Lock()
	r.onData = cb
	r.mu.Unlock()
}

func (r *RequestStream) SetErrorCallback(cb transport.ErrorCallback) {
	r.mu.Lock()
	r.onError = cb
	r.mu.Unlock()
}

func (r *RequestStream) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return r.startErr
}

// Started reports how many times Start was called.
func (r *RequestStream) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// DeliverHeaders invokes the headers callback.
func (r *RequestStream) DeliverHeaders(h protocol.Headers, fin bool) {
	r.mu.Lock()
	cb := r.onHeaders
	r.mu.Unlock()
	if cb != nil {
		cb(h, fin)
	}
}

// DeliverData invokes the data callback.
func (r *RequestStream) DeliverData(data []byte, fin bool) {
	r.mu.Lock()
	cb := r.onData
	r.mu.Unlock()
	if cb != nil {
		cb(data, fin)
	}
}

// DeliverError invokes the error callback.
func (r *RequestStream) DeliverError(err error) {
	r.mu.Lock()
	cb := r.onError
	r.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Chunk is one recorded AppendChunkToUpload call.
type Chunk struct {
	RequestID string
	Data      []byte
	Fin       bool
}

// Fetcher is a fake transport.Fetcher.
type Fetcher struct {
	// CreateErr, AppendErr and StartErr are returned by the matching calls when set.
	CreateErr error
	AppendErr error
	StartErr  error

	mu       sync.Mutex
	requests []*RequestStream
	chunks   []Chunk
	closed   bool
}

var _ transport.Fetcher = (*Fetcher)(nil)

func (f *Fetcher) CreateRequest(desc *protocol.RequestDescriptor) (transport.RequestStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	r := &RequestStream{Descriptor: desc, id: uuid.New().String(), startErr: f.StartErr}
	f.requests = append(f.requests, r)
	return r, nil
}

func (f *Fetcher) AppendChunkToUpload(requestID string, data []byte, fin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AppendErr != nil {
		return f.AppendErr
	}
	f.chunks = append(f.chunks, Chunk{RequestID: requestID, Data: append([]byte(nil), data...), Fin: fin})
	return nil
}

func (f *Fetcher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Requests returns the created requests.
func (f *Fetcher) Requests() []*RequestStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*RequestStream(nil), f.requests...)
}

// Last returns the most recently created request.
func (f *Fetcher) Last() *RequestStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

// Chunks returns the recorded upload chunks.
func (f *Fetcher) Chunks() []Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Chunk(nil), f.chunks...)
}

// Closed reports whether Close was called.
func (f *Fetcher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Notifier records lifecycle notifications as strings such as
// "session-created s1" or "stream-closed s1/4". OnStream, when set, is called
// for every created stream.
type Notifier struct {
	OnStream func(transport.ServerStream)

	mu     sync.Mutex
	events []string
}

var _ transport.Notifier = (*Notifier)(nil)

func (n *Notifier) OnSessionCreated(sessionID string) {
	n.add("session-created " + sessionID)
}

func (n *Notifier) OnSessionClosed(sessionID string, code uint64, detail string) {
	n.add(fmt.Sprintf("session-closed %s %d %s", sessionID, code, detail))
}

func (n *Notifier) OnStreamCreated(sessionID string, stream transport.ServerStream) {
	n.add(fmt.Sprintf("stream-created %s/%d", sessionID, stream.StreamID()))
	if n.OnStream != nil {
		n.OnStream(stream)
	}
}

func (n *Notifier) OnStreamClosed(sessionID string, streamID uint64) {
	n.add(fmt.Sprintf("stream-closed %s/%d", sessionID, streamID))
}

func (n *Notifier) add(e string) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

// Events returns the recorded notifications.
func (n *Notifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// Engine is a fake transport.Engine. Its Notifier is the one handed to the
// factory, so tests can drive the lifecycle directly.
type Engine struct {
	Config    transport.EngineConfig
	ListenErr error

	mu        sync.Mutex
	addr      string
	shutdowns int
}

var _ transport.Engine = (*Engine)(nil)

// Factory returns an EngineFactory that records its config into e.
func (e *Engine) Factory() transport.EngineFactory {
	return func(cfg transport.EngineConfig) (transport.Engine, error) {
		e.Config = cfg
		return e, nil
	}
}

func (e *Engine) Listen(bindAddress string, port int) error {
	if e.ListenErr != nil {
		return e.ListenErr
	}
	e.mu.Lock()
	e.addr = fmt.Sprintf("%s:%d", bindAddress, port)
	e.mu.Unlock()
	return nil
}

func (e *Engine) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

func (e *Engine) Shutdown() error {
	e.mu.Lock()
	e.shutdowns++
	e.mu.Unlock()
	return nil
}

// Shutdowns reports how many times Shutdown was called.
func (e *Engine) Shutdowns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdowns
}

// Notifier returns the notifier the engine reports to.
func (e *Engine) Notifier() transport.Notifier {
	return e.Config.Notifier
}
