package server

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/event"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// HeadersEvent is one header frame of a request. The first frame is the
// validated request head; later ones are trailers.
type HeadersEvent struct {
	Headers  protocol.Headers
	Fin      bool
	Trailers bool
}

// DataEvent is one body chunk of a request.
type DataEvent struct {
	Data []byte
	Fin  bool
}

// IncomingRequest reads the request frames of one stream and publishes them
// as events. Method, Scheme, Host and URL are empty until the request head
// has arrived.
type IncomingRequest struct {
	id     string
	stream transport.ServerStream
	logger logging.Logger

	group   event.Group
	headers *event.List[HeadersEvent]
	data    *event.List[DataEvent]
	errs    *event.List[error]

	closed      protocol.Direction
	onHead      func(h protocol.Headers) context.Context
	onMalformed func(err error)

	mu       sync.Mutex
	ctx      context.Context
	head     *protocol.RequestHead
	trailers protocol.Headers
}

func newIncomingRequest(id string, stream transport.ServerStream, logger logging.Logger) *IncomingRequest {
	r := &IncomingRequest{
		id:     id,
		stream: stream,
		logger: logger,
		ctx:    logging.ContextWithRequestID(context.Background(), id),
	}
	r.headers = event.NewList[HeadersEvent](&r.group)
	r.data = event.NewList[DataEvent](&r.group)
	r.errs = event.NewList[error](&r.group)

	stream.SetHeadersAvailableCallback(r.handleHeaders)
	stream.SetDataAvailableCallback(r.handleData)
	return r
}

// ID is the request id assigned by the server.
func (r *IncomingRequest) ID() string { return r.id }

// SessionID identifies the session the stream belongs to.
func (r *IncomingRequest) SessionID() string { return r.stream.SessionID() }

// StreamID identifies the stream within its session.
func (r *IncomingRequest) StreamID() uint64 { return r.stream.StreamID() }

// Method returns the :method pseudo-header.
func (r *IncomingRequest) Method() string { return r.field(func(h *protocol.RequestHead) string { return h.Method }) }

// Scheme returns the :scheme pseudo-header.
func (r *IncomingRequest) Scheme() string { return r.field(func(h *protocol.RequestHead) string { return h.Scheme }) }

// Host returns the :authority pseudo-header.
func (r *IncomingRequest) Host() string { return r.field(func(h *protocol.RequestHead) string { return h.Host }) }

// URL returns the :path pseudo-header.
func (r *IncomingRequest) URL() string { return r.field(func(h *protocol.RequestHead) string { return h.URL }) }

// Headers returns the regular headers of the request head.
func (r *IncomingRequest) Headers() protocol.Headers {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == nil {
		return nil
	}
	return r.head.Headers.Regular()
}

// Trailers returns the request trailers, if any arrived.
func (r *IncomingRequest) Trailers() protocol.Headers {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trailers.Clone()
}

// Context carries the request id and, once the head arrived, the request span.
func (r *IncomingRequest) Context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

// Finished reports whether the request reached a terminal frame or failed.
func (r *IncomingRequest) Finished() bool { return r.closed.Finished() }

// OnHeaders registers fn for header frames. It returns false once the request
// has finished or its stream closed.
func (r *IncomingRequest) OnHeaders(fn func(HeadersEvent)) bool { return r.headers.Add(fn) }

// OnData registers fn for body chunks.
func (r *IncomingRequest) OnData(fn func(DataEvent)) bool { return r.data.Add(fn) }

// OnError registers fn for a malformed request.
func (r *IncomingRequest) OnError(fn func(error)) bool { return r.errs.Add(fn) }

func (r *IncomingRequest) field(get func(*protocol.RequestHead) string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == nil {
		return ""
	}
	return get(r.head)
}

func (r *IncomingRequest) handleHeaders(h protocol.Headers, fin bool) {
	if r.group.Terminated() {
		return
	}

	r.mu.Lock()
	if r.head != nil {
		r.trailers = h.Regular()
		ev := HeadersEvent{Headers: r.trailers.Clone(), Fin: fin, Trailers: true}
		r.mu.Unlock()

		r.headers.Emit(ev)
		if fin {
			r.finish()
		}
		return
	}

	head, err := protocol.ParseRequestHead(h)
	if err != nil {
		r.mu.Unlock()
		r.fail(err)
		return
	}
	r.head = head
	r.mu.Unlock()

	if r.onHead != nil {
		ctx := r.onHead(h)
		r.mu.Lock()
		r.ctx = ctx
		r.mu.Unlock()
	}

	r.logger.Debug("Request head received",
		logging.String("method", head.Method),
		logging.String("path", head.URL),
		logging.Bool("fin", fin))

	r.headers.Emit(HeadersEvent{Headers: head.Headers.Regular(), Fin: fin})
	if fin {
		r.finish()
	}
}

func (r *IncomingRequest) handleData(data []byte, fin bool) {
	if r.group.Terminated() {
		return
	}

	r.mu.Lock()
	started := r.head != nil
	r.mu.Unlock()
	if !started {
		r.fail(errors.InvalidSequence("request headers", "data frame"))
		return
	}

	r.data.Emit(DataEvent{Data: data, Fin: fin})
	if fin {
		r.finish()
	}
}

func (r *IncomingRequest) finish() {
	if r.closed.Finish() {
		r.group.Terminate()
	}
}

func (r *IncomingRequest) fail(err error) {
	if !r.closed.Finish() {
		return
	}

	if e, ok := errors.AsError(err); ok {
		ec := errors.Context{Timestamp: time.Now()}
		if e.Context() != nil {
			ec = *e.Context()
		}
		ec.RequestID = r.id
		ec.SessionID = r.SessionID()
		ec.StreamID = r.StreamID()
		ec.Component = "server"
		ec.Operation = "request"
		err = e.WithContext(&ec)
	}

	r.errs.EmitFinal(err)
	if r.onMalformed != nil {
		r.onMalformed(err)
	}
}

// detach drops every observer once the stream has closed.
func (r *IncomingRequest) detach() {
	r.closed.Finish()
	r.group.Terminate()
}
