package client

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/event"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// HeadersEvent is one header frame of a response. The first carries the
// status; later ones are trailers.
type HeadersEvent struct {
	Status   int
	Headers  protocol.Headers
	Fin      bool
	Trailers bool
}

// DataEvent is one body chunk of a response.
type DataEvent struct {
	Data []byte
	Fin  bool
}

// Response is the complete response, published once the stream finished.
// Body is nil for streamed responses.
type Response struct {
	Status   int
	Headers  protocol.Headers
	Trailers protocol.Headers
	Body     []byte
}

// IncomingResponse reads the response of one request and publishes it as
// events. After the first terminal event every observer is detached and later
// registrations are refused.
type IncomingResponse struct {
	ctx    context.Context
	desc   *protocol.RequestDescriptor
	stream transport.RequestStream
	upload *UploadWriter
	logger logging.Logger
	start  time.Time

	group    event.Group
	headers  *event.List[HeadersEvent]
	data     *event.List[DataEvent]
	response *event.List[*Response]
	errs     *event.List[error]

	closed   protocol.Direction
	done     chan struct{}
	onFinish func(status int, err error)

	mu       sync.Mutex
	status   int
	head     protocol.Headers
	trailers protocol.Headers
	body     bytes.Buffer
	result   *Response
	err      error
}

func newIncomingResponse(
	ctx context.Context,
	desc *protocol.RequestDescriptor,
	stream transport.RequestStream,
	upload *UploadWriter,
	logger logging.Logger,
	onFinish func(status int, err error),
) *IncomingResponse {
	r := &IncomingResponse{
		ctx:      ctx,
		desc:     desc,
		stream:   stream,
		upload:   upload,
		logger:   logger,
		done:     make(chan struct{}),
		onFinish: onFinish,
	}
	r.headers = event.NewList[HeadersEvent](&r.group)
	r.data = event.NewList[DataEvent](&r.group)
	r.response = event.NewList[*Response](&r.group)
	r.errs = event.NewList[error](&r.group)

	stream.SetHeadersAvailableCallback(r.handleHeaders)
	stream.SetDataAvailableCallback(r.handleData)
	stream.SetErrorCallback(r.handleError)
	return r
}

// ID identifies the request on its fetcher.
func (r *IncomingResponse) ID() string { return r.stream.ID() }

// Descriptor returns the request the response belongs to.
func (r *IncomingResponse) Descriptor() *protocol.RequestDescriptor { return r.desc }

// Context carries the request span.
func (r *IncomingResponse) Context() context.Context { return r.ctx }

// Upload returns the chunked upload writer, or nil for fixed bodies.
func (r *IncomingResponse) Upload() *UploadWriter { return r.upload }

// OnHeaders registers fn for header frames. It returns false once the
// response has finished.
func (r *IncomingResponse) OnHeaders(fn func(HeadersEvent)) bool { return r.headers.Add(fn) }

// OnData registers fn for body chunks.
func (r *IncomingResponse) OnData(fn func(DataEvent)) bool { return r.data.Add(fn) }

// OnResponse registers fn for the aggregated response.
func (r *IncomingResponse) OnResponse(fn func(*Response)) bool { return r.response.Add(fn) }

// OnError registers fn for a terminal failure.
func (r *IncomingResponse) OnError(fn func(error)) bool { return r.errs.Add(fn) }

// Start sends the request. Observers registered before Start see every frame.
func (r *IncomingResponse) Start() error {
	r.start = time.Now()
	r.logger.Debug("Request started")

	if err := r.stream.Start(); err != nil {
		r.fail(err)
		return err
	}
	return nil
}

// Write sends one chunk of a chunked upload body.
func (r *IncomingResponse) Write(chunk []byte, fin bool) error {
	if r.upload == nil {
		return errors.NotChunkedUpload(r.ID())
	}
	return r.upload.Write(chunk, fin)
}

// Done is closed once the response finished or failed.
func (r *IncomingResponse) Done() <-chan struct{} { return r.done }

// Wait blocks until the response finished and returns it, or the failure.
func (r *IncomingResponse) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

func (r *IncomingResponse) handleHeaders(h protocol.Headers, fin bool) {
	if r.group.Terminated() {
		return
	}

	r.mu.Lock()
	var ev HeadersEvent
	if r.status == 0 {
		status, err := protocol.ParseResponseHead(h)
		if err != nil {
			r.mu.Unlock()
			r.fail(err)
			return
		}
		r.status = status
		r.head = h.Regular()
		ev = HeadersEvent{Status: status, Headers: r.head.Clone(), Fin: fin}
	} else {
		r.trailers = h.Regular()
		ev = HeadersEvent{Headers: r.trailers.Clone(), Fin: fin, Trailers: true}
	}
	r.mu.Unlock()

	r.headers.Emit(ev)
	if fin {
		r.complete()
	}
}

func (r *IncomingResponse) handleData(data []byte, fin bool) {
	if r.group.Terminated() {
		return
	}

	r.mu.Lock()
	if r.status == 0 {
		r.mu.Unlock()
		r.fail(errors.InvalidSequence("response headers", "data frame"))
		return
	}
	if !r.desc.IsStreamResponse() {
		r.body.Write(data)
	}
	r.mu.Unlock()

	r.data.Emit(DataEvent{Data: data, Fin: fin})
	if fin {
		r.complete()
	}
}

func (r *IncomingResponse) handleError(err error) {
	r.fail(err)
}

func (r *IncomingResponse) complete() {
	if !r.closed.Finish() {
		return
	}

	r.mu.Lock()
	res := &Response{Status: r.status, Headers: r.head, Trailers: r.trailers}
	if !r.desc.IsStreamResponse() {
		res.Body = append([]byte(nil), r.body.Bytes()...)
	}
	r.result = res
	r.mu.Unlock()

	r.logger.Debug("Response completed",
		logging.Int("status", res.Status),
		logging.Int("body_bytes", len(res.Body)),
		logging.Duration("duration", time.Since(r.start)))

	r.response.EmitFinal(res)
	r.finish(res.Status, nil)
}

func (r *IncomingResponse) fail(err error) {
	if !r.closed.Finish() {
		return
	}

	if e, ok := errors.AsError(err); ok && (e.Context() == nil || e.Context().RequestID == "") {
		ec := errors.Context{Timestamp: time.Now()}
		if e.Context() != nil {
			ec = *e.Context()
		}
		ec.RequestID = r.ID()
		ec.Method = r.desc.Method().String()
		ec.URL = r.desc.URL()
		ec.Component = "client"
		ec.Operation = "response"
		err = e.WithContext(&ec)
	}

	r.mu.Lock()
	r.err = err
	status := r.status
	r.mu.Unlock()

	r.logger.WithError(err).Warn("Request failed")

	r.errs.EmitFinal(err)
	r.finish(status, err)
}

func (r *IncomingResponse) finish(status int, err error) {
	close(r.done)
	if r.onFinish != nil {
		r.onFinish(status, err)
	}
}
