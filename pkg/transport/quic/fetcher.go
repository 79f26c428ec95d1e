package quic

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/quic-go/quic-go/http3"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// Fetcher issues requests over HTTP/3.
type Fetcher struct {
	cfg        Config
	logger     logging.Logger
	rt         *http3.Transport
	follow     *http.Client
	noRedirect *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	requests map[string]*requestStream
	closed   bool
}

var _ transport.Fetcher = (*Fetcher)(nil)

// NewFetcher creates a Fetcher. Connections are dialled lazily per authority.
func NewFetcher(cfg Config) *Fetcher {
	rt := &http3.Transport{
		TLSClientConfig: cfg.clientTLS(),
		QUICConfig:      cfg.quicConfig(),
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Fetcher{
		cfg:    cfg,
		logger: cfg.logger().Named("quic-fetcher"),
		rt:     rt,
		follow: &http.Client{Transport: rt},
		noRedirect: &http.Client{
			Transport: rt,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		ctx:      ctx,
		cancel:   cancel,
		requests: make(map[string]*requestStream),
	}
}

func (f *Fetcher) CreateRequest(desc *protocol.RequestDescriptor) (transport.RequestStream, error) {
	if desc == nil {
		return nil, errors.MissingParameter("descriptor")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, errors.TransportError(transportName, "create request", stderrors.New("fetcher closed"))
	}

	r := &requestStream{
		f:    f,
		id:   uuid.New().String(),
		desc: desc,
	}
	if desc.IsChunkedUpload() {
		r.upload = newChunkQueue()
	}
	f.requests[r.id] = r
	return r, nil
}

func (f *Fetcher) AppendChunkToUpload(requestID string, data []byte, fin bool) error {
	f.mu.Lock()
	r, ok := f.requests[requestID]
	f.mu.Unlock()

	switch {
	case !ok:
		return errors.StreamClosed("", 0, "append chunk").WithDetail("unknown request " + requestID)
	case r.upload == nil:
		return errors.NotChunkedUpload(requestID)
	}
	return r.upload.push(requestID, data, fin)
}

// Close cancels every in-flight request and closes the QUIC connections.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	if err := f.rt.Close(); err != nil {
		return errors.TransportError(transportName, "close", err)
	}
	return nil
}

func (f *Fetcher) forget(id string) {
	f.mu.Lock()
	delete(f.requests, id)
	f.mu.Unlock()
}

func (f *Fetcher) client(desc *protocol.RequestDescriptor) *http.Client {
	if desc.StopOnRedirect() {
		return f.noRedirect
	}
	return f.follow
}

type requestStream struct {
	f      *Fetcher
	id     string
	desc   *protocol.RequestDescriptor
	upload *chunkQueue

	mu        sync.Mutex
	onHeaders transport.HeadersCallback
	onData    transport.DataCallback
	onError   transport.ErrorCallback
	started   bool
}

func (r *requestStream) ID() string { return r.id }

func (r *requestStream) SetHeadersAvailableCallback(cb transport.HeadersCallback) {
	r.mu.Lock()
	r.onHeaders = cb
	r.mu.Unlock()
}

func (r *requestStream) SetDataAvailableCallback(cb transport.DataCallback) {
	r.mu.Lock()
	r.onData = cb
	r.mu.Unlock()
}

func (r *requestStream) SetErrorCallback(cb transport.ErrorCallback) {
	r.mu.Lock()
	r.onError = cb
	r.mu.Unlock()
}

// Start runs the exchange on its own goroutine; every callback of the request
// is delivered from that goroutine.
func (r *requestStream) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.InvalidSequence("unstarted request", "second start")
	}
	r.started = true

	go r.run()
	return nil
}

func (r *requestStream) run() {
	defer r.f.forget(r.id)

	ctx, cancel := context.WithTimeout(r.f.ctx, r.desc.Timeout())
	defer cancel()
	if r.upload != nil {
		defer r.upload.close()
	}

	resp, err := r.roundTrip(ctx)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	defer resp.Body.Close()

	head := responseHeaders(resp)
	noBody := resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0 || r.desc.Method() == protocol.MethodHead
	if noBody && len(resp.Trailer) == 0 {
		r.emitHeaders(head, true)
		return
	}
	r.emitHeaders(head, false)

	if noBody {
		r.emitHeaders(trailerHeaders(resp.Trailer), true)
		return
	}

	// Trailers are only populated once the body reached EOF.
	err = readFrames(resp.Body, func(chunk []byte, fin bool) {
		if !fin || len(resp.Trailer) == 0 {
			r.emitData(chunk, fin)
			return
		}
		if len(chunk) > 0 {
			r.emitData(chunk, false)
		}
		r.emitHeaders(trailerHeaders(resp.Trailer), true)
	})
	if err != nil {
		r.fail(ctx, err)
	}
}

// roundTrip sends the request, retrying replayable requests on 5xx responses
// and on network failures within the descriptor's budgets.
func (r *requestStream) roundTrip(ctx context.Context) (*http.Response, error) {
	replayable := r.upload == nil
	retries5xx, retriesNet := 0, 0
	logger := r.f.logger.WithFields(logging.String("request_id", r.id), logging.String("url", r.desc.URL()))

	var resp *http.Response
	op := func() error {
		req, err := r.newRequest(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		res, err := r.f.client(r.desc).Do(req)
		if err != nil {
			if ctx.Err() != nil || !replayable || retriesNet >= r.desc.MaxRetriesOnNetworkChange() {
				return backoff.Permanent(err)
			}
			retriesNet++
			logger.Warn("Retrying after network failure", logging.Int("attempt", retriesNet), logging.ErrorField(err))
			return err
		}

		if res.StatusCode >= http.StatusInternalServerError && replayable && retries5xx < r.desc.MaxRetriesOn5xx() {
			retries5xx++
			_, _ = io.Copy(io.Discard, res.Body)
			res.Body.Close()
			logger.Warn("Retrying after server error", logging.Int("attempt", retries5xx), logging.Int("status", res.StatusCode))
			return fmt.Errorf("server responded %d", res.StatusCode)
		}

		resp = res
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(r.f.cfg.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *requestStream) newRequest(ctx context.Context) (*http.Request, error) {
	u, err := url.Parse(r.desc.URL())
	if err != nil {
		return nil, errors.InvalidParameter("url", r.desc.URL(), "absolute URL")
	}
	// QUIC always runs over TLS.
	if u.Scheme == "http" {
		u.Scheme = "https"
	}

	var body io.Reader
	switch {
	case r.upload != nil:
		body = r.upload
	case r.desc.HasPayload():
		body = bytes.NewReader(r.desc.Payload())
	}

	req, err := http.NewRequestWithContext(ctx, r.desc.Method().String(), u.String(), body)
	if err != nil {
		return nil, errors.InvalidParameter("url", r.desc.URL(), "valid request target")
	}
	if r.upload != nil {
		req.ContentLength = -1
	}
	for name, value := range r.desc.Headers() {
		req.Header.Set(name, value)
	}
	return req, nil
}

// fail maps err onto the binding's taxonomy and delivers it.
func (r *requestStream) fail(ctx context.Context, err error) {
	var mapped error
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		mapped = errors.RequestTimeout(transportName, r.desc.URL(), r.desc.Timeout())
	case r.f.ctx.Err() != nil:
		mapped = errors.ConnectionLost(transportName, "fetcher closed")
	default:
		if e, ok := errors.AsError(err); ok {
			mapped = e
		} else {
			mapped = errors.ConnectionFailed(transportName, r.desc.Authority(), err)
		}
	}

	r.mu.Lock()
	cb := r.onError
	r.mu.Unlock()
	if cb != nil {
		cb(mapped)
	}
}

func (r *requestStream) emitHeaders(h protocol.Headers, fin bool) {
	r.mu.Lock()
	cb := r.onHeaders
	r.mu.Unlock()
	if cb != nil {
		cb(h, fin)
	}
}

func (r *requestStream) emitData(data []byte, fin bool) {
	r.mu.Lock()
	cb := r.onData
	r.mu.Unlock()
	if cb != nil {
		cb(data, fin)
	}
}

func responseHeaders(resp *http.Response) protocol.Headers {
	h := make(protocol.Headers, len(resp.Header)+1)
	for name, values := range resp.Header {
		h[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	h[protocol.PseudoStatus] = strconv.Itoa(resp.StatusCode)
	return h
}

func trailerHeaders(trailer http.Header) protocol.Headers {
	h := make(protocol.Headers, len(trailer))
	for name, values := range trailer {
		h[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return h
}
