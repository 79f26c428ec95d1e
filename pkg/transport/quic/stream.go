package quic

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	quicgo "github.com/quic-go/quic-go"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

const readChunkSize = 32 * 1024

// streamHandler adapts each HTTP/3 request on a session into a ServerStream.
// The handler goroutine delivers the request frames and then holds the stream
// open until the response is finished or the peer goes away.
func (e *Engine) streamHandler(s *session, logger logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := wireStreamID(r)
		if !ok {
			id = s.streamID()
		}
		st := &serverStream{
			sessionID: s.id,
			streamID:  id,
			w:         w,
			done:      make(chan struct{}),
		}
		st.flusher, _ = w.(http.Flusher)

		e.notifier.OnStreamCreated(s.id, st)
		if err := st.pump(r); err != nil {
			logger.Debug("Request body aborted",
				logging.Uint64("stream_id", st.streamID), logging.ErrorField(err))
			st.abort()
		}

		select {
		case <-st.done:
		case <-r.Context().Done():
			st.abort()
		}

		e.notifier.OnStreamClosed(s.id, st.streamID)
	})
}

// wireStreamID returns the QUIC stream id the request arrived on. The http3
// request body exposes it.
func wireStreamID(r *http.Request) (uint64, bool) {
	if b, ok := r.Body.(interface{ StreamID() quicgo.StreamID }); ok {
		return uint64(b.StreamID()), true
	}
	return 0, false
}

type serverStream struct {
	sessionID string
	streamID  uint64
	w         http.ResponseWriter
	flusher   http.Flusher
	done      chan struct{}

	mu          sync.Mutex
	onHeaders   transport.HeadersCallback
	onData      transport.DataCallback
	headersSent bool
	fin         bool
	aborted     bool
}

var _ transport.ServerStream = (*serverStream)(nil)

func (s *serverStream) SessionID() string { return s.sessionID }
func (s *serverStream) StreamID() uint64  { return s.streamID }

func (s *serverStream) SetHeadersAvailableCallback(cb transport.HeadersCallback) {
	s.mu.Lock()
	s.onHeaders = cb
	s.mu.Unlock()
}

func (s *serverStream) SetDataAvailableCallback(cb transport.DataCallback) {
	s.mu.Lock()
	s.onData = cb
	s.mu.Unlock()
}

// pump delivers the request head and body frames in order.
func (s *serverStream) pump(r *http.Request) error {
	headers := requestHeaders(r)
	noBody := r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0
	s.emitHeaders(headers, noBody)
	if noBody {
		return nil
	}

	return readFrames(r.Body, func(chunk []byte, fin bool) { s.emitData(chunk, fin) })
}

func requestHeaders(r *http.Request) protocol.Headers {
	h := make(protocol.Headers, len(r.Header)+4)
	for name, values := range r.Header {
		h[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	h[protocol.PseudoMethod] = r.Method
	h[protocol.PseudoScheme] = "https"
	h[protocol.PseudoAuthority] = r.Host
	h[protocol.PseudoPath] = r.URL.RequestURI()
	return h
}

// readFrames reads body until EOF, delivering every chunk. The last chunk, or
// an empty one when the body ends on a chunk boundary, carries fin.
func readFrames(body io.Reader, deliver func([]byte, bool)) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		switch {
		case err == io.EOF:
			if n > 0 {
				deliver(append([]byte(nil), buf[:n]...), true)
			} else {
				deliver(nil, true)
			}
			return nil
		case err != nil:
			return err
		case n > 0:
			deliver(append([]byte(nil), buf[:n]...), false)
		}
	}
}

func (s *serverStream) emitHeaders(h protocol.Headers, fin bool) {
	s.mu.Lock()
	cb := s.onHeaders
	s.mu.Unlock()
	if cb != nil {
		cb(h, fin)
	}
}

func (s *serverStream) emitData(data []byte, fin bool) {
	s.mu.Lock()
	cb := s.onData
	s.mu.Unlock()
	if cb != nil {
		cb(data, fin)
	}
}

func (s *serverStream) WriteHeaders(headers protocol.Headers, fin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if s.headersSent {
		s.setTrailersLocked(headers)
		s.finishLocked()
		return nil
	}

	status := http.StatusOK
	if raw := headers.Get(protocol.PseudoStatus); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return errors.InvalidStatus(raw)
		}
		status = code
	}

	dst := s.w.Header()
	for name, value := range headers.Regular() {
		dst.Set(name, value)
	}
	s.w.WriteHeader(status)
	s.headersSent = true
	s.flushLocked()

	if fin {
		s.finishLocked()
	}
	return nil
}

func (s *serverStream) WriteData(data []byte, fin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	s.headersSent = true

	if len(data) > 0 {
		if _, err := s.w.Write(data); err != nil {
			s.abortLocked()
			return errors.TransportError(transportName, "write data", err)
		}
	}
	s.flushLocked()

	if fin {
		s.finishLocked()
	}
	return nil
}

func (s *serverStream) WriteTrailers(trailers protocol.Headers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if !s.headersSent {
		s.w.WriteHeader(http.StatusOK)
		s.headersSent = true
	}
	s.setTrailersLocked(trailers)
	s.finishLocked()
	return nil
}

func (s *serverStream) setTrailersLocked(trailers protocol.Headers) {
	dst := s.w.Header()
	for name, value := range trailers.Regular() {
		dst.Set(http.TrailerPrefix+name, value)
	}
}

func (s *serverStream) writableLocked() error {
	switch {
	case s.aborted:
		return errors.StreamClosed(s.sessionID, s.streamID, "write")
	case s.fin:
		return errors.WriteAfterFin(s.sessionID + "/" + strconv.FormatUint(s.streamID, 10))
	}
	return nil
}

func (s *serverStream) flushLocked() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *serverStream) finishLocked() {
	if !s.fin {
		s.fin = true
		close(s.done)
	}
}

func (s *serverStream) abort() {
	s.mu.Lock()
	s.abortLocked()
	s.mu.Unlock()
}

func (s *serverStream) abortLocked() {
	s.aborted = true
	if !s.fin {
		s.fin = true
		close(s.done)
	}
}

