package server

import (
	"strconv"
	"sync"

	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// ResponseState is the write state of an OutgoingResponse.
type ResponseState int

const (
	// StateIdle means nothing has been written.
	StateIdle ResponseState = iota
	// StateHeadersSent means the response head was written without fin.
	StateHeadersSent
	// StateStreaming means body data was written without fin.
	StateStreaming
	// StateClosed means a frame carrying fin was written.
	StateClosed
)

func (s ResponseState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeadersSent:
		return "headers-sent"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultStatus is sent when data is written before any headers.
const DefaultStatus = 200

// OutgoingResponse writes the response of one stream. Headers always precede
// data: writing data first sends a DefaultStatus head.
type OutgoingResponse struct {
	stream transport.ServerStream

	mu      sync.Mutex
	state   ResponseState
	status  int
	written int64
}

func newOutgoingResponse(stream transport.ServerStream) *OutgoingResponse {
	return &OutgoingResponse{stream: stream}
}

// WriteHeaders sends the response head with status. It does nothing once
// headers were sent. headers is copied; nil means none.
func (w *OutgoingResponse) WriteHeaders(status int, headers protocol.Headers, fin bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeHeadersLocked(status, headers, fin)
}

func (w *OutgoingResponse) writeHeadersLocked(status int, headers protocol.Headers, fin bool) error {
	if w.state != StateIdle {
		return nil
	}

	h := headers.Clone()
	h.Set(protocol.PseudoStatus, strconv.Itoa(status))

	if err := w.stream.WriteHeaders(h, fin); err != nil {
		return err
	}
	w.status = status
	w.state = StateHeadersSent
	if fin {
		w.state = StateClosed
	}
	return nil
}

// WriteData sends a body chunk, preceded by a DefaultStatus head when no
// headers were sent yet.
func (w *OutgoingResponse) WriteData(data []byte, fin bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateIdle {
		if err := w.writeHeadersLocked(DefaultStatus, nil, false); err != nil {
			return err
		}
	}

	if err := w.stream.WriteData(data, fin); err != nil {
		return err
	}
	w.written += int64(len(data))
	w.state = StateStreaming
	if fin {
		w.state = StateClosed
	}
	return nil
}

// WriteTrailers sends trailers verbatim. Trailers finish the response.
func (w *OutgoingResponse) WriteTrailers(trailers protocol.Headers) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.stream.WriteTrailers(trailers); err != nil {
		return err
	}
	w.state = StateClosed
	return nil
}

// Write implements io.Writer as a body chunk without fin.
func (w *OutgoingResponse) Write(p []byte) (int, error) {
	if err := w.WriteData(p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// End finishes the response with an empty final chunk.
func (w *OutgoingResponse) End() error {
	return w.WriteData(nil, true)
}

// HeadersSent reports whether the response head was written.
func (w *OutgoingResponse) HeadersSent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state != StateIdle
}

// State returns the current write state.
func (w *OutgoingResponse) State() ResponseState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns the status that was sent, or 0.
func (w *OutgoingResponse) Status() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// BytesWritten returns the number of body bytes forwarded.
func (w *OutgoingResponse) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}
