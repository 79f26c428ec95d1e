// Package transport defines the collaborator contract between the HTTP binding
// and a multiplexed-stream transport.
//
// The binding never touches sockets. A server-side Engine accepts sessions and
// streams and reports them to a Notifier; each ServerStream delivers the
// request's header and data frames through callbacks and accepts the response
// through WriteHeaders, WriteData and WriteTrailers. On the client side a
// Fetcher creates RequestStreams from validated descriptors and accepts
// chunked upload bodies through AppendChunkToUpload.
//
// Two implementations exist: Loopback, an in-memory transport that runs every
// callback on a single Loop goroutine, and the QUIC adapter in the quic
// subpackage.
//
// Contract:
//   - callbacks for one stream are serialised and never run concurrently;
//   - a frame with fin set is the last frame of its direction;
//   - trailers are delivered as a header frame with fin set;
//   - write methods never block on the network and reject writes after fin.
package transport

import (
	"github.com/ajitpratap0/quic-http-go/pkg/logging"
	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
)

// HeadersCallback receives a header frame and its fin flag.
type HeadersCallback func(headers protocol.Headers, fin bool)

// DataCallback receives a body chunk and its fin flag.
type DataCallback func(data []byte, fin bool)

// ErrorCallback receives a terminal stream failure.
type ErrorCallback func(err error)

// InboundStream delivers the frames of one direction of a stream.
type InboundStream interface {
	SetHeadersAvailableCallback(cb HeadersCallback)
	SetDataAvailableCallback(cb DataCallback)
}

// ServerStream is one request stream accepted by an Engine.
type ServerStream interface {
	InboundStream

	SessionID() string
	StreamID() uint64

	// WriteHeaders sends a response header frame.
	WriteHeaders(headers protocol.Headers, fin bool) error
	// WriteData sends a response body chunk.
	WriteData(data []byte, fin bool) error
	// WriteTrailers sends trailers and finishes the response.
	WriteTrailers(trailers protocol.Headers) error
}

// RequestStream is one outbound request created by a Fetcher. Callbacks must
// be installed before Start.
type RequestStream interface {
	InboundStream

	// ID identifies the request for AppendChunkToUpload.
	ID() string
	SetErrorCallback(cb ErrorCallback)
	// Start sends the request head and, when present, the fixed payload.
	Start() error
}

// Fetcher issues client requests.
type Fetcher interface {
	CreateRequest(desc *protocol.RequestDescriptor) (RequestStream, error)
	// AppendChunkToUpload queues one chunk of a chunked upload body.
	AppendChunkToUpload(requestID string, data []byte, fin bool) error
	Close() error
}

// Notifier receives session and stream lifecycle notifications from an Engine.
type Notifier interface {
	OnSessionCreated(sessionID string)
	OnSessionClosed(sessionID string, code uint64, detail string)
	OnStreamCreated(sessionID string, stream ServerStream)
	OnStreamClosed(sessionID string, streamID uint64)
}

// Engine accepts sessions on behalf of a server.
type Engine interface {
	// Listen binds synchronously and serves in the background.
	Listen(bindAddress string, port int) error
	// Addr reports the bound address, or "" before Listen.
	Addr() string
	Shutdown() error
}

// EngineConfig is handed to an EngineFactory.
type EngineConfig struct {
	CertPath string
	KeyPath  string
	Notifier Notifier
	Logger   logging.Logger
}

// EngineFactory builds an Engine for a server.
type EngineFactory func(cfg EngineConfig) (Engine, error)
