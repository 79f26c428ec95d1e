package observability

import (
	"sync"

	"go.opentelemetry.io/otel/propagation"

	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// HeadersCarrier adapts protocol.Headers to a propagation.TextMapCarrier.
type HeadersCarrier protocol.Headers

var _ propagation.TextMapCarrier = HeadersCarrier(nil)

func (c HeadersCarrier) Get(key string) string {
	return protocol.Headers(c).Get(key)
}

func (c HeadersCarrier) Set(key, value string) {
	protocol.Headers(c).Set(key, value)
}

func (c HeadersCarrier) Keys() []string {
	return protocol.Headers(c).Names()
}

// InstrumentFetcher wraps a Fetcher so that upload and download bytes and
// transport failures are recorded in metrics.
func InstrumentFetcher(next transport.Fetcher, metrics MetricsProvider) transport.Fetcher {
	if metrics == nil {
		return next
	}
	return &instrumentedFetcher{next: next, metrics: metrics}
}

type instrumentedFetcher struct {
	next    transport.Fetcher
	metrics MetricsProvider
}

func (f *instrumentedFetcher) CreateRequest(desc *protocol.RequestDescriptor) (transport.RequestStream, error) {
	rs, err := f.next.CreateRequest(desc)
	if err != nil {
		f.metrics.RecordError("fetcher", err)
		return nil, err
	}
	return &instrumentedRequest{RequestStream: rs, desc: desc, metrics: f.metrics}, nil
}

func (f *instrumentedFetcher) AppendChunkToUpload(requestID string, data []byte, fin bool) error {
	if err := f.next.AppendChunkToUpload(requestID, data, fin); err != nil {
		f.metrics.RecordError("fetcher", err)
		return err
	}
	f.metrics.RecordBytes("sent", len(data))
	return nil
}

func (f *instrumentedFetcher) Close() error {
	return f.next.Close()
}

type instrumentedRequest struct {
	transport.RequestStream
	desc    *protocol.RequestDescriptor
	metrics MetricsProvider
}

func (r *instrumentedRequest) SetDataAvailableCallback(cb transport.DataCallback) {
	r.RequestStream.SetDataAvailableCallback(func(data []byte, fin bool) {
		r.metrics.RecordBytes("received", len(data))
		if cb != nil {
			cb(data, fin)
		}
	})
}

func (r *instrumentedRequest) SetErrorCallback(cb transport.ErrorCallback) {
	r.RequestStream.SetErrorCallback(func(err error) {
		r.metrics.RecordError("fetcher", err)
		if cb != nil {
			cb(err)
		}
	})
}

func (r *instrumentedRequest) Start() error {
	if err := r.RequestStream.Start(); err != nil {
		r.metrics.RecordError("fetcher", err)
		return err
	}
	r.metrics.RecordBytes("sent", len(r.desc.Payload()))
	return nil
}

// InstrumentNotifier wraps a Notifier so that session and stream gauges and
// body byte counts are maintained.
func InstrumentNotifier(next transport.Notifier, metrics MetricsProvider) transport.Notifier {
	if metrics == nil {
		return next
	}
	return &instrumentedNotifier{next: next, metrics: metrics}
}

type instrumentedNotifier struct {
	next    transport.Notifier
	metrics MetricsProvider

	mu      sync.Mutex
	streams map[streamKey]struct{}
}

type streamKey struct {
	session string
	stream  uint64
}

func (n *instrumentedNotifier) OnSessionCreated(sessionID string) {
	n.metrics.RecordSessionEvent("created")
	n.metrics.RecordActiveSessions(1)
	n.next.OnSessionCreated(sessionID)
}

func (n *instrumentedNotifier) OnSessionClosed(sessionID string, code uint64, detail string) {
	n.metrics.RecordSessionEvent("closed")
	n.metrics.RecordActiveSessions(-1)
	n.next.OnSessionClosed(sessionID, code, detail)
}

func (n *instrumentedNotifier) OnStreamCreated(sessionID string, stream transport.ServerStream) {
	key := streamKey{session: sessionID, stream: stream.StreamID()}
	n.mu.Lock()
	if n.streams == nil {
		n.streams = make(map[streamKey]struct{})
	}
	_, dup := n.streams[key]
	n.streams[key] = struct{}{}
	n.mu.Unlock()

	if !dup {
		n.metrics.RecordActiveStreams(1)
	}
	n.next.OnStreamCreated(sessionID, &instrumentedStream{ServerStream: stream, metrics: n.metrics})
}

func (n *instrumentedNotifier) OnStreamClosed(sessionID string, streamID uint64) {
	key := streamKey{session: sessionID, stream: streamID}
	n.mu.Lock()
	_, ok := n.streams[key]
	delete(n.streams, key)
	n.mu.Unlock()

	if ok {
		n.metrics.RecordActiveStreams(-1)
	}
	n.next.OnStreamClosed(sessionID, streamID)
}

type instrumentedStream struct {
	transport.ServerStream
	metrics MetricsProvider
}

func (s *instrumentedStream) SetDataAvailableCallback(cb transport.DataCallback) {
	s.ServerStream.SetDataAvailableCallback(func(data []byte, fin bool) {
		s.metrics.RecordBytes("received", len(data))
		if cb != nil {
			cb(data, fin)
		}
	})
}

func (s *instrumentedStream) WriteData(data []byte, fin bool) error {
	if err := s.ServerStream.WriteData(data, fin); err != nil {
		s.metrics.RecordError("stream", err)
		return err
	}
	s.metrics.RecordBytes("sent", len(data))
	return nil
}
