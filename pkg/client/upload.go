package client

import (
	"io"
	"sync"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/transport"
)

// UploadWriter streams the body of a chunked upload. Each Write is forwarded
// to the fetcher exactly once, in call order; nothing is buffered.
type UploadWriter struct {
	fetcher   transport.Fetcher
	requestID string

	mu      sync.Mutex
	finSent bool
}

func newUploadWriter(fetcher transport.Fetcher, requestID string) *UploadWriter {
	return &UploadWriter{fetcher: fetcher, requestID: requestID}
}

// Write forwards chunk. Once a chunk with fin has been accepted every further
// Write fails with a stream state error. A zero-length chunk with fin set
// closes the upload.
func (w *UploadWriter) Write(chunk []byte, fin bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finSent {
		return errors.WriteAfterFin(w.requestID)
	}

	if err := w.fetcher.AppendChunkToUpload(w.requestID, chunk, fin); err != nil {
		if errors.IsTransportError(err) {
			return err
		}
		return errors.TransportError("fetcher", "append chunk", err)
	}

	if fin {
		w.finSent = true
	}
	return nil
}

// FinSent reports whether the final chunk was accepted.
func (w *UploadWriter) FinSent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finSent
}

// Stream adapts w to an io.WriteCloser. Close sends an empty final chunk.
func (w *UploadWriter) Stream() io.WriteCloser {
	return uploadStream{w}
}

type uploadStream struct {
	w *UploadWriter
}

func (s uploadStream) Write(p []byte) (int, error) {
	if err := s.w.Write(p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s uploadStream) Close() error {
	return s.w.Write(nil, true)
}
