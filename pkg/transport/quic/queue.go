package quic

import (
	"io"
	"sync"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

// chunkQueue is the body of a chunked upload. push never blocks; Read blocks
// until a chunk arrives or the upload is finished.
type chunkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	fin    bool
	closed bool
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *chunkQueue) push(requestID string, data []byte, fin bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.fin:
		return errors.WriteAfterFin(requestID)
	case q.closed:
		return errors.StreamClosed("", 0, "append chunk").WithDetail("request " + requestID + " finished")
	}

	if len(data) > 0 {
		q.chunks = append(q.chunks, append([]byte(nil), data...))
	}
	if fin {
		q.fin = true
	}
	q.cond.Broadcast()
	return nil
}

func (q *chunkQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.chunks) == 0 && !q.fin && !q.closed {
		q.cond.Wait()
	}

	if len(q.chunks) == 0 {
		if q.closed && !q.fin {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, io.EOF
	}

	n := copy(p, q.chunks[0])
	if n == len(q.chunks[0]) {
		q.chunks = q.chunks[1:]
	} else {
		q.chunks[0] = q.chunks[0][n:]
	}
	return n, nil
}

// close releases a blocked reader. Chunks pushed afterwards are rejected.
func (q *chunkQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
