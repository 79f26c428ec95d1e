package client

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
	"github.com/ajitpratap0/quic-http-go/pkg/transport/transporttest"
)

func TestUploadWriterForwardsEachChunkOnce(t *testing.T) {
	f := &transporttest.Fetcher{}
	w := newUploadWriter(f, "r1")

	if err := w.Write([]byte("a"), false); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := w.Write(nil, true); err != nil {
		t.Fatalf("final write failed: %v", err)
	}

	chunks := f.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 forwarded chunks, got %d", len(chunks))
	}
	if string(chunks[0].Data) != "a" || chunks[0].Fin {
		t.Errorf("unexpected first chunk %+v", chunks[0])
	}
	if len(chunks[1].Data) != 0 || !chunks[1].Fin || chunks[1].RequestID != "r1" {
		t.Errorf("unexpected final chunk %+v", chunks[1])
	}
	if !w.FinSent() {
		t.Error("expected fin to be recorded")
	}
}

func TestUploadWriterRejectsWriteAfterFin(t *testing.T) {
	f := &transporttest.Fetcher{}
	w := newUploadWriter(f, "r1")

	if err := w.Write([]byte("last"), true); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	err := w.Write([]byte("extra"), false)
	if !errors.IsStreamStateError(err) || !errors.IsCode(err, errors.CodeWriteAfterFin) {
		t.Fatalf("expected WriteAfterFin, got %v", err)
	}
	if n := len(f.Chunks()); n != 1 {
		t.Errorf("rejected write reached the transport: %d chunks", n)
	}
}

func TestUploadWriterTransportFailureKeepsFin(t *testing.T) {
	f := &transporttest.Fetcher{AppendErr: stderrors.New("queue gone")}
	w := newUploadWriter(f, "r1")

	err := w.Write(nil, true)
	if !errors.IsTransportError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if w.FinSent() {
		t.Fatal("failed write must not consume fin")
	}

	f.AppendErr = nil
	if err := w.Write(nil, true); err != nil {
		t.Fatalf("retry after failure failed: %v", err)
	}
}

func TestUploadWriterKeepsTransportErrors(t *testing.T) {
	lost := errors.ConnectionLost("test", "gone")
	w := newUploadWriter(&transporttest.Fetcher{AppendErr: lost}, "r1")

	err := w.Write([]byte("x"), false)
	if !errors.IsCode(err, errors.CodeConnectionLost) {
		t.Fatalf("expected ConnectionLost to pass through, got %v", err)
	}
}

func TestUploadStream(t *testing.T) {
	f := &transporttest.Fetcher{}
	s := newUploadWriter(f, "r1").Stream()

	if _, err := io.WriteString(s, "hello"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(); !errors.IsCode(err, errors.CodeWriteAfterFin) {
		t.Fatalf("second close should fail with WriteAfterFin, got %v", err)
	}

	chunks := f.Chunks()
	if len(chunks) != 2 || !chunks[1].Fin {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}
