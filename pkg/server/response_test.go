package server

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
	"github.com/ajitpratap0/quic-http-go/pkg/transport/transporttest"
)

func TestOutgoingResponseWriteHeaders(t *testing.T) {
	stream := transporttest.NewServerStream("s1", 0)
	res := newOutgoingResponse(stream)

	headers := protocol.Headers{"content-type": "text/plain"}
	if err := res.WriteHeaders(201, headers, false); err != nil {
		t.Fatalf("WriteHeaders failed: %v", err)
	}
	if headers.Has(":status") {
		t.Error("caller's headers were modified")
	}
	if res.State() != StateHeadersSent || res.Status() != 201 {
		t.Errorf("unexpected state %s status %d", res.State(), res.Status())
	}

	// A second head is ignored.
	if err := res.WriteHeaders(500, nil, true); err != nil {
		t.Fatalf("second WriteHeaders failed: %v", err)
	}

	writes := stream.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(writes))
	}
	if writes[0].Headers.Get(":status") != "201" || writes[0].Headers.Get("content-type") != "text/plain" {
		t.Errorf("unexpected head %v", writes[0].Headers)
	}
}

func TestOutgoingResponseNilHeaders(t *testing.T) {
	stream := transporttest.NewServerStream("s1", 0)
	res := newOutgoingResponse(stream)

	if err := res.WriteHeaders(404, nil, true); err != nil {
		t.Fatalf("WriteHeaders failed: %v", err)
	}
	if res.State() != StateClosed {
		t.Errorf("expected closed after fin, got %s", res.State())
	}
	writes := stream.Writes()
	if len(writes) != 1 || len(writes[0].Headers) != 1 || !writes[0].Fin {
		t.Fatalf("unexpected writes %+v", writes)
	}
}

func TestOutgoingResponseImplicitHead(t *testing.T) {
	stream := transporttest.NewServerStream("s1", 0)
	res := newOutgoingResponse(stream)

	if _, err := fmt.Fprint(res, "hello"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if res.State() != StateStreaming {
		t.Errorf("expected streaming, got %s", res.State())
	}
	if err := res.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	writes := stream.Writes()
	if len(writes) != 3 {
		t.Fatalf("expected head, chunk and fin, got %+v", writes)
	}
	if writes[0].Kind != "headers" || writes[0].Headers.Get(":status") != "200" || writes[0].Fin {
		t.Errorf("unexpected implicit head %+v", writes[0])
	}
	if string(writes[1].Data) != "hello" || writes[1].Fin {
		t.Errorf("unexpected chunk %+v", writes[1])
	}
	if len(writes[2].Data) != 0 || !writes[2].Fin {
		t.Errorf("unexpected final chunk %+v", writes[2])
	}
	if res.State() != StateClosed || res.BytesWritten() != 5 {
		t.Errorf("unexpected state %s bytes %d", res.State(), res.BytesWritten())
	}
}

func TestOutgoingResponseTrailers(t *testing.T) {
	stream := transporttest.NewServerStream("s1", 0)
	res := newOutgoingResponse(stream)

	if err := res.WriteData([]byte("body"), false); err != nil {
		t.Fatalf("WriteData failed: %v", err)
	}
	if err := res.WriteTrailers(protocol.Headers{"grpc-status": "0"}); err != nil {
		t.Fatalf("WriteTrailers failed: %v", err)
	}
	if res.State() != StateClosed {
		t.Errorf("expected closed after trailers, got %s", res.State())
	}

	writes := stream.Writes()
	last := writes[len(writes)-1]
	if last.Kind != "trailers" || last.Headers.Get("grpc-status") != "0" || !last.Fin {
		t.Errorf("unexpected trailers write %+v", last)
	}
}

func TestOutgoingResponseTransportRejection(t *testing.T) {
	stream := transporttest.NewServerStream("s1", 0)
	res := newOutgoingResponse(stream)
	rejected := stderrors.New("stream reset")
	stream.FailWrites(rejected)

	if err := res.WriteData([]byte("x"), true); !stderrors.Is(err, rejected) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if res.HeadersSent() {
		t.Error("failed head must not count as sent")
	}
	if _, err := res.Write([]byte("x")); err == nil {
		t.Error("io.Writer must report the failure")
	}
}
