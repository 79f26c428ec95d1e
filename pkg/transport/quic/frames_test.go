package quic

import (
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quic-http-go/pkg/protocol"
)

type frame struct {
	data string
	fin  bool
}

func collect(t *testing.T, r io.Reader) []frame {
	t.Helper()
	var frames []frame
	err := readFrames(r, func(b []byte, fin bool) {
		frames = append(frames, frame{data: string(b), fin: fin})
	})
	require.NoError(t, err)
	return frames
}

func TestReadFrames_EmptyBodyDeliversFin(t *testing.T) {
	frames := collect(t, strings.NewReader(""))
	assert.Equal(t, []frame{{data: "", fin: true}}, frames)
}

func TestReadFrames_FinOnLastChunk(t *testing.T) {
	// DataErrReader returns the final bytes together with io.EOF.
	frames := collect(t, iotest.DataErrReader(strings.NewReader("abc")))
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	assert.True(t, last.fin)

	var body strings.Builder
	for i, f := range frames {
		body.WriteString(f.data)
		if i < len(frames)-1 {
			assert.False(t, f.fin)
		}
	}
	assert.Equal(t, "abc", body.String())
}

func TestReadFrames_PropagatesError(t *testing.T) {
	boom := stderrors.New("boom")
	var got []frame
	err := readFrames(iotest.ErrReader(boom), func(b []byte, fin bool) {
		got = append(got, frame{data: string(b), fin: fin})
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		name       string
		cause      error
		wantCode   uint64
		wantDetail string
	}{
		{name: "nil", cause: nil, wantCode: 0, wantDetail: ""},
		{
			name:       "application close",
			cause:      &quicgo.ApplicationError{ErrorCode: 0x100, ErrorMessage: "bye"},
			wantCode:   0x100,
			wantDetail: "bye",
		},
		{name: "idle timeout", cause: &quicgo.IdleTimeoutError{}, wantCode: 0, wantDetail: "idle timeout"},
		{name: "other", cause: stderrors.New("reset"), wantCode: 0, wantDetail: "reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, detail := closeReason(tt.cause)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantDetail, detail)
		})
	}
}

func TestResponseHeaders(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusCreated,
		Header: http.Header{
			"Content-Type": {"text/plain"},
			"X-Multi":      {"a", "b"},
		},
	}

	h := responseHeaders(resp)
	assert.Equal(t, "201", h.Get(protocol.PseudoStatus))
	assert.Equal(t, "text/plain", h.Get("content-type"))
	assert.Equal(t, "a, b", h.Get("x-multi"))
}

func TestTrailerHeaders(t *testing.T) {
	h := trailerHeaders(http.Header{"Grpc-Status": {"0"}})
	assert.Equal(t, protocol.Headers{"grpc-status": "0"}, h)
}

type streamBody struct {
	io.Reader
	id quicgo.StreamID
}

func (b streamBody) Close() error               { return nil }
func (b streamBody) StreamID() quicgo.StreamID { return b.id }

func TestWireStreamID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	r.Body = streamBody{Reader: strings.NewReader(""), id: 8}

	id, ok := wireStreamID(r)
	require.True(t, ok)
	assert.Equal(t, uint64(8), id)

	r.Body = io.NopCloser(strings.NewReader(""))
	_, ok = wireStreamID(r)
	assert.False(t, ok)
}

func TestRequestHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "https://example.com:4433/upload?x=1", nil)
	r.Header.Set("X-Trace", "t1")

	h := requestHeaders(r)
	assert.Equal(t, "POST", h.Get(protocol.PseudoMethod))
	assert.Equal(t, "https", h.Get(protocol.PseudoScheme))
	assert.Equal(t, "example.com:4433", h.Get(protocol.PseudoAuthority))
	assert.Equal(t, "/upload?x=1", h.Get(protocol.PseudoPath))
	assert.Equal(t, "t1", h.Get("x-trace"))
}

func TestNewBackOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.InitialInterval = 10 * time.Millisecond
	cfg.Retry.MaxInterval = 20 * time.Millisecond

	b := cfg.newBackOff()
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		assert.Greater(t, d, time.Duration(0))
		// Randomisation may stretch the interval by up to half.
		assert.LessOrEqual(t, d, 30*time.Millisecond)
	}
}

func TestConfig_ClientTLS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InsecureSkipVerify = true

	tlsConf := cfg.clientTLS()
	assert.True(t, tlsConf.InsecureSkipVerify)
	assert.Contains(t, tlsConf.NextProtos, "h3")
}
