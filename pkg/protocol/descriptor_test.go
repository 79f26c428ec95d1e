package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

func TestNormalizeBareURL(t *testing.T) {
	d, err := Normalize(URL("https://example.com/a?b=c"))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/a?b=c", d.URL())
	assert.Equal(t, MethodGet, d.Method())
	assert.Equal(t, "https", d.Scheme())
	assert.Equal(t, "example.com", d.Authority())
	assert.Equal(t, "/a?b=c", d.Path())
	assert.Nil(t, d.Payload())
	assert.False(t, d.IsChunkedUpload())
	assert.False(t, d.IsStreamResponse())
	assert.False(t, d.StopOnRedirect())
	assert.Zero(t, d.MaxRetriesOn5xx())
	assert.Zero(t, d.MaxRetriesOnNetworkChange())
	assert.Equal(t, DefaultTimeout, d.Timeout())
	assert.Equal(t, int64(60000), d.TimeoutMillis())
	assert.Empty(t, d.Headers())
}

func TestNormalizeConfigRecord(t *testing.T) {
	d, err := Normalize(&RequestConfig{
		URL:                       "http://h:6121",
		Method:                    "post",
		Payload:                   []byte("hello"),
		IsStreamResponse:          true,
		StopOnRedirect:            true,
		MaxRetriesOn5xx:           2,
		MaxRetriesOnNetworkChange: 1,
		Timeout:                   1500 * time.Millisecond,
		Headers:                   map[string]string{"X-Trace": "abc"},
	})
	require.NoError(t, err)

	assert.Equal(t, MethodPost, d.Method())
	assert.Equal(t, []byte("hello"), d.Payload())
	assert.Equal(t, "/", d.Path())
	assert.True(t, d.IsStreamResponse())
	assert.True(t, d.StopOnRedirect())
	assert.Equal(t, 2, d.MaxRetriesOn5xx())
	assert.Equal(t, 1, d.MaxRetriesOnNetworkChange())
	assert.Equal(t, int64(1500), d.TimeoutMillis())
	assert.Equal(t, "abc", d.Headers().Get("x-trace"))
}

func TestNormalizeFailures(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		code int
	}{
		{name: "nil input", in: nil, code: errors.CodeMissingParameter},
		{name: "nil record", in: (*RequestConfig)(nil), code: errors.CodeMissingParameter},
		{name: "empty url", in: URL(""), code: errors.CodeMissingParameter},
		{name: "relative url", in: URL("/only/a/path"), code: errors.CodeInvalidParameter},
		{name: "unknown method", in: RequestConfig{URL: "http://h/", Method: "TRACE"}, code: errors.CodeInvalidParameter},
		{
			name: "payload and chunked",
			in:   RequestConfig{URL: "http://h/", Method: "POST", Payload: []byte("x"), IsChunkedUpload: true},
			code: errors.CodeConflictingParameters,
		},
		{name: "post without body", in: RequestConfig{URL: "http://h/", Method: "POST"}, code: errors.CodeConfigError},
		{name: "put without body", in: RequestConfig{URL: "http://h/", Method: "PUT"}, code: errors.CodeConfigError},
		{name: "negative 5xx retries", in: RequestConfig{URL: "http://h/", MaxRetriesOn5xx: -1}, code: errors.CodeInvalidParameter},
		{
			name: "negative network retries",
			in:   RequestConfig{URL: "http://h/", MaxRetriesOnNetworkChange: -3},
			code: errors.CodeInvalidParameter,
		},
		{name: "negative timeout", in: RequestConfig{URL: "http://h/", Timeout: -time.Second}, code: errors.CodeInvalidParameter},
		{
			name: "pseudo header",
			in:   RequestConfig{URL: "http://h/", Headers: map[string]string{":path": "/x"}},
			code: errors.CodeInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Normalize(tt.in)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.True(t, errors.IsConfigError(err), "want config error, got %v", err)
			assert.True(t, errors.IsCode(err, tt.code), "want code %d, got %v", tt.code, err)
		})
	}
}

func TestPayloadAndChunkedAlwaysConflict(t *testing.T) {
	for _, m := range Methods() {
		_, err := Normalize(RequestConfig{URL: "http://h/", Method: string(m), Payload: []byte("p"), IsChunkedUpload: true})
		assert.True(t, errors.IsConfigError(err), "method %s", m)
	}
}

func TestNormalizeAsFixesMethod(t *testing.T) {
	_, err := NormalizeAs(URL("http://h/"), MethodPost)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	d, err := NormalizeAs(RequestConfig{URL: "http://h/", Method: "GET", IsChunkedUpload: true}, MethodPut)
	require.NoError(t, err)
	assert.Equal(t, MethodPut, d.Method())
	assert.True(t, d.IsChunkedUpload())

	d, err = NormalizeAs(URL("http://h/"), MethodDelete)
	require.NoError(t, err)
	assert.Equal(t, MethodDelete, d.Method())

	_, err = NormalizeAs(URL("http://h/"), Method("BREW"))
	assert.True(t, errors.IsConfigError(err))
}

func TestDescriptorIsImmutable(t *testing.T) {
	payload := []byte("abc")
	cfg := &RequestConfig{URL: "http://h/", Method: "PATCH", Payload: payload, Headers: map[string]string{"a": "1"}}
	d, err := Normalize(cfg)
	require.NoError(t, err)

	payload[0] = 'z'
	cfg.Headers["a"] = "2"
	assert.Equal(t, []byte("abc"), d.Payload())
	assert.Equal(t, "1", d.Headers().Get("a"))

	d.Payload()[0] = 'y'
	d.Headers().Set("a", "3")
	assert.Equal(t, []byte("abc"), d.Payload())
	assert.Equal(t, "1", d.Headers().Get("a"))
}

func TestWithHeaders(t *testing.T) {
	d, err := Normalize(RequestConfig{URL: "http://h/", Headers: map[string]string{"a": "1"}})
	require.NoError(t, err)

	d2 := d.WithHeaders(Headers{"traceparent": "00-abc", ":path": "/evil"})

	assert.Equal(t, "00-abc", d2.Headers().Get("traceparent"))
	assert.Equal(t, "1", d2.Headers().Get("a"))
	assert.False(t, d.Headers().Has("traceparent"))
	assert.Equal(t, "/", d2.HeaderBlock().Get(PseudoPath))
}

func TestHeaderBlock(t *testing.T) {
	d, err := Normalize(RequestConfig{URL: "https://h:443/x", Method: "POST", Payload: []byte("12345")})
	require.NoError(t, err)

	h := d.HeaderBlock()
	head, err := ParseRequestHead(h)
	require.NoError(t, err)
	assert.Equal(t, "POST", head.Method)
	assert.Equal(t, "https", head.Scheme)
	assert.Equal(t, "h:443", head.Host)
	assert.Equal(t, "/x", head.URL)
	assert.Equal(t, "5", h.Get("content-length"))
}
