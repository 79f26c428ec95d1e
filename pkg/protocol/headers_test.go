package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

func TestParseRequestHead(t *testing.T) {
	head, err := ParseRequestHead(Headers{
		":method":    "GET",
		":scheme":    "http",
		":authority": "h",
		":path":      "/",
		"user-agent": "test",
	})
	require.NoError(t, err)

	assert.Equal(t, "GET", head.Method)
	assert.Equal(t, "http", head.Scheme)
	assert.Equal(t, "h", head.Host)
	assert.Equal(t, "/", head.URL)
	assert.Equal(t, "test", head.Headers.Get("User-Agent"))
}

func TestParseRequestHeadMissingPseudo(t *testing.T) {
	full := Headers{":method": "GET", ":scheme": "http", ":authority": "h", ":path": "/"}

	for _, name := range []string{PseudoMethod, PseudoScheme, PseudoAuthority, PseudoPath} {
		t.Run("missing "+name, func(t *testing.T) {
			h := full.Clone()
			delete(h, name)

			head, err := ParseRequestHead(h)
			assert.Nil(t, head)
			require.Error(t, err)
			assert.True(t, errors.IsProtocolError(err))
			assert.True(t, errors.IsCode(err, errors.CodeMissingPseudoHeader))
		})

		t.Run("empty "+name, func(t *testing.T) {
			h := full.Clone()
			h[name] = ""

			_, err := ParseRequestHead(h)
			assert.True(t, errors.IsProtocolError(err))
		})
	}
}

func TestParseResponseHead(t *testing.T) {
	status, err := ParseResponseHead(Headers{":status": "204"})
	require.NoError(t, err)
	assert.Equal(t, 204, status)

	_, err = ParseResponseHead(Headers{"content-type": "text/plain"})
	assert.True(t, errors.IsCode(err, errors.CodeMissingPseudoHeader))

	_, err = ParseResponseHead(Headers{":status": "ok"})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidStatus))

	_, err = ParseResponseHead(Headers{":status": "42"})
	assert.True(t, errors.IsProtocolError(err))
}

func TestHeadersHelpers(t *testing.T) {
	h := NewHeaders(map[string]string{"Content-Type": "text/plain", ":status": "200"})

	assert.Equal(t, "text/plain", h.Get("content-type"))
	assert.True(t, h.Has("CONTENT-TYPE"))
	assert.Equal(t, []string{":status", "content-type"}, h.Names())
	assert.Equal(t, Headers{"content-type": "text/plain"}, h.Regular())

	var nilHeaders Headers
	assert.Equal(t, "", nilHeaders.Get("x"))
	assert.False(t, nilHeaders.Has("x"))
	assert.NotNil(t, nilHeaders.Clone())
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("delete")
	require.NoError(t, err)
	assert.Equal(t, MethodDelete, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodGet, m)

	_, err = ParseMethod("CONNECT")
	assert.True(t, errors.IsConfigError(err))

	assert.True(t, MethodPost.RequiresBody())
	assert.True(t, MethodPut.RequiresBody())
	assert.False(t, MethodPatch.RequiresBody())
}

func TestDirectionFinishesOnce(t *testing.T) {
	var d Direction
	assert.False(t, d.Finished())
	assert.True(t, d.Finish())
	assert.False(t, d.Finish())
	assert.True(t, d.Finished())
}
