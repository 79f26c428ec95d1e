package protocol

import (
	"net/url"
	"strconv"
	"time"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

// DefaultTimeout is applied when a request does not set one.
const DefaultTimeout = 60 * time.Second

// Input is what callers hand to the client: a bare URL or a RequestConfig.
type Input interface {
	isInput()
}

// URL is a bare request URL, fetched with GET and all defaults.
type URL string

func (URL) isInput() {}

// RequestConfig is the loose form of a request. Zero values select defaults.
type RequestConfig struct {
	URL                       string
	Method                    string
	Payload                   []byte
	IsChunkedUpload           bool
	IsStreamResponse          bool
	StopOnRedirect            bool
	MaxRetriesOn5xx           int
	MaxRetriesOnNetworkChange int
	// Timeout bounds the whole request. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Headers are extra request headers. Pseudo-headers are rejected.
	Headers map[string]string
}

func (RequestConfig) isInput() {}

// RequestDescriptor is the canonical, validated form of a request. It is
// immutable once built.
type RequestDescriptor struct {
	url                       string
	scheme                    string
	authority                 string
	path                      string
	method                    Method
	payload                   []byte
	isChunkedUpload           bool
	isStreamResponse          bool
	stopOnRedirect            bool
	maxRetriesOn5xx           int
	maxRetriesOnNetworkChange int
	timeout                   time.Duration
	headers                   Headers
}

// Normalize resolves in into a RequestDescriptor. All failures are config errors.
func Normalize(in Input) (*RequestDescriptor, error) {
	return normalize(in, "")
}

// NormalizeAs resolves in with its method fixed to m before validation, so
// method-specific rules still apply.
func NormalizeAs(in Input, m Method) (*RequestDescriptor, error) {
	if _, ok := knownMethods[m]; !ok {
		return nil, errors.InvalidParameter("method", string(m), "one of GET, POST, PUT, PATCH, HEAD, DELETE")
	}
	return normalize(in, m)
}

func normalize(in Input, fixed Method) (*RequestDescriptor, error) {
	var cfg RequestConfig

	switch v := in.(type) {
	case nil:
		return nil, errors.MissingParameter("request")
	case URL:
		cfg = RequestConfig{URL: string(v)}
	case RequestConfig:
		cfg = v
	case *RequestConfig:
		if v == nil {
			return nil, errors.MissingParameter("request")
		}
		cfg = *v
	default:
		return nil, errors.ConfigErrorf("unsupported request input %T", in)
	}

	if fixed != "" {
		cfg.Method = string(fixed)
	}

	return cfg.build()
}

func (cfg RequestConfig) build() (*RequestDescriptor, error) {
	if cfg.URL == "" {
		return nil, errors.MissingParameter("url")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.InvalidParameter("url", cfg.URL, "absolute URL with scheme and host")
	}

	method, err := ParseMethod(cfg.Method)
	if err != nil {
		return nil, err
	}

	hasPayload := len(cfg.Payload) > 0
	if hasPayload && cfg.IsChunkedUpload {
		return nil, errors.ConflictingParameters("payload", "isChunkedUpload", "a request body is either fixed or chunked")
	}
	if method.RequiresBody() && !hasPayload && !cfg.IsChunkedUpload {
		return nil, errors.ConfigErrorf("%s requires a payload or a chunked upload", method)
	}

	if cfg.MaxRetriesOn5xx < 0 {
		return nil, errors.InvalidParameter("maxRetriesOn5xx", cfg.MaxRetriesOn5xx, "non-negative integer")
	}
	if cfg.MaxRetriesOnNetworkChange < 0 {
		return nil, errors.InvalidParameter("maxRetriesOnNetworkChange", cfg.MaxRetriesOnNetworkChange, "non-negative integer")
	}

	timeout := cfg.Timeout
	switch {
	case timeout < 0:
		return nil, errors.InvalidParameter("timeout", timeout.String(), "positive duration")
	case timeout == 0:
		timeout = DefaultTimeout
	}

	headers := NewHeaders(cfg.Headers)
	for name := range headers {
		if IsPseudo(name) {
			return nil, errors.InvalidParameter("headers", name, "regular header names only")
		}
	}

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	d := &RequestDescriptor{
		url:                       cfg.URL,
		scheme:                    u.Scheme,
		authority:                 u.Host,
		path:                      path,
		method:                    method,
		isChunkedUpload:           cfg.IsChunkedUpload,
		isStreamResponse:          cfg.IsStreamResponse,
		stopOnRedirect:            cfg.StopOnRedirect,
		maxRetriesOn5xx:           cfg.MaxRetriesOn5xx,
		maxRetriesOnNetworkChange: cfg.MaxRetriesOnNetworkChange,
		timeout:                   timeout,
		headers:                   headers,
	}
	if hasPayload {
		d.payload = append([]byte(nil), cfg.Payload...)
	}
	return d, nil
}

func (d *RequestDescriptor) URL() string       { return d.url }
func (d *RequestDescriptor) Scheme() string    { return d.scheme }
func (d *RequestDescriptor) Authority() string { return d.authority }
func (d *RequestDescriptor) Path() string      { return d.path }
func (d *RequestDescriptor) Method() Method    { return d.method }

// Payload returns a copy of the fixed request body.
func (d *RequestDescriptor) Payload() []byte {
	if len(d.payload) == 0 {
		return nil
	}
	return append([]byte(nil), d.payload...)
}

// HasPayload reports whether the request carries a fixed body.
func (d *RequestDescriptor) HasPayload() bool { return len(d.payload) > 0 }

func (d *RequestDescriptor) IsChunkedUpload() bool          { return d.isChunkedUpload }
func (d *RequestDescriptor) IsStreamResponse() bool         { return d.isStreamResponse }
func (d *RequestDescriptor) StopOnRedirect() bool           { return d.stopOnRedirect }
func (d *RequestDescriptor) MaxRetriesOn5xx() int           { return d.maxRetriesOn5xx }
func (d *RequestDescriptor) MaxRetriesOnNetworkChange() int { return d.maxRetriesOnNetworkChange }
func (d *RequestDescriptor) Timeout() time.Duration         { return d.timeout }

// TimeoutMillis reports the timeout in milliseconds.
func (d *RequestDescriptor) TimeoutMillis() int64 { return d.timeout.Milliseconds() }

// Headers returns a copy of the extra request headers.
func (d *RequestDescriptor) Headers() Headers { return d.headers.Clone() }

// WithHeaders returns a copy of d with extra merged over the existing headers.
// Pseudo-headers in extra are ignored.
func (d *RequestDescriptor) WithHeaders(extra Headers) *RequestDescriptor {
	cp := *d
	cp.headers = d.headers.Clone()
	for k, v := range extra {
		if !IsPseudo(k) {
			cp.headers.Set(k, v)
		}
	}
	return &cp
}

// HeaderBlock returns the full request head: pseudo-headers followed by the
// extra headers. A fixed payload adds content-length.
func (d *RequestDescriptor) HeaderBlock() Headers {
	h := d.headers.Clone()
	h[PseudoMethod] = string(d.method)
	h[PseudoScheme] = d.scheme
	h[PseudoAuthority] = d.authority
	h[PseudoPath] = d.path
	if d.HasPayload() {
		h["content-length"] = strconv.Itoa(len(d.payload))
	}
	return h
}
