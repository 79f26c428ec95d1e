package protocol

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

// Pseudo-header names carried in request and response heads.
const (
	PseudoMethod    = ":method"
	PseudoScheme    = ":scheme"
	PseudoAuthority = ":authority"
	PseudoPath      = ":path"
	PseudoStatus    = ":status"
)

// Headers maps lower-cased header names to values.
type Headers map[string]string

// NewHeaders builds a Headers from an arbitrary map, lower-casing every name.
func NewHeaders(src map[string]string) Headers {
	h := make(Headers, len(src))
	for k, v := range src {
		h[strings.ToLower(k)] = v
	}
	return h
}

// Get returns the value for name, matched case-insensitively.
func (h Headers) Get(name string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(name)]
}

// Set stores value under the lower-cased name.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h[strings.ToLower(name)]
	return ok
}

// Clone returns a copy. Cloning nil yields an empty, non-nil map.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Regular returns a copy without pseudo-headers.
func (h Headers) Regular() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		if !IsPseudo(k) {
			out[k] = v
		}
	}
	return out
}

// Names returns the header names in sorted order.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsPseudo reports whether name is a pseudo-header.
func IsPseudo(name string) bool {
	return strings.HasPrefix(name, ":")
}

// RequestHead is the destructured head of an inbound request.
type RequestHead struct {
	Method  string
	Scheme  string
	Host    string
	URL     string
	Headers Headers
}

// ParseRequestHead validates the request pseudo-headers. Each of :method,
// :scheme, :authority and :path must be present and non-empty.
func ParseRequestHead(h Headers) (*RequestHead, error) {
	head := &RequestHead{Headers: h.Clone()}

	for _, p := range []struct {
		name string
		dst  *string
	}{
		{PseudoMethod, &head.Method},
		{PseudoScheme, &head.Scheme},
		{PseudoAuthority, &head.Host},
		{PseudoPath, &head.URL},
	} {
		v := h.Get(p.name)
		if v == "" {
			return nil, errors.MissingPseudoHeader(p.name)
		}
		*p.dst = v
	}

	return head, nil
}

// ParseResponseHead extracts the numeric :status of a response head.
func ParseResponseHead(h Headers) (int, error) {
	raw := h.Get(PseudoStatus)
	if raw == "" {
		return 0, errors.MissingPseudoHeader(PseudoStatus)
	}

	status, err := strconv.Atoi(raw)
	if err != nil || status < 100 || status > 999 {
		return 0, errors.InvalidStatus(raw)
	}
	return status, nil
}
