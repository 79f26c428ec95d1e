package protocol

import (
	"strings"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

// Method is an HTTP request method accepted by the binding.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodHead   Method = "HEAD"
	MethodDelete Method = "DELETE"
)

var knownMethods = map[Method]struct{}{
	MethodGet:    {},
	MethodPost:   {},
	MethodPut:    {},
	MethodPatch:  {},
	MethodHead:   {},
	MethodDelete: {},
}

// Methods lists the accepted methods.
func Methods() []Method {
	return []Method{MethodGet, MethodPost, MethodPut, MethodPatch, MethodHead, MethodDelete}
}

// ParseMethod canonicalises s. Matching is case-insensitive; an empty string
// yields GET.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return MethodGet, nil
	}

	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownMethods[m]; !ok {
		return "", errors.InvalidParameter("method", s, "one of GET, POST, PUT, PATCH, HEAD, DELETE")
	}
	return m, nil
}

// RequiresBody reports whether the method must carry a payload or a chunked upload.
func (m Method) RequiresBody() bool {
	return m == MethodPost || m == MethodPut
}

func (m Method) String() string {
	return string(m)
}
