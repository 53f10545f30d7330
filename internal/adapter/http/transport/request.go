package transport

import (
	"net/http"
	"net/url"
)

// Request adapts an *http.Request to ports.OutboundRequest.
type Request struct {
	r *http.Request
}

// NewRequest wraps r. Headers set through the adapter are written to r.
func NewRequest(r *http.Request) *Request {
	return &Request{r: r}
}

// Path returns the escaped path as it appears on the wire, without host or
// query. An empty path is sent as "/".
func (r *Request) Path() string {
	if p := r.r.URL.EscapedPath(); p != "" {
		return p
	}
	return "/"
}

// Method returns the request method; net/http treats "" as GET.
func (r *Request) Method() string {
	if r.r.Method == "" {
		return http.MethodGet
	}
	return r.r.Method
}

// Query parses the raw query as it will be sent. Unlike URL.Query, pairs
// that do not parse (";" separators, bad escapes) are an error rather than
// silently skipped.
func (r *Request) Query() (url.Values, error) {
	return url.ParseQuery(r.r.URL.RawQuery)
}

// SetHeader sets (overwrites) a header.
func (r *Request) SetHeader(name, value string) {
	if r.r.Header == nil {
		r.r.Header = make(http.Header)
	}
	r.r.Header.Set(name, value)
}
