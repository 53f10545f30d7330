package transport

import (
	"fmt"
	"net/http"

	"caparica-client/internal/core/ports"
	"caparica-client/pkg/metrics"

	"github.com/rs/zerolog"
)

// Transport is an http.RoundTripper that signs every outgoing request with a
// request interceptor immediately before handing it to the base transport.
// A request that cannot be signed is never sent.
type Transport struct {
	base        http.RoundTripper
	interceptor ports.RequestInterceptor
	metrics     *metrics.ProxyMetrics
	log         zerolog.Logger
}

// Option customises a Transport.
type Option func(*Transport)

// WithMetrics counts signing outcomes on m.
func WithMetrics(m *metrics.ProxyMetrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithLogger logs signing failures on log.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) {
		t.log = log.With().Str("component", "signing_transport").Logger()
	}
}

// NewTransport creates a signing Transport that delegates to base after
// signing each request. When base is nil, a clone of http.DefaultTransport
// is used.
//
//	client := &http.Client{
//	    Transport: transport.NewTransport(nil, requestSigner),
//	}
func NewTransport(base http.RoundTripper, interceptor ports.RequestInterceptor, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	t := &Transport{
		base:        base,
		interceptor: interceptor,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip signs a clone of req and sends it through the base transport.
// The caller's request is not modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The clone shares req.Body, which the base transport closes.
	clone := req.Clone(req.Context())

	_, err := t.interceptor.Process(req.Context(), NewRequest(clone))
	t.metrics.ObserveSigning(err)
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		t.log.Error().Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Msg("refusing to send unsigned request")
		return nil, fmt.Errorf("signing request: %w", err)
	}

	return t.base.RoundTrip(clone)
}
