package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"caparica-client/internal/core/domain"
	"caparica-client/internal/core/ports"
	"caparica-client/pkg/apperror"

	"github.com/rs/zerolog"
)

// RequestSigner implements ports.RequestInterceptor. It stamps each outbound
// request with a timestamp, the client code and optionally the path and
// method, then signs them together with the query parameters.
//
// The client code header is deliberately not part of the signed parameter
// set: the verifier binds the signature to a client through the secret it
// looks up for that code.
//
// A RequestSigner is immutable and safe for concurrent use as long as its
// Signer is.
type RequestSigner struct {
	identity ports.IdentityProvider
	signer   ports.Signer
	cfg      domain.SigningConfig
	now      func() time.Time
	log      zerolog.Logger
}

// Option customises a RequestSigner at construction.
type Option func(*RequestSigner)

// WithClock overrides the time source used for the timestamp header.
func WithClock(now func() time.Time) Option {
	return func(s *RequestSigner) {
		s.now = now
	}
}

// WithLogger attaches a logger; signed requests are logged at debug level.
func WithLogger(log zerolog.Logger) Option {
	return func(s *RequestSigner) {
		s.log = log.With().Str("component", "request_signer").Logger()
	}
}

// NewRequestSigner validates cfg and builds a signer. An invalid header-key
// configuration fails here rather than on the first request.
func NewRequestSigner(identity ports.IdentityProvider, signer ports.Signer, cfg domain.SigningConfig, opts ...Option) (*RequestSigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &RequestSigner{
		identity: identity,
		signer:   signer,
		cfg:      cfg,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective signing configuration.
func (s *RequestSigner) Config() domain.SigningConfig {
	return s.cfg
}

// WithConfig deep-merges partial into the current configuration and returns
// a new signer using it. The receiver is left unchanged.
func (s *RequestSigner) WithConfig(partial map[string]any) (*RequestSigner, error) {
	cfg, err := s.cfg.Merge(partial)
	if err != nil {
		return nil, err
	}

	clone := *s
	clone.cfg = cfg
	return &clone, nil
}

// ParamsToSign returns the query-derived seed of the parameter set. A query
// that does not parse in full is a SIG_004 error.
func (s *RequestSigner) ParamsToSign(req ports.OutboundRequest) (domain.ParameterSet, error) {
	query, err := req.Query()
	if err != nil {
		return nil, apperror.ErrMalformedQuery(err)
	}
	return domain.NewParameterSet(query), nil
}

type headerWrite struct {
	name  string
	value string
}

// Process signs req and returns it. Headers are written only once the
// signature has been computed, so a failing identity provider or signer
// leaves req untouched. Calling Process again overwrites every header with
// values for a fresh timestamp.
func (s *RequestSigner) Process(ctx context.Context, req ports.OutboundRequest) (ports.OutboundRequest, error) {
	keys := s.cfg.Keys
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	params, err := s.ParamsToSign(req)
	if err != nil {
		return nil, err
	}
	writes := make([]headerWrite, 0, len(domain.Roles))

	writes = append(writes, headerWrite{keys.Timestamp, timestamp})
	params[keys.Timestamp] = timestamp

	code, err := s.identity.Code(ctx)
	if err != nil {
		return nil, identityError("client code", err)
	}
	writes = append(writes, headerWrite{keys.Client, code})

	var path, method string
	if s.cfg.IncludePath {
		path = req.Path()
		writes = append(writes, headerWrite{keys.Path, path})
		params[keys.Path] = path
	}

	if s.cfg.IncludeMethod {
		method = strings.ToUpper(req.Method())
		writes = append(writes, headerWrite{keys.Method, method})
		params[keys.Method] = method
	}

	secret, err := s.identity.Secret(ctx)
	if err != nil {
		return nil, identityError("client secret", err)
	}

	signature, err := s.signer.Sign(params, secret)
	if err != nil {
		return nil, apperror.ErrSigningFailure(err)
	}
	writes = append(writes, headerWrite{keys.Signature, signature})

	for _, w := range writes {
		req.SetHeader(w.name, w.value)
	}

	s.log.Debug().
		Str("client", code).
		Str("timestamp", timestamp).
		Str("path", path).
		Str("method", method).
		Int("params", len(params)).
		Msg("request signed")

	return req, nil
}

// identityError keeps a provider's own coded error (e.g. SIG_003) and wraps
// anything else as SIG_002.
func identityError(step string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.ErrIdentityUnavailable(step, err)
}
