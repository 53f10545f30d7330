package ports

//go:generate mockgen -source=services.go -destination=mocks/services.go -package=mocks

import (
	"context"
	"net/url"

	"caparica-client/internal/core/domain"
)

// Signer computes a keyed signature over a parameter set.
// Implementations must be deterministic and safe for concurrent use.
type Signer interface {
	Sign(params domain.ParameterSet, secret string) (string, error)
}

// IdentityProvider supplies the calling application's client code and secret.
type IdentityProvider interface {
	Code(ctx context.Context) (string, error)
	Secret(ctx context.Context) (string, error)
}

// EncryptionService seals and opens secrets at rest (AES-256-GCM).
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// OutboundRequest is a request about to be sent. The signer only reads its
// path, method and query, and writes headers.
//
// Query must parse the query exactly as it goes on the wire and fail rather
// than drop pairs it cannot parse: a dropped pair would be sent unsigned.
type OutboundRequest interface {
	Path() string
	Method() string
	Query() (url.Values, error)
	SetHeader(name, value string)
}

// RequestInterceptor runs once per outbound request, right before it is sent.
type RequestInterceptor interface {
	Process(ctx context.Context, req OutboundRequest) (OutboundRequest, error)
}
