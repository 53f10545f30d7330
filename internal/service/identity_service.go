package service

import (
	"context"

	"caparica-client/internal/core/domain"
	"caparica-client/internal/core/ports"
	"caparica-client/pkg/apperror"
)

// StaticIdentityProvider serves a fixed client identity, typically from config.
type StaticIdentityProvider struct {
	identity domain.ClientIdentity
}

// NewStaticIdentityProvider creates a provider for code and secret.
func NewStaticIdentityProvider(code, secret string) *StaticIdentityProvider {
	return &StaticIdentityProvider{identity: domain.ClientIdentity{Code: code, Secret: secret}}
}

// Code returns the client code.
func (p *StaticIdentityProvider) Code(_ context.Context) (string, error) {
	return p.identity.Code, nil
}

// Secret returns the shared secret.
func (p *StaticIdentityProvider) Secret(_ context.Context) (string, error) {
	return p.identity.Secret, nil
}

// StoredIdentityProvider looks up the secret for a fixed client code in an
// identity store on every call. When encSvc is set, stored secrets are
// AES-GCM sealed and opened here.
type StoredIdentityProvider struct {
	code   string
	store  ports.IdentityStore
	encSvc ports.EncryptionService
}

// NewStoredIdentityProvider creates a store-backed provider. encSvc may be nil
// for plaintext secrets.
func NewStoredIdentityProvider(code string, store ports.IdentityStore, encSvc ports.EncryptionService) *StoredIdentityProvider {
	return &StoredIdentityProvider{
		code:   code,
		store:  store,
		encSvc: encSvc,
	}
}

// Code returns the configured client code.
func (p *StoredIdentityProvider) Code(_ context.Context) (string, error) {
	return p.code, nil
}

// Secret fetches and, if needed, decrypts the client's secret.
func (p *StoredIdentityProvider) Secret(ctx context.Context) (string, error) {
	secret, err := p.store.GetSecret(ctx, p.code)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", apperror.ErrIdentityNotFound(p.code)
	}
	if p.encSvc == nil {
		return secret, nil
	}

	plain, err := p.encSvc.Decrypt(secret)
	if err != nil {
		return "", apperror.InternalError(err)
	}
	return plain, nil
}
