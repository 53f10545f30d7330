package ports

//go:generate mockgen -source=repositories.go -destination=mocks/repositories.go -package=mocks

import (
	"context"
)

// IdentityStore is a read-only lookup of provisioned client credentials.
// GetSecret returns ("", nil) when no record exists for code.
type IdentityStore interface {
	GetSecret(ctx context.Context, code string) (string, error)
}
