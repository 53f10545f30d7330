package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// secretField is the hash field holding a client's (possibly sealed) secret.
const secretField = "secret"

// IdentityStore implements ports.IdentityStore on Redis hashes keyed
// <prefix><client code>. Records are provisioned out of band; this store
// only reads them.
type IdentityStore struct {
	client *goredis.Client
	prefix string
}

// NewIdentityStore creates a new Redis-backed identity store.
func NewIdentityStore(client *goredis.Client, prefix string) *IdentityStore {
	return &IdentityStore{
		client: client,
		prefix: prefix,
	}
}

// GetSecret returns the stored secret for code.
// Returns "", nil if no record exists.
func (s *IdentityStore) GetSecret(ctx context.Context, code string) (string, error) {
	secret, err := s.client.HGet(ctx, s.prefix+code, secretField).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis identity lookup: %w", err)
	}
	return secret, nil
}
