// Package secrets provides secure storage for sensitive configuration like
// the database URL and Redis URL.
//
// This package defines a SecretStore interface for resolving named
// credentials. The primary implementation uses 1Password Connect for
// production environments, with an environment-variable fallback for
// development.
package secrets

import "context"

// Well-known secret names.
const (
	SecretDatabaseURL = "leadrouter-database-url"
	SecretRedisURL    = "leadrouter-redis-url"
)

// SecretStore resolves named credentials.
type SecretStore interface {
	// GetSecret retrieves a secret by name. Returns "" if the secret
	// doesn't exist.
	GetSecret(ctx context.Context, name string) (string, error)

	// SetSecret stores or replaces a secret.
	SetSecret(ctx context.Context, name, value string) error

	// Close releases any resources held by the store.
	Close() error
}
