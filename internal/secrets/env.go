package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// EnvStore resolves secrets from environment variables.
// This is intended for development and testing only.
//
// A secret named "leadrouter-database-url" is read from the variable
// LEADROUTER_DATABASE_URL. SetSecret stores values in-process only.
type EnvStore struct {
	logger *slog.Logger

	mu        sync.RWMutex
	overrides map[string]string
}

// NewEnvStore creates a new environment-variable-backed secret store.
func NewEnvStore(logger *slog.Logger) *EnvStore {
	return &EnvStore{
		logger:    logger,
		overrides: make(map[string]string),
	}
}

// GetSecret retrieves a secret by name. Returns "" when neither an
// in-process override nor the matching environment variable is set.
func (s *EnvStore) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if v, ok := s.overrides[name]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()
	return os.Getenv(envVarName(name)), nil
}

// SetSecret stores an in-process override. The environment itself is not
// modified.
func (s *EnvStore) SetSecret(ctx context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name must not be empty")
	}
	s.mu.Lock()
	s.overrides[name] = value
	s.mu.Unlock()
	return nil
}

// Close releases any resources.
func (s *EnvStore) Close() error {
	s.mu.Lock()
	s.overrides = make(map[string]string)
	s.mu.Unlock()
	return nil
}

// envVarName maps "leadrouter-database-url" to "LEADROUTER_DATABASE_URL".
func envVarName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
