package secrets

import (
	"fmt"
	"log/slog"
	"os"
)

// Config holds configuration for the secrets backend.
type Config struct {
	// Backend specifies which backend to use: "1password", "env", or "auto"
	// "auto" (default) uses 1Password if configured, otherwise environment
	// variables
	Backend string

	// 1Password Connect configuration
	// Set via environment: OP_CONNECT_HOST, OP_CONNECT_TOKEN, OP_VAULT_ID
	OnePasswordHost  string
	OnePasswordToken string
	OnePasswordVault string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		Backend:          getEnv("LEADROUTER_SECRETS_BACKEND", "auto"),
		OnePasswordHost:  os.Getenv("OP_CONNECT_HOST"),
		OnePasswordToken: os.Getenv("OP_CONNECT_TOKEN"),
		OnePasswordVault: os.Getenv("OP_VAULT_ID"),
	}
}

// NewSecretStore creates a SecretStore based on configuration.
func NewSecretStore(cfg Config, logger *slog.Logger) (SecretStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	switch backend {
	case "1password":
		return NewOnePasswordStore(OnePasswordConfig{
			Host:    cfg.OnePasswordHost,
			Token:   cfg.OnePasswordToken,
			VaultID: cfg.OnePasswordVault,
		}, logger)

	case "env":
		return NewEnvStore(logger), nil

	case "auto":
		// Try 1Password first, fall back to environment variables
		if cfg.OnePasswordToken != "" {
			store, err := NewOnePasswordStore(OnePasswordConfig{
				Host:    cfg.OnePasswordHost,
				Token:   cfg.OnePasswordToken,
				VaultID: cfg.OnePasswordVault,
			}, logger)
			if err != nil {
				logger.Warn("failed to initialize 1Password, falling back to environment variables",
					"error", err)
				return NewEnvStore(logger), nil
			}
			return store, nil
		}
		logger.Info("OP_CONNECT_TOKEN not set, resolving secrets from environment variables")
		return NewEnvStore(logger), nil

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
