package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"
)

// OnePasswordStore stores credentials in 1Password using the Connect API.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
//   - OP_VAULT_ID: UUID of the vault to store credentials in
type OnePasswordStore struct {
	client  connect.Client
	vaultID string
	logger  *slog.Logger

	// Cache to avoid repeated API calls
	mu    sync.RWMutex
	cache map[string]string
}

// OnePasswordConfig holds configuration for 1Password Connect.
type OnePasswordConfig struct {
	Host    string // OP_CONNECT_HOST
	Token   string // OP_CONNECT_TOKEN
	VaultID string // OP_VAULT_ID
}

// NewOnePasswordStore creates a new 1Password-backed secret store.
func NewOnePasswordStore(cfg OnePasswordConfig, logger *slog.Logger) (*OnePasswordStore, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.VaultID == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host, token, and vault_id are required")
	}

	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "leadrouter")

	return &OnePasswordStore{
		client:  client,
		vaultID: cfg.VaultID,
		logger:  logger,
		cache:   make(map[string]string),
	}, nil
}

// GetSecret retrieves a secret by name. Returns "" if no item with that
// title exists in the vault.
func (s *OnePasswordStore) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if cached, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	items, err := s.client.GetItemsByTitle(name, s.vaultID)
	if err != nil {
		if isNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		return "", nil
	}

	// Get the full item (including fields)
	item, err := s.client.GetItem(items[0].ID, s.vaultID)
	if err != nil {
		return "", fmt.Errorf("getting item: %w", err)
	}

	value := fieldValue(item, "credential")
	if value == "" {
		return "", fmt.Errorf("item %s has no credential field", name)
	}

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// SetSecret stores or replaces a secret in the vault.
func (s *OnePasswordStore) SetSecret(ctx context.Context, name, value string) error {
	items, err := s.client.GetItemsByTitle(name, s.vaultID)
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("finding item: %w", err)
	}

	item := &onepassword.Item{
		Title:    name,
		Category: onepassword.Password,
		Vault:    onepassword.ItemVault{ID: s.vaultID},
		Fields: []*onepassword.ItemField{
			{
				ID:    "credential",
				Label: "credential",
				Type:  "CONCEALED",
				Value: value,
			},
		},
	}

	if len(items) == 0 {
		_, err = s.client.CreateItem(item, s.vaultID)
	} else {
		item.ID = items[0].ID
		_, err = s.client.UpdateItem(item, s.vaultID)
	}
	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return nil
}

// Close releases any resources.
func (s *OnePasswordStore) Close() error {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
	return nil
}

func fieldValue(item *onepassword.Item, fieldID string) string {
	for _, field := range item.Fields {
		if field.ID == fieldID {
			return field.Value
		}
	}
	return ""
}

// isNotFoundError checks if an error is a "not found" error from 1Password.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404") || strings.Contains(msg, "no items")
}
