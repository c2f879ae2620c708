package secrets

import (
	"context"
	"testing"

	"github.com/vendalink/leadrouter/internal/testutil"
)

func TestEnvVarName(t *testing.T) {
	if got := envVarName(SecretDatabaseURL); got != "LEADROUTER_DATABASE_URL" {
		t.Errorf("envVarName(%q) = %q", SecretDatabaseURL, got)
	}
}

func TestEnvStore(t *testing.T) {
	store := NewEnvStore(testutil.NewTestLogger())
	defer store.Close()

	t.Setenv("LEADROUTER_DATABASE_URL", "postgres://env-host:5432/leadrouter")

	got, err := store.GetSecret(context.Background(), SecretDatabaseURL)
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if got != "postgres://env-host:5432/leadrouter" {
		t.Errorf("GetSecret = %q, want env value", got)
	}

	// Overrides shadow the environment
	if err := store.SetSecret(context.Background(), SecretDatabaseURL, "postgres://override"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	got, err = store.GetSecret(context.Background(), SecretDatabaseURL)
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if got != "postgres://override" {
		t.Errorf("GetSecret = %q, want override", got)
	}

	// Unknown secrets resolve to empty, not an error
	got, err = store.GetSecret(context.Background(), "leadrouter-unknown")
	if err != nil || got != "" {
		t.Errorf("GetSecret(unknown) = %q, %v, want empty", got, err)
	}
}
