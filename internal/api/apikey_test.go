package api

import (
	"strings"
	"testing"
)

func TestGenerateWorkspaceAPIKey(t *testing.T) {
	workspaceID := "3f2a9c1d-0000-0000-0000-000000000000"

	plaintext, hash, err := GenerateWorkspaceAPIKey(workspaceID)
	if err != nil {
		t.Fatalf("GenerateWorkspaceAPIKey: %v", err)
	}

	if !strings.HasPrefix(plaintext, "lr_3f2a9c_") {
		t.Errorf("key = %q, want lr_3f2a9c_ prefix", plaintext)
	}
	if hash == plaintext {
		t.Error("hash must not equal plaintext")
	}

	if !VerifyAPIKey(plaintext, hash) {
		t.Error("generated key does not verify against its own hash")
	}
	if VerifyAPIKey("lr_3f2a9c_forged", hash) {
		t.Error("forged key verified")
	}
}

func TestGenerateWorkspaceAPIKeyUnique(t *testing.T) {
	first, _, err := GenerateWorkspaceAPIKey("ws")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := GenerateWorkspaceAPIKey("ws")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("two generated keys are identical")
	}
}
