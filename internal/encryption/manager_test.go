package encryption

import (
	"context"
	"errors"
	"testing"

	"dauth-service/internal/config"
)

func testManager() *Manager {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.KMS.Enabled = false
	return NewManager(cfg, nil)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	blob, keyID, err := m.EncryptEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("EncryptEmail: %v", err)
	}
	if keyID == "" {
		t.Error("expected non-empty key id")
	}

	got, err := m.DecryptEmail(ctx, blob)
	if err != nil {
		t.Fatalf("DecryptEmail: %v", err)
	}
	if got != "alice@example.com" {
		t.Errorf("decrypted = %q, want alice@example.com", got)
	}
}

func TestDecryptSurvivesCacheClear(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	blob, _, err := m.EncryptEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("EncryptEmail: %v", err)
	}

	m.ClearCache()

	got, err := m.DecryptEmail(ctx, blob)
	if err != nil {
		t.Fatalf("DecryptEmail after cache clear: %v", err)
	}
	if got != "bob@example.com" {
		t.Errorf("decrypted = %q, want bob@example.com", got)
	}
}

func TestDecryptMalformedBlob(t *testing.T) {
	m := testManager()

	if _, err := m.DecryptEmail(context.Background(), []byte("not json")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestHashEmailDeterministicAndKeyed(t *testing.T) {
	m := testManager()

	if m.HashEmail("alice@example.com") != m.HashEmail("alice@example.com") {
		t.Error("hash of the same email should be stable")
	}
	if m.HashEmail("alice@example.com") == m.HashEmail("bob@example.com") {
		t.Error("different emails should hash differently")
	}

	other := testManager()
	other.config.JWT.Secret = "another-secret"
	if m.HashEmail("alice@example.com") == other.HashEmail("alice@example.com") {
		t.Error("hash should depend on the configured secret")
	}
}
