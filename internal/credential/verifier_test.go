package credential

import (
	"errors"
	"testing"

	"dauth-service/internal/config"
	"dauth-service/internal/encryption"
	"dauth-service/internal/hashing"
	"dauth-service/internal/model"
	"dauth-service/internal/repository/memory"
)

func setup(t *testing.T, requireVerified bool) (*Verifier, *memory.UserRepository, *encryption.Manager, *hashing.Hasher) {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.Hashing.BcryptCost = 10
	cfg.Auth.RequireVerification = requireVerified

	users := memory.NewUserRepository()
	hasher := hashing.NewHasher(cfg)
	enc := encryption.NewManager(cfg, nil)

	return NewVerifier(cfg, users, hasher, enc), users, enc, hasher
}

func addUser(t *testing.T, users *memory.UserRepository, enc *encryption.Manager, hasher *hashing.Hasher, email, password string, verified bool) *model.User {
	t.Helper()

	hash := ""
	if password != "" {
		var err error
		hash, err = hasher.HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
	}
	user := &model.User{
		UserID:       "user-" + email,
		EmailHash:    enc.HashEmail(email),
		PasswordHash: hash,
		IsVerified:   verified,
	}
	if err := users.CreateUser(user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestVerifyCorrectPassword(t *testing.T) {
	v, users, enc, hasher := setup(t, false)
	addUser(t, users, enc, hasher, "alice@example.com", "Abc12345!", true)

	user, err := v.Verify("alice@example.com", "Abc12345!")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.UserID != "user-alice@example.com" {
		t.Errorf("wrong user returned: %s", user.UserID)
	}
}

func TestVerifyFailuresAreIndistinguishable(t *testing.T) {
	v, users, enc, hasher := setup(t, false)
	addUser(t, users, enc, hasher, "alice@example.com", "Abc12345!", true)

	cases := []struct {
		name            string
		email, password string
	}{
		{"unknown email", "nobody@example.com", "Abc12345!"},
		{"wrong password", "alice@example.com", "WrongPass1!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestVerifyOAuthOnlyAccount(t *testing.T) {
	v, users, enc, hasher := setup(t, false)
	addUser(t, users, enc, hasher, "oauth-only@example.com", "", true)

	if _, err := v.Verify("oauth-only@example.com", "Abc12345!"); !errors.Is(err, ErrPasswordNotSet) {
		t.Errorf("expected ErrPasswordNotSet, got %v", err)
	}
}

func TestVerifyUnverifiedAccount(t *testing.T) {
	v, users, enc, hasher := setup(t, true)
	addUser(t, users, enc, hasher, "pending@example.com", "Abc12345!", false)

	if _, err := v.Verify("pending@example.com", "Abc12345!"); !errors.Is(err, ErrAccountNotActive) {
		t.Errorf("expected ErrAccountNotActive, got %v", err)
	}

	// Wrong password on an unverified account still reads as bad
	// credentials, never as a verification hint.
	if _, err := v.Verify("pending@example.com", "WrongPass1!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyUnverifiedAllowedWhenGateOff(t *testing.T) {
	v, users, enc, hasher := setup(t, false)
	addUser(t, users, enc, hasher, "pending@example.com", "Abc12345!", false)

	if _, err := v.Verify("pending@example.com", "Abc12345!"); err != nil {
		t.Errorf("verification gate off, login should succeed: %v", err)
	}
}
