package validation

import (
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{"alice@example.com", "a.b+tag@sub.example.co"}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("ValidateEmail(%q) = %v, want nil", email, err)
		}
	}

	if err := ValidateEmail(""); !errors.Is(err, ErrEmailRequired) {
		t.Errorf("empty email: got %v, want ErrEmailRequired", err)
	}

	invalid := []string{"not-an-email", "missing@", "@example.com", "two@@example.com", "Alice <alice@example.com>"}
	for _, email := range invalid {
		if err := ValidateEmail(email); !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("ValidateEmail(%q) = %v, want ErrInvalidEmail", email, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("Abc12345!"); err != nil {
		t.Errorf("compliant password rejected: %v", err)
	}

	cases := []struct {
		name     string
		password string
	}{
		{"empty", ""},
		{"too short", "Ab1!"},
		{"no uppercase", "abc12345!"},
		{"no lowercase", "ABC12345!"},
		{"no digit", "Abcdefgh!"},
		{"no special", "Abc123456"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidatePassword(tc.password); err == nil {
				t.Errorf("ValidatePassword(%q) accepted, want error", tc.password)
			}
		})
	}
}

func TestValidateNewPassword(t *testing.T) {
	if err := ValidateNewPassword("Abc12345!", "Abc12345!"); err != nil {
		t.Errorf("matching passwords rejected: %v", err)
	}
	if err := ValidateNewPassword("Abc12345!", "Different1!"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
	// Policy violations outrank the mismatch check.
	if err := ValidateNewPassword("weak", "weak"); errors.Is(err, ErrPasswordMismatch) || err == nil {
		t.Errorf("weak password should fail policy first, got %v", err)
	}
}
