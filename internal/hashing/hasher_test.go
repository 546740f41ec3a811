package hashing

import (
	"strings"
	"testing"

	"dauth-service/internal/config"
)

func testConfig(cost int) *config.Config {
	cfg := &config.Config{}
	cfg.Hashing.BcryptCost = cost
	return cfg
}

func TestHashAndVerifyPassword(t *testing.T) {
	h := NewHasher(testConfig(10))

	hash, err := h.HashPassword("Abc12345!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "Abc12345!" {
		t.Fatal("hash must not equal plaintext")
	}
	if !h.VerifyPassword("Abc12345!", hash) {
		t.Error("correct password did not verify")
	}
	if h.VerifyPassword("wrong-password", hash) {
		t.Error("wrong password verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := NewHasher(testConfig(10))

	first, err := h.HashPassword("Abc12345!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	second, err := h.HashPassword("Abc12345!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if first == second {
		t.Error("two hashes of the same password should differ")
	}
}

func TestPasswordTooLong(t *testing.T) {
	h := NewHasher(testConfig(10))

	if _, err := h.HashPassword(strings.Repeat("a", 73)); err != ErrPasswordTooLong {
		t.Errorf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestCostClamped(t *testing.T) {
	if got := NewHasher(testConfig(99)).Cost(); got == 99 {
		t.Error("out-of-range cost should be clamped")
	}
	if got := NewHasher(testConfig(10)).Cost(); got != 10 {
		t.Errorf("cost = %d, want 10", got)
	}
}
