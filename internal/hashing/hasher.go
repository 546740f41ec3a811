package hashing

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"dauth-service/internal/config"
)

var ErrPasswordTooLong = errors.New("password exceeds maximum hashable length")

// Hasher wraps bcrypt with the configured cost factor. Cost is clamped at
// construction so a misconfigured deployment cannot silently weaken every
// stored hash.
type Hasher struct {
	cost int
}

func NewHasher(cfg *config.Config) *Hasher {
	cost := cfg.Hashing.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// HashPassword produces a salted bcrypt hash of the plaintext.
func (h *Hasher) HashPassword(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		// bcrypt truncates beyond 72 bytes
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
func (h *Hasher) VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Cost returns the effective bcrypt cost factor.
func (h *Hasher) Cost() int {
	return h.cost
}
