package credential

import (
	"errors"

	"go.uber.org/zap"

	"dauth-service/internal/config"
	"dauth-service/internal/encryption"
	"dauth-service/internal/hashing"
	"dauth-service/internal/model"
	"dauth-service/internal/repository"
	"dauth-service/internal/util"
)

var (
	// ErrInvalidCredentials covers unknown email, missing password and
	// wrong password alike, so responses never reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrPasswordNotSet marks an account that only ever signed in through
	// an OAuth provider. The user needs a different hint than "wrong
	// password", since no password exists to get right.
	ErrPasswordNotSet = errors.New("password login not set up for this account")

	// ErrAccountNotActive means the credentials were right but the account
	// still needs verification. Callers surface it as information, not as
	// an authentication failure.
	ErrAccountNotActive = errors.New("account not active")
)

// Verifier checks email/password pairs against the user store.
type Verifier struct {
	users           repository.UserRepository
	hasher          *hashing.Hasher
	enc             *encryption.Manager
	requireVerified bool
}

func NewVerifier(cfg *config.Config, users repository.UserRepository, hasher *hashing.Hasher, enc *encryption.Manager) *Verifier {
	return &Verifier{
		users:           users,
		hasher:          hasher,
		enc:             enc,
		requireVerified: cfg.Auth.RequireVerification,
	}
}

// Verify returns the user when the pair matches. The email must already be
// normalized.
func (v *Verifier) Verify(normalizedEmail, password string) (*model.User, error) {
	user, err := v.users.GetUserByEmail(v.enc.HashEmail(normalizedEmail))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == "" {
		return nil, ErrPasswordNotSet
	}

	if !v.hasher.VerifyPassword(password, user.PasswordHash) {
		util.Debug("Password verification failed", zap.String("user_id", user.UserID))
		return nil, ErrInvalidCredentials
	}

	if v.requireVerified && !user.IsVerified {
		return nil, ErrAccountNotActive
	}

	return user, nil
}
