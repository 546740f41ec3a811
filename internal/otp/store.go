package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauth-service/internal/config"
	"dauth-service/internal/model"
	redisrepo "dauth-service/internal/repository/redis"
	"dauth-service/internal/util"
)

var (
	ErrMaxResendExceeded = errors.New("maximum otp requests reached")
	ErrSessionExpired    = errors.New("otp session expired")
	ErrInvalidOTP        = errors.New("invalid otp")
)

// Store runs the challenge lifecycle for one-time codes. A user holds at
// most one challenge per purpose; its validity window is anchored at the
// first send and never moves, so resends cannot keep a code alive forever.
type Store struct {
	repo       *redisrepo.OTPRepository
	ttl        time.Duration
	maxResends int
	digits     int
	now        func() time.Time
}

func NewStore(cfg *config.Config, repo *redisrepo.OTPRepository) *Store {
	return &Store{
		repo:       repo,
		ttl:        cfg.OTP.TTL,
		maxResends: cfg.OTP.MaxResends,
		digits:     cfg.OTP.Digits,
		now:        time.Now,
	}
}

// Issue starts a fresh challenge, discarding any challenge already in
// flight for the same purpose. The returned challenge carries the code to
// deliver and the correlation id the client must present back.
func (s *Store) Issue(userID string, purpose model.OTPPurpose) (*model.OTPChallenge, error) {
	if err := s.repo.DeleteChallenge(userID, purpose); err != nil {
		return nil, err
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}

	ch := &model.OTPChallenge{
		UserID:    userID,
		SessionID: uuid.New().String(),
		Code:      code,
		Purpose:   purpose,
		SendCount: 1,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.PutChallenge(ch, s.ttl); err != nil {
		return nil, err
	}

	util.Info("OTP challenge issued",
		zap.String("user_id", userID),
		zap.String("purpose", string(purpose)))
	return ch, nil
}

// Resend replaces the code of an in-flight challenge. The new code only
// lives for the remainder of the original window, returned alongside the
// challenge so delivery can state the real validity. Once the send budget
// is spent the challenge is destroyed and the client must start over.
//
// A missing or mismatched correlation id falls back to a fresh Issue; the
// client clearly lost its challenge, so it gets a new one rather than an
// error it cannot act on.
func (s *Store) Resend(userID, sessionID string, purpose model.OTPPurpose) (*model.OTPChallenge, time.Duration, error) {
	ch, err := s.repo.GetChallenge(userID, purpose)
	if err != nil {
		if errors.Is(err, redisrepo.ErrChallengeNotFound) {
			fresh, issueErr := s.Issue(userID, purpose)
			return fresh, s.ttl, issueErr
		}
		return nil, 0, err
	}
	if ch.SessionID != sessionID {
		fresh, issueErr := s.Issue(userID, purpose)
		return fresh, s.ttl, issueErr
	}

	if ch.SendCount >= 1+s.maxResends {
		if err := s.repo.DeleteChallenge(userID, purpose); err != nil {
			return nil, 0, err
		}
		util.Info("OTP resend budget exhausted",
			zap.String("user_id", userID),
			zap.String("purpose", string(purpose)))
		return nil, 0, ErrMaxResendExceeded
	}

	remaining := s.ttl - s.now().UTC().Sub(ch.CreatedAt)
	if remaining <= 0 {
		// The Redis TTL should have fired already; treat as lost.
		_ = s.repo.DeleteChallenge(userID, purpose)
		fresh, issueErr := s.Issue(userID, purpose)
		return fresh, s.ttl, issueErr
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, 0, err
	}
	ch.Code = code
	ch.SendCount++

	if err := s.repo.PutChallenge(ch, remaining); err != nil {
		return nil, 0, err
	}

	util.Info("OTP challenge resent",
		zap.String("user_id", userID),
		zap.String("purpose", string(purpose)),
		zap.Int("send_count", ch.SendCount))
	return ch, remaining, nil
}

// Validate checks a submitted code without consuming the challenge. Callers
// that act on a valid code call Consume after their own write succeeds, so
// a failed write leaves the code usable for a retry.
func (s *Store) Validate(userID, sessionID string, purpose model.OTPPurpose, code string) error {
	ch, err := s.repo.GetChallenge(userID, purpose)
	if err != nil {
		if errors.Is(err, redisrepo.ErrChallengeNotFound) {
			return ErrSessionExpired
		}
		return err
	}
	if ch.SessionID != sessionID {
		return ErrSessionExpired
	}
	if ch.Code != code {
		return ErrInvalidOTP
	}
	return nil
}

// Consume destroys the challenge after successful use; codes are single-use.
func (s *Store) Consume(userID string, purpose model.OTPPurpose) error {
	return s.repo.DeleteChallenge(userID, purpose)
}

func (s *Store) generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < s.digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", s.digits, n), nil
}
