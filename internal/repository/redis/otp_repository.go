package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dauth-service/internal/client"
	"dauth-service/internal/model"
	"dauth-service/internal/util"
)

const otpPrefix = "otp:"

var ErrChallengeNotFound = errors.New("otp challenge not found")

// OTPRepository stores in-flight one-time codes. One key exists per
// (user, purpose), so issuing a new code for the same purpose always
// replaces the previous one. Expiry is enforced by Redis TTL.
type OTPRepository struct {
	client *client.RedisClient
}

func NewOTPRepository(client *client.RedisClient) *OTPRepository {
	return &OTPRepository{client: client}
}

func challengeKey(userID string, purpose model.OTPPurpose) string {
	return otpPrefix + userID + ":" + string(purpose)
}

// PutChallenge writes the challenge with the given TTL, replacing any
// challenge already stored for the same user and purpose.
func (r *OTPRepository) PutChallenge(ch *model.OTPChallenge, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to encode otp challenge: %w", err)
	}

	key := challengeKey(ch.UserID, ch.Purpose)
	if err := r.client.Set(ctx, key, payload, ttl); err != nil {
		util.Error("Failed to store otp challenge",
			zap.String("user_id", ch.UserID),
			zap.String("purpose", string(ch.Purpose)),
			zap.Error(err))
		return fmt.Errorf("failed to store otp challenge: %w", err)
	}

	util.Debug("OTP challenge stored",
		zap.String("user_id", ch.UserID),
		zap.String("purpose", string(ch.Purpose)),
		zap.Duration("ttl", ttl))
	return nil
}

// GetChallenge loads the in-flight challenge, or ErrChallengeNotFound if
// none exists or it has expired.
func (r *OTPRepository) GetChallenge(userID string, purpose model.OTPPurpose) (*model.OTPChallenge, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := challengeKey(userID, purpose)
	payload, err := r.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrChallengeNotFound
		}
		util.Error("Failed to load otp challenge",
			zap.String("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load otp challenge: %w", err)
	}

	ch := &model.OTPChallenge{}
	if err := json.Unmarshal([]byte(payload), ch); err != nil {
		return nil, fmt.Errorf("failed to decode otp challenge: %w", err)
	}
	return ch, nil
}

// DeleteChallenge removes the challenge. Deleting a missing key is not an
// error; single-use consumption and expiry can race.
func (r *OTPRepository) DeleteChallenge(userID string, purpose model.OTPPurpose) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := challengeKey(userID, purpose)
	if err := r.client.Del(ctx, key); err != nil {
		util.Error("Failed to delete otp challenge",
			zap.String("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return fmt.Errorf("failed to delete otp challenge: %w", err)
	}

	util.Debug("OTP challenge deleted",
		zap.String("user_id", userID),
		zap.String("purpose", string(purpose)))
	return nil
}
