package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"dauth-service/internal/client"
	"dauth-service/internal/config"
	"dauth-service/internal/model"
)

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.PoolSize = 5

	rc, err := client.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { rc.Close() })

	return rc, mr
}

func TestChallengeRoundTrip(t *testing.T) {
	rc, _ := newTestClient(t)
	repo := NewOTPRepository(rc)

	ch := &model.OTPChallenge{
		UserID:    "user-1",
		SessionID: "corr-1",
		Code:      "123456",
		Purpose:   model.OTPPurposePasswordReset,
		SendCount: 1,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := repo.PutChallenge(ch, 10*time.Minute); err != nil {
		t.Fatalf("PutChallenge: %v", err)
	}

	got, err := repo.GetChallenge("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	if got.Code != "123456" || got.SessionID != "corr-1" || got.SendCount != 1 {
		t.Errorf("challenge mismatch: %+v", got)
	}
}

func TestChallengeIsolatedByPurpose(t *testing.T) {
	rc, _ := newTestClient(t)
	repo := NewOTPRepository(rc)

	ch := &model.OTPChallenge{UserID: "user-1", Code: "111111", Purpose: model.OTPPurposePasswordReset, SendCount: 1}
	if err := repo.PutChallenge(ch, time.Minute); err != nil {
		t.Fatalf("PutChallenge: %v", err)
	}

	if _, err := repo.GetChallenge("user-1", model.OTPPurposeEmailVerify); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("expected ErrChallengeNotFound for other purpose, got %v", err)
	}
}

func TestChallengeExpires(t *testing.T) {
	rc, mr := newTestClient(t)
	repo := NewOTPRepository(rc)

	ch := &model.OTPChallenge{UserID: "user-1", Code: "123456", Purpose: model.OTPPurposePasswordReset, SendCount: 1}
	if err := repo.PutChallenge(ch, 10*time.Minute); err != nil {
		t.Fatalf("PutChallenge: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	if _, err := repo.GetChallenge("user-1", model.OTPPurposePasswordReset); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("expected ErrChallengeNotFound after expiry, got %v", err)
	}
}

func TestDeleteChallengeIdempotent(t *testing.T) {
	rc, _ := newTestClient(t)
	repo := NewOTPRepository(rc)

	if err := repo.DeleteChallenge("user-1", model.OTPPurposePasswordReset); err != nil {
		t.Errorf("deleting a missing challenge should not fail: %v", err)
	}
}

func TestSessionLockSerializes(t *testing.T) {
	rc, mr := newTestClient(t)
	lock := NewSessionLock(rc)

	release, err := lock.AcquireUserLock("user-1")
	if err != nil {
		t.Fatalf("AcquireUserLock: %v", err)
	}

	if !mr.Exists(sessionLockPrefix + "user-1") {
		t.Fatal("lock key should exist while held")
	}

	release()

	if mr.Exists(sessionLockPrefix + "user-1") {
		t.Error("lock key should be gone after release")
	}

	// Re-acquire after release must succeed immediately.
	release2, err := lock.AcquireUserLock("user-1")
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	release2()
}

func TestSessionLocksAreIndependentPerUser(t *testing.T) {
	rc, _ := newTestClient(t)
	lock := NewSessionLock(rc)

	releaseA, err := lock.AcquireUserLock("user-a")
	if err != nil {
		t.Fatalf("AcquireUserLock(user-a): %v", err)
	}
	defer releaseA()

	releaseB, err := lock.AcquireUserLock("user-b")
	if err != nil {
		t.Fatalf("AcquireUserLock(user-b) should not block on user-a's lock: %v", err)
	}
	releaseB()
}

func TestRateLimiter(t *testing.T) {
	rc, _ := newTestClient(t)

	cfg := &config.Config{}
	cfg.RateLimit.Requests = 3
	cfg.RateLimit.Window = time.Minute
	limiter := NewRateLimiter(rc, cfg)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("203.0.113.7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("203.0.113.7") {
		t.Error("fourth request in window should be denied")
	}

	// Another caller has its own budget.
	if !limiter.Allow("198.51.100.2") {
		t.Error("different key should not share the budget")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rc, mr := newTestClient(t)

	cfg := &config.Config{}
	cfg.RateLimit.Requests = 1
	cfg.RateLimit.Window = time.Minute
	limiter := NewRateLimiter(rc, cfg)

	if !limiter.Allow("203.0.113.7") {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow("203.0.113.7") {
		t.Fatal("second request should be denied")
	}

	mr.FastForward(2 * time.Minute)

	if !limiter.Allow("203.0.113.7") {
		t.Error("request after window expiry should be allowed")
	}
}
