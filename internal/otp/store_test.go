package otp

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"dauth-service/internal/client"
	"dauth-service/internal/config"
	"dauth-service/internal/model"
	redisrepo "dauth-service/internal/repository/redis"
)

func testStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.PoolSize = 5
	cfg.OTP.TTL = 10 * time.Minute
	cfg.OTP.MaxResends = 2
	cfg.OTP.Digits = 6

	rc, err := client.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { rc.Close() })

	return NewStore(cfg, redisrepo.NewOTPRepository(rc)), mr
}

func TestIssueGeneratesCode(t *testing.T) {
	store, _ := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(ch.Code) != 6 {
		t.Errorf("code length = %d, want 6", len(ch.Code))
	}
	for _, r := range ch.Code {
		if r < '0' || r > '9' {
			t.Errorf("code %q contains non-digit", ch.Code)
		}
	}
	if ch.SendCount != 1 {
		t.Errorf("send count = %d, want 1", ch.SendCount)
	}
	if ch.SessionID == "" {
		t.Error("expected a correlation id")
	}
}

func TestIssueReplacesExistingChallenge(t *testing.T) {
	store, _ := testStore(t)

	first, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Error("reissue should start a new correlation id")
	}

	// The first challenge no longer validates.
	err = store.Validate("user-1", first.SessionID, model.OTPPurposePasswordReset, first.Code)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("old challenge should be dead, got %v", err)
	}
}

func TestValidateAndConsume(t *testing.T) {
	store, _ := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, ch.Code); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// Validation alone does not consume.
	if err := store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, ch.Code); err != nil {
		t.Fatalf("second Validate: %v", err)
	}

	if err := store.Consume("user-1", model.OTPPurposePasswordReset); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	err = store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, ch.Code)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("consumed challenge should be gone, got %v", err)
	}
}

func TestValidateRejectsWrongCode(t *testing.T) {
	store, _ := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wrong := "000000"
	if wrong == ch.Code {
		wrong = "000001"
	}
	if err := store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, wrong); !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("expected ErrInvalidOTP, got %v", err)
	}
}

func TestValidateRejectsWrongCorrelationID(t *testing.T) {
	store, _ := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	err = store.Validate("user-1", "someone-elses-id", model.OTPPurposePasswordReset, ch.Code)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestResendRotatesCodeWithinWindow(t *testing.T) {
	store, _ := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Pretend 4 minutes have passed since the first send.
	store.now = func() time.Time { return time.Now().Add(4 * time.Minute) }

	resent, remaining, err := store.Resend("user-1", ch.SessionID, model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if resent.SendCount != 2 {
		t.Errorf("send count = %d, want 2", resent.SendCount)
	}
	if resent.SessionID != ch.SessionID {
		t.Error("resend must keep the correlation id")
	}
	// Window stays anchored at the first send: ~6 minutes left, not 10.
	if remaining > 6*time.Minute+time.Second || remaining < 5*time.Minute {
		t.Errorf("remaining validity = %v, want about 6m", remaining)
	}

	// Only the latest code validates.
	if err := store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, resent.Code); err != nil {
		t.Errorf("new code should validate: %v", err)
	}
	if ch.Code != resent.Code {
		if err := store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, ch.Code); !errors.Is(err, ErrInvalidOTP) {
			t.Errorf("old code should be invalid, got %v", err)
		}
	}
}

func TestResendBudget(t *testing.T) {
	store, _ := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := store.Resend("user-1", ch.SessionID, model.OTPPurposePasswordReset); err != nil {
			t.Fatalf("resend %d: %v", i+1, err)
		}
	}

	_, _, err = store.Resend("user-1", ch.SessionID, model.OTPPurposePasswordReset)
	if !errors.Is(err, ErrMaxResendExceeded) {
		t.Fatalf("expected ErrMaxResendExceeded, got %v", err)
	}

	// Exhausting the budget destroys the challenge entirely.
	err = store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, ch.Code)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("challenge should be destroyed after budget exhaustion, got %v", err)
	}
}

func TestResendAfterExpiryStartsOver(t *testing.T) {
	store, mr := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	fresh, remaining, err := store.Resend("user-1", ch.SessionID, model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Resend after expiry should issue a fresh challenge: %v", err)
	}
	if fresh.SessionID == ch.SessionID {
		t.Error("fresh challenge should carry a new correlation id")
	}
	if fresh.SendCount != 1 {
		t.Errorf("fresh challenge send count = %d, want 1", fresh.SendCount)
	}
	if remaining != 10*time.Minute {
		t.Errorf("fresh challenge validity = %v, want full 10m window", remaining)
	}
}

func TestResendWithLostCorrelationIDStartsOver(t *testing.T) {
	store, _ := testStore(t)

	ch, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	fresh, _, err := store.Resend("user-1", "some-other-id", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Resend with unknown correlation id should issue fresh: %v", err)
	}
	if fresh.SessionID == ch.SessionID {
		t.Error("expected a new correlation id")
	}

	// The old challenge was replaced outright.
	err = store.Validate("user-1", ch.SessionID, model.OTPPurposePasswordReset, ch.Code)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("old challenge should be dead, got %v", err)
	}
}

func TestChallengesIsolatedByPurpose(t *testing.T) {
	store, _ := testStore(t)

	reset, err := store.Issue("user-1", model.OTPPurposePasswordReset)
	if err != nil {
		t.Fatalf("Issue(password-reset): %v", err)
	}
	verify, err := store.Issue("user-1", model.OTPPurposeEmailVerify)
	if err != nil {
		t.Fatalf("Issue(email-verify): %v", err)
	}

	if err := store.Validate("user-1", reset.SessionID, model.OTPPurposePasswordReset, reset.Code); err != nil {
		t.Errorf("password-reset challenge should still validate: %v", err)
	}
	if err := store.Validate("user-1", verify.SessionID, model.OTPPurposeEmailVerify, verify.Code); err != nil {
		t.Errorf("email-verify challenge should still validate: %v", err)
	}
}
