package bucketing

import (
	"testing"

	"dauth-service/internal/config"
)

func testManager() *Manager {
	cfg := &config.Config{}
	cfg.Bucketing.UserBuckets = 64
	cfg.Bucketing.EventBuckets = 16
	return NewManager(cfg)
}

func TestUserBucketIsStable(t *testing.T) {
	m := testManager()

	first := m.UserBucket("user-1")
	for i := 0; i < 100; i++ {
		if got := m.UserBucket("user-1"); got != first {
			t.Fatalf("bucket changed between calls: %d then %d", first, got)
		}
	}
}

func TestBucketsStayInRange(t *testing.T) {
	m := testManager()

	ids := []string{"a", "b", "user-42", "f7c9e0c2-3a1b-4d5e-8f6a-000000000000", ""}
	for _, id := range ids {
		if b := m.UserBucket(id); b < 0 || b >= 64 {
			t.Errorf("UserBucket(%q) = %d, out of range", id, b)
		}
		if b := m.EventBucket(id); b < 0 || b >= 16 {
			t.Errorf("EventBucket(%q) = %d, out of range", id, b)
		}
	}
}

func TestZeroBucketsDoesNotPanic(t *testing.T) {
	m := NewManager(&config.Config{})
	if b := m.UserBucket("user-1"); b != 0 {
		t.Errorf("bucket with zero configured buckets = %d, want 0", b)
	}
}
