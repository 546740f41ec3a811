package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"dauth-service/internal/config"
	"dauth-service/internal/device"
	"dauth-service/internal/repository/memory"
)

func testStore() (*Store, *memory.SessionRepository) {
	cfg := &config.Config{}
	cfg.Session.MaxPerUser = 10
	cfg.Session.TTL = 7 * 24 * time.Hour

	repo := memory.NewSessionRepository()
	return NewStore(cfg, repo, memory.NewLocker()), repo
}

func fp(id string) device.Fingerprint {
	return device.Fingerprint{ID: id, IP: "203.0.113.7"}
}

func staticToken(s string) func(string) (string, error) {
	return func(string) (string, error) { return s, nil }
}

func TestAddCreatesSession(t *testing.T) {
	store, _ := testStore()

	var boundTo string
	created, err := store.AddOrUpdate("user-1", fp("device-a"), func(sessionID string) (string, error) {
		boundTo = sessionID
		return "refresh-1", nil
	})
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if created.SessionID == "" || created.SessionID != boundTo {
		t.Errorf("issue callback got session id %q, session has %q", boundTo, created.SessionID)
	}
	if created.RefreshToken != "refresh-1" {
		t.Errorf("refresh token = %q, want refresh-1", created.RefreshToken)
	}
}

func TestSameDeviceReusesSlot(t *testing.T) {
	store, _ := testStore()

	first, err := store.AddOrUpdate("user-1", fp("device-a"), staticToken("refresh-1"))
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := store.AddOrUpdate("user-1", fp("device-a"), staticToken("refresh-2"))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if second.SessionID != first.SessionID {
		t.Error("login from the same device should reuse the session id")
	}
	if second.RefreshToken != "refresh-2" {
		t.Error("reused slot should carry the new refresh token")
	}

	live, err := store.List("user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(live) != 1 {
		t.Errorf("expected 1 session after same-device relogin, got %d", len(live))
	}
}

func TestCapEvictsOldest(t *testing.T) {
	store, _ := testStore()

	base := time.Now().UTC().Add(-time.Hour)
	var oldest string
	for i := 0; i < 10; i++ {
		offset := time.Duration(i) * time.Minute
		store.now = func() time.Time { return base.Add(offset) }
		s, err := store.AddOrUpdate("user-1", fp(fmt.Sprintf("device-%d", i)), staticToken("r"))
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		if i == 0 {
			oldest = s.SessionID
		}
	}

	store.now = time.Now
	if _, err := store.AddOrUpdate("user-1", fp("device-10"), staticToken("r")); err != nil {
		t.Fatalf("11th login: %v", err)
	}

	live, err := store.List("user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(live) != 10 {
		t.Fatalf("expected 10 sessions after eviction, got %d", len(live))
	}
	for _, s := range live {
		if s.SessionID == oldest {
			t.Error("oldest session should have been evicted")
		}
	}
}

func TestFindBySessionID(t *testing.T) {
	store, _ := testStore()

	created, err := store.AddOrUpdate("user-1", fp("device-a"), staticToken("refresh-1"))
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}

	got, err := store.FindBySessionID("user-1", created.SessionID)
	if err != nil {
		t.Fatalf("FindBySessionID: %v", err)
	}
	if got.RefreshToken != "refresh-1" {
		t.Errorf("unexpected session: %+v", got)
	}

	if _, err := store.FindBySessionID("user-1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestExpiredSessionIsDroppedLazily(t *testing.T) {
	store, repo := testStore()

	created, err := store.AddOrUpdate("user-1", fp("device-a"), staticToken("refresh-1"))
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	if _, err := store.FindBySessionID("user-1", created.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// The expired row must be gone from storage, not just filtered.
	stored, _ := repo.ListSessions("user-1")
	if len(stored) != 0 {
		t.Errorf("expired session should have been deleted, found %d rows", len(stored))
	}
}

func TestFindByRefreshToken(t *testing.T) {
	store, _ := testStore()

	created, err := store.AddOrUpdate("user-1", fp("device-a"), staticToken("refresh-1"))
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}

	got, err := store.FindByRefreshToken("user-1", "refresh-1")
	if err != nil {
		t.Fatalf("FindByRefreshToken: %v", err)
	}
	if got.SessionID != created.SessionID {
		t.Error("found wrong session")
	}

	if _, err := store.FindByRefreshToken("user-1", "stale-token"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for unknown token, got %v", err)
	}
}

func TestRotateKeepsCreatedAt(t *testing.T) {
	store, _ := testStore()

	created, err := store.AddOrUpdate("user-1", fp("device-a"), staticToken("refresh-1"))
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}

	if err := store.RotateRefreshToken("user-1", created.SessionID, "refresh-2"); err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}

	got, err := store.FindBySessionID("user-1", created.SessionID)
	if err != nil {
		t.Fatalf("FindBySessionID: %v", err)
	}
	if got.RefreshToken != "refresh-2" {
		t.Error("token should have rotated")
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Error("rotation must not move CreatedAt")
	}

	// The old token no longer resolves.
	if _, err := store.FindByRefreshToken("user-1", "refresh-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("old token should be dead, got %v", err)
	}

	if err := store.RotateRefreshToken("user-1", "missing", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("rotating a missing session should fail with ErrSessionNotFound, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, _ := testStore()

	created, err := store.AddOrUpdate("user-1", fp("device-a"), staticToken("refresh-1"))
	if err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}

	if err := store.Remove("user-1", created.SessionID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove("user-1", created.SessionID); err != nil {
		t.Errorf("second Remove should succeed: %v", err)
	}
}

func TestRemoveAll(t *testing.T) {
	store, _ := testStore()

	for i := 0; i < 3; i++ {
		if _, err := store.AddOrUpdate("user-1", fp(fmt.Sprintf("device-%d", i)), staticToken("r")); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}

	if err := store.RemoveAll("user-1"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	live, err := store.List("user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("expected no sessions, got %d", len(live))
	}
}

func TestListNewestFirst(t *testing.T) {
	store, _ := testStore()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Minute
		store.now = func() time.Time { return base.Add(offset) }
		if _, err := store.AddOrUpdate("user-1", fp(fmt.Sprintf("device-%d", i)), staticToken("r")); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	store.now = time.Now

	live, err := store.List("user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i := 1; i < len(live); i++ {
		if live[i].CreatedAt.After(live[i-1].CreatedAt) {
			t.Fatal("sessions not sorted newest first")
		}
	}
}
