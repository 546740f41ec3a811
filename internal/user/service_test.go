package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"dauth-service/internal/config"
	"dauth-service/internal/device"
	"dauth-service/internal/encryption"
	"dauth-service/internal/model"
	"dauth-service/internal/repository/memory"
	"dauth-service/internal/session"
)

func newTestService(t *testing.T) (*Service, *memory.UserRepository, *session.Store, *encryption.Manager) {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.Session.MaxPerUser = 10
	cfg.Session.TTL = 7 * 24 * time.Hour

	users := memory.NewUserRepository()
	sessions := session.NewStore(cfg, memory.NewSessionRepository(), memory.NewLocker())
	enc := encryption.NewManager(cfg, nil)

	return NewService(users, sessions, enc), users, sessions, enc
}

func seedUser(t *testing.T, users *memory.UserRepository, enc *encryption.Manager, id, email string, admin bool) *model.User {
	t.Helper()

	encrypted, keyID, err := enc.EncryptEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("EncryptEmail: %v", err)
	}
	u := &model.User{
		UserID:         id,
		EmailHash:      enc.HashEmail(email),
		EmailEncrypted: encrypted,
		EmailKeyID:     keyID,
		FirstName:      "Alice",
		IsAdmin:        admin,
	}
	if err := users.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestGetDecryptsEmail(t *testing.T) {
	svc, users, _, enc := newTestService(t)
	seedUser(t, users, enc, "u1", "alice@example.com", false)

	got, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want decrypted address", got.Email)
	}
}

func TestGetUnknownUser(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateProfileSanitizes(t *testing.T) {
	svc, users, _, enc := newTestService(t)
	seedUser(t, users, enc, "u1", "alice@example.com", false)

	got, err := svc.UpdateProfile(context.Background(), "u1", "  Alice ", "", "<b>Smith</b>")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FirstName != "Alice" {
		t.Errorf("FirstName = %q, want trimmed", got.FirstName)
	}
	if got.LastName == "<b>Smith</b>" {
		t.Error("LastName should have been sanitized")
	}
}

func TestDeleteRevokesSessions(t *testing.T) {
	svc, users, sessions, enc := newTestService(t)
	seedUser(t, users, enc, "u1", "alice@example.com", false)

	issue := func(string) (string, error) { return "refresh-token", nil }
	if _, err := sessions.AddOrUpdate("u1", device.Fingerprint{ID: "fp-laptop"}, issue); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	if err := svc.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.Get(context.Background(), "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("deleted user should be gone, got %v", err)
	}
	live, err := sessions.List("u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("expected no sessions after delete, got %d", len(live))
	}
}

func TestAdminGuards(t *testing.T) {
	svc, users, _, enc := newTestService(t)
	seedUser(t, users, enc, "admin", "root@example.com", true)
	seedUser(t, users, enc, "u1", "alice@example.com", false)

	ctx := context.Background()

	if err := svc.SetVerified(ctx, "u1", "u1", true); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin SetVerified should be forbidden, got %v", err)
	}
	if err := svc.SetAdmin(ctx, "u1", "u1", true); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin SetAdmin should be forbidden, got %v", err)
	}
	if err := svc.SetVerified(ctx, "nobody", "u1", true); !errors.Is(err, ErrForbidden) {
		t.Errorf("unknown actor should be forbidden, got %v", err)
	}

	if err := svc.SetVerified(ctx, "admin", "u1", true); err != nil {
		t.Fatalf("admin SetVerified: %v", err)
	}
	if err := svc.SetAdmin(ctx, "admin", "u1", true); err != nil {
		t.Fatalf("admin SetAdmin: %v", err)
	}

	got, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsVerified || !got.IsAdmin {
		t.Errorf("flags not applied: verified=%v admin=%v", got.IsVerified, got.IsAdmin)
	}

	if err := svc.SetAdmin(ctx, "admin", "missing", true); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
