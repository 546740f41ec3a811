package janitor

import (
	"testing"
	"time"

	"dauth-service/internal/config"
	"dauth-service/internal/model"
	"dauth-service/internal/repository/memory"
)

func newTestJanitor(t *testing.T) (*Janitor, *memory.SessionRepository) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Session.TTL = 7 * 24 * time.Hour
	cfg.Session.SweepInterval = time.Hour

	repo := memory.NewSessionRepository()
	return New(cfg, repo), repo
}

func putSession(t *testing.T, repo *memory.SessionRepository, userID, sessionID string, age time.Duration) {
	t.Helper()
	err := repo.PutSession(&model.Session{
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: time.Now().Add(-age),
	})
	if err != nil {
		t.Fatalf("PutSession: %v", err)
	}
}

func TestSweepDeletesOnlyExpired(t *testing.T) {
	j, repo := newTestJanitor(t)

	putSession(t, repo, "u1", "old", 8*24*time.Hour)
	putSession(t, repo, "u1", "fresh", time.Hour)
	putSession(t, repo, "u2", "ancient", 30*24*time.Hour)

	deleted, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	left, err := repo.ListSessions("u1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(left) != 1 || left[0].SessionID != "fresh" {
		t.Errorf("u1 sessions after sweep = %+v, want only the fresh one", left)
	}
}

func TestSweepEmptyStore(t *testing.T) {
	j, _ := newTestJanitor(t)

	deleted, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestStartStop(t *testing.T) {
	j, repo := newTestJanitor(t)
	j.interval = 10 * time.Millisecond

	putSession(t, repo, "u1", "old", 8*24*time.Hour)

	j.Start()
	time.Sleep(50 * time.Millisecond)
	if err := j.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	left, err := repo.ListSessions("u1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expired session survived the sweep loop")
	}

	// Stopping again is harmless.
	if err := j.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
