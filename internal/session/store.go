package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauth-service/internal/config"
	"dauth-service/internal/device"
	"dauth-service/internal/model"
	"dauth-service/internal/repository"
	"dauth-service/internal/util"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Store owns the per-user session list and its invariants: at most the
// configured number of sessions per user, one session per device
// fingerprint, and a hard lifetime measured from CreatedAt. Expired rows are
// dropped lazily whenever the list is read under the user lock.
type Store struct {
	sessions   repository.SessionRepository
	locker     repository.Locker
	maxPerUser int
	ttl        time.Duration
	now        func() time.Time
}

func NewStore(cfg *config.Config, sessions repository.SessionRepository, locker repository.Locker) *Store {
	return &Store{
		sessions:   sessions,
		locker:     locker,
		maxPerUser: cfg.Session.MaxPerUser,
		ttl:        cfg.Session.TTL,
		now:        time.Now,
	}
}

// AddOrUpdate grants a session for a device. A login from a device that
// already holds a session reuses its slot instead of burning a new one; the
// slot gets a fresh refresh token and a fresh lifetime, since the user just
// re-authenticated. Otherwise a new session is created, evicting the oldest
// one when the user is at capacity.
//
// The issue callback mints the refresh token once the session id is known,
// so the token can embed the id it belongs to.
func (s *Store) AddOrUpdate(userID string, fp device.Fingerprint, issue func(sessionID string) (string, error)) (*model.Session, error) {
	release, err := s.locker.AcquireUserLock(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	live, err := s.liveSessions(userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	for i := range live {
		if live[i].Fingerprint == fp.ID {
			token, err := issue(live[i].SessionID)
			if err != nil {
				return nil, err
			}
			updated := live[i]
			updated.RefreshToken = token
			updated.IP = fp.IP
			updated.CreatedAt = now
			if err := s.sessions.PutSession(&updated); err != nil {
				return nil, err
			}
			util.Debug("Session slot reused",
				zap.String("user_id", userID),
				zap.String("session_id", updated.SessionID))
			return &updated, nil
		}
	}

	if len(live) >= s.maxPerUser {
		oldest := live[0]
		for _, candidate := range live[1:] {
			if candidate.CreatedAt.Before(oldest.CreatedAt) {
				oldest = candidate
			}
		}
		if err := s.sessions.DeleteSession(userID, oldest.SessionID); err != nil {
			return nil, fmt.Errorf("failed to evict oldest session: %w", err)
		}
		util.Info("Oldest session evicted",
			zap.String("user_id", userID),
			zap.String("session_id", oldest.SessionID))
	}

	created := &model.Session{
		UserID:      userID,
		SessionID:   uuid.New().String(),
		Fingerprint: fp.ID,
		IP:          fp.IP,
		CreatedAt:   now,
	}
	token, err := issue(created.SessionID)
	if err != nil {
		return nil, err
	}
	created.RefreshToken = token

	if err := s.sessions.PutSession(created); err != nil {
		return nil, err
	}
	return created, nil
}

// FindBySessionID returns the live session, ErrSessionExpired for one past
// its lifetime (deleting it as a side effect) or ErrSessionNotFound.
func (s *Store) FindBySessionID(userID, sessionID string) (*model.Session, error) {
	all, err := s.sessions.ListSessions(userID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].SessionID != sessionID {
			continue
		}
		if s.expired(&all[i]) {
			_ = s.sessions.DeleteSession(userID, sessionID)
			return nil, ErrSessionExpired
		}
		return &all[i], nil
	}
	return nil, ErrSessionNotFound
}

// FindByRefreshToken locates the session currently bound to a refresh token.
func (s *Store) FindByRefreshToken(userID, refreshToken string) (*model.Session, error) {
	all, err := s.sessions.ListSessions(userID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].RefreshToken != refreshToken {
			continue
		}
		if s.expired(&all[i]) {
			_ = s.sessions.DeleteSession(userID, all[i].SessionID)
			return nil, ErrSessionExpired
		}
		return &all[i], nil
	}
	return nil, ErrSessionNotFound
}

// TouchAndValidate enforces the hard lifetime on a session loaded earlier.
// An expired session is deleted and reported as ErrSessionExpired.
func (s *Store) TouchAndValidate(session *model.Session) error {
	if s.expired(session) {
		_ = s.sessions.DeleteSession(session.UserID, session.SessionID)
		return ErrSessionExpired
	}
	return nil
}

// RotateRefreshToken swaps the stored token. CreatedAt is left alone:
// rotation keeps a session alive operationally but never extends its hard
// lifetime.
func (s *Store) RotateRefreshToken(userID, sessionID, newToken string) error {
	if err := s.sessions.UpdateRefreshToken(userID, sessionID, newToken); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// Remove drops one session. Removing a session that is already gone
// succeeds; logout is idempotent.
func (s *Store) Remove(userID, sessionID string) error {
	return s.sessions.DeleteSession(userID, sessionID)
}

// RemoveAll drops every session the user holds.
func (s *Store) RemoveAll(userID string) error {
	return s.sessions.DeleteAllSessions(userID)
}

// List returns the user's live sessions, newest first.
func (s *Store) List(userID string) ([]model.Session, error) {
	release, err := s.locker.AcquireUserLock(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	live, err := s.liveSessions(userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})
	return live, nil
}

// liveSessions lists the user's sessions, deleting expired rows on the way.
// Callers must hold the user lock.
func (s *Store) liveSessions(userID string) ([]model.Session, error) {
	all, err := s.sessions.ListSessions(userID)
	if err != nil {
		return nil, err
	}

	live := all[:0]
	for i := range all {
		if s.expired(&all[i]) {
			if err := s.sessions.DeleteSession(userID, all[i].SessionID); err != nil {
				util.Warn("Failed to drop expired session",
					zap.String("user_id", userID),
					zap.String("session_id", all[i].SessionID),
					zap.Error(err))
			}
			continue
		}
		live = append(live, all[i])
	}
	return live, nil
}

func (s *Store) expired(session *model.Session) bool {
	return s.now().UTC().Sub(session.CreatedAt) > s.ttl
}
