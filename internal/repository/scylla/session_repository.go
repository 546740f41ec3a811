package scylla

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"dauth-service/internal/model"
	"dauth-service/internal/repository"
	"dauth-service/internal/util"
)

// SessionRepository persists device sessions, partitioned by user. The
// session cap keeps partitions tiny, so full-partition reads are the normal
// access pattern.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient) *SessionRepository {
	return &SessionRepository{client: client}
}

func (r *SessionRepository) ListSessions(userID string) ([]model.Session, error) {
	iter := r.client.Prepared.ListSessions.Bind(userID).Iter()

	var sessions []model.Session
	var s model.Session
	for iter.Scan(&s.UserID, &s.SessionID, &s.RefreshToken, &s.Fingerprint, &s.IP, &s.CreatedAt) {
		sessions = append(sessions, s)
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to list sessions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// PutSession inserts or fully overwrites one session row.
func (r *SessionRepository) PutSession(session *model.Session) error {
	query := r.client.Prepared.PutSession.Bind(
		session.UserID, session.SessionID, session.RefreshToken,
		session.Fingerprint, session.IP, session.CreatedAt)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to put session",
			zap.String("user_id", session.UserID),
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to put session: %w", err)
	}

	return nil
}

// UpdateRefreshToken rotates the token in place. CreatedAt is untouched so
// rotation never extends a session's lifetime.
func (r *SessionRepository) UpdateRefreshToken(userID, sessionID, refreshToken string) error {
	query := r.client.Prepared.UpdateRefreshToken.Bind(refreshToken, userID, sessionID)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to rotate refresh token",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return nil
}

func (r *SessionRepository) DeleteSession(userID, sessionID string) error {
	query := r.client.Prepared.DeleteSession.Bind(userID, sessionID)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete session",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (r *SessionRepository) DeleteAllSessions(userID string) error {
	query := r.client.Prepared.DeleteAllSessions.Bind(userID)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to delete all sessions",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to delete all sessions: %w", err)
	}

	util.Info("All sessions deleted", zap.String("user_id", userID))
	return nil
}

// ExpiredSessions walks the whole table and returns rows created before the
// cutoff. Sweep-only path; the hot paths never touch it.
func (r *SessionRepository) ExpiredSessions(cutoff time.Time) ([]model.Session, error) {
	iter := r.client.Query(`SELECT user_id, session_id, refresh_token, fingerprint, ip, created_at FROM sessions`).Iter()

	var expired []model.Session
	var s model.Session
	for iter.Scan(&s.UserID, &s.SessionID, &s.RefreshToken, &s.Fingerprint, &s.IP, &s.CreatedAt) {
		if s.CreatedAt.Before(cutoff) {
			expired = append(expired, s)
		}
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to scan for expired sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to scan for expired sessions: %w", err)
	}

	return expired, nil
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
var _ repository.UserRepository = (*UserRepository)(nil)
