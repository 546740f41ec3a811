package repository

import (
	"errors"

	"dauth-service/internal/model"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrSessionNotFound = errors.New("session not found")
)

// UserRepository is the persistence contract for identity records. Lookups
// key on the normalized email hash, never on the plaintext address.
type UserRepository interface {
	CreateUser(user *model.User) error
	GetUserByID(userID string) (*model.User, error)
	GetUserByEmail(emailHash string) (*model.User, error)
	GetUserByProvider(provider, providerID string) (*model.User, error)
	UpdatePasswordHash(userID, passwordHash string) error
	UpdateVerification(userID string, isVerified bool) error
	UpdateAdmin(userID string, isAdmin bool) error
	UpdateProfile(userID, firstName, middleName, lastName string) error
	LinkProvider(userID, provider, providerID string) error
	DeleteUser(user *model.User) error
}

// SessionRepository stores the per-user device sessions. A user holds at
// most a small, capped number of rows, so listing a partition is cheap and
// callers resolve refresh tokens by scanning the list.
type SessionRepository interface {
	ListSessions(userID string) ([]model.Session, error)
	PutSession(session *model.Session) error
	UpdateRefreshToken(userID, sessionID, refreshToken string) error
	DeleteSession(userID, sessionID string) error
	DeleteAllSessions(userID string) error
}

// Locker serializes concurrent mutations of one user's session list.
type Locker interface {
	AcquireUserLock(userID string) (release func(), err error)
}
