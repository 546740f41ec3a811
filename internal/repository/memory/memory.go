// Package memory provides in-memory repository implementations used by
// tests. They hold the same contracts as the ScyllaDB repositories but keep
// everything in maps guarded by a mutex.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dauth-service/internal/model"
	"dauth-service/internal/repository"
)

type UserRepository struct {
	mu          sync.Mutex
	byID        map[string]*model.User
	byEmailHash map[string]string // email hash -> user id
	byProvider  map[string]string // provider + "\x00" + provider id -> user id
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:        make(map[string]*model.User),
		byEmailHash: make(map[string]string),
		byProvider:  make(map[string]string),
	}
}

func (r *UserRepository) CreateUser(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmailHash[user.EmailHash]; taken {
		return repository.ErrEmailTaken
	}
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = &now

	cp := *user
	r.byID[user.UserID] = &cp
	r.byEmailHash[user.EmailHash] = user.UserID
	return nil
}

func (r *UserRepository) GetUserByID(userID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(userID)
}

func (r *UserRepository) GetUserByEmail(emailHash string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byEmailHash[emailHash]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return r.get(userID)
}

func (r *UserRepository) GetUserByProvider(provider, providerID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byProvider[provider+"\x00"+providerID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return r.get(userID)
}

func (r *UserRepository) UpdatePasswordHash(userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(userID)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	r.byID[userID] = user
	return nil
}

func (r *UserRepository) UpdateVerification(userID string, isVerified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(userID)
	if err != nil {
		return err
	}
	user.IsVerified = isVerified
	r.byID[userID] = user
	return nil
}

func (r *UserRepository) UpdateAdmin(userID string, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(userID)
	if err != nil {
		return err
	}
	user.IsAdmin = isAdmin
	r.byID[userID] = user
	return nil
}

func (r *UserRepository) DeleteUser(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, user.UserID)
	delete(r.byEmailHash, user.EmailHash)
	return nil
}

func (r *UserRepository) UpdateProfile(userID, firstName, middleName, lastName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(userID)
	if err != nil {
		return err
	}
	user.FirstName = firstName
	user.MiddleName = middleName
	user.LastName = lastName
	r.byID[userID] = user
	return nil
}

func (r *UserRepository) LinkProvider(userID, provider, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.get(userID)
	if err != nil {
		return err
	}
	switch provider {
	case "google":
		user.GoogleID = providerID
	case "facebook":
		user.FacebookID = providerID
	}
	r.byProvider[provider+"\x00"+providerID] = userID
	r.byID[userID] = user
	return nil
}

// get returns a copy so callers cannot mutate stored state.
func (r *UserRepository) get(userID string) (*model.User, error) {
	user, ok := r.byID[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]map[string]*model.Session // user id -> session id -> session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]map[string]*model.Session),
	}
}

func (r *SessionRepository) ListSessions(userID string) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Session
	for _, s := range r.sessions[userID] {
		out = append(out, *s)
	}
	return out, nil
}

func (r *SessionRepository) PutSession(session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[session.UserID] == nil {
		r.sessions[session.UserID] = make(map[string]*model.Session)
	}
	cp := *session
	r.sessions[session.UserID][session.SessionID] = &cp
	return nil
}

func (r *SessionRepository) UpdateRefreshToken(userID, sessionID, refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID][sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.RefreshToken = refreshToken
	return nil
}

func (r *SessionRepository) DeleteSession(userID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions[userID], sessionID)
	return nil
}

func (r *SessionRepository) ExpiredSessions(cutoff time.Time) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []model.Session
	for _, byID := range r.sessions {
		for _, s := range byID {
			if s.CreatedAt.Before(cutoff) {
				expired = append(expired, *s)
			}
		}
	}
	return expired, nil
}

func (r *SessionRepository) DeleteAllSessions(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, userID)
	return nil
}

// Locker is a process-local stand-in for the Redis lock.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

func (l *Locker) AcquireUserLock(userID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

var (
	_ repository.UserRepository    = (*UserRepository)(nil)
	_ repository.SessionRepository = (*SessionRepository)(nil)
	_ repository.Locker            = (*Locker)(nil)
)
