// Package user implements account management on top of the user repository:
// profile reads and updates, account deletion and the admin-only moderation
// switches.
package user

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"dauth-service/internal/encryption"
	"dauth-service/internal/model"
	"dauth-service/internal/repository"
	"dauth-service/internal/session"
	"dauth-service/internal/util"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrForbidden    = errors.New("forbidden")
)

type Service struct {
	users    repository.UserRepository
	sessions *session.Store
	enc      *encryption.Manager
}

func NewService(users repository.UserRepository, sessions *session.Store, enc *encryption.Manager) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		enc:      enc,
	}
}

// Get loads a user with the email decrypted for display.
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if user.Email == "" && len(user.EmailEncrypted) > 0 {
		email, decErr := s.enc.DecryptEmail(ctx, user.EmailEncrypted)
		if decErr != nil {
			return nil, decErr
		}
		user.Email = email
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID, firstName, middleName, lastName string) (*model.User, error) {
	err := s.users.UpdateProfile(userID,
		util.SanitizeInput(firstName),
		util.SanitizeInput(middleName),
		util.SanitizeInput(lastName))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Delete removes the account and revokes every session it holds. The sessions
// go first so a crash between the two steps cannot leave live tokens behind
// a deleted account.
func (s *Service) Delete(ctx context.Context, userID string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.sessions.RemoveAll(userID); err != nil {
		return err
	}
	if err := s.users.DeleteUser(user); err != nil {
		return err
	}

	util.Info("Account deleted", zap.String("user_id", userID))
	return nil
}

// SetVerified flips the account's verified flag. Admin only.
func (s *Service) SetVerified(ctx context.Context, actorID, userID string, verified bool) error {
	if err := s.requireAdmin(actorID); err != nil {
		return err
	}
	if err := s.users.UpdateVerification(userID, verified); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	util.Info("Verification flag changed",
		zap.String("actor_id", actorID),
		zap.String("user_id", userID),
		zap.Bool("verified", verified))
	return nil
}

// SetAdmin grants or revokes the admin flag. Admin only.
func (s *Service) SetAdmin(ctx context.Context, actorID, userID string, isAdmin bool) error {
	if err := s.requireAdmin(actorID); err != nil {
		return err
	}
	if err := s.users.UpdateAdmin(userID, isAdmin); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	util.Info("Admin flag changed",
		zap.String("actor_id", actorID),
		zap.String("user_id", userID),
		zap.Bool("is_admin", isAdmin))
	return nil
}

func (s *Service) requireAdmin(actorID string) error {
	actor, err := s.users.GetUserByID(actorID)
	if err != nil {
		return ErrForbidden
	}
	if !actor.IsAdmin {
		return ErrForbidden
	}
	return nil
}
