package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauth-service/internal/bucketing"
	"dauth-service/internal/model"
	"dauth-service/internal/repository"
	"dauth-service/internal/util"
)

type UserRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.Manager) *UserRepository {
	return &UserRepository{
		client:  client,
		buckets: buckets,
	}
}

// CreateUser inserts a new identity. The email_to_user row is written first
// with a lightweight transaction, so two concurrent registrations for the
// same address cannot both succeed.
func (r *UserRepository) CreateUser(user *model.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.UserBucket = r.buckets.UserBucket(user.UserID)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = &now

	existing := map[string]interface{}{}
	applied, err := r.client.Prepared.CreateEmailToUser.
		Bind(user.EmailHash, user.UserBucket, user.UserID, now).
		MapScanCAS(existing)
	if err != nil {
		util.Error("Failed to reserve email mapping",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to reserve email mapping: %w", err)
	}
	if !applied {
		return repository.ErrEmailTaken
	}

	query := r.client.Prepared.CreateUser.Bind(
		user.UserBucket, user.UserID, user.EmailHash, user.EmailEncrypted,
		user.EmailKeyID, user.PasswordHash, user.GoogleID, user.FacebookID,
		user.FirstName, user.MiddleName, user.LastName, user.IsVerified,
		user.IsAdmin, user.CreatedAt, user.UpdatedAt)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))

	return nil
}

func (r *UserRepository) GetUserByID(userID string) (*model.User, error) {
	bucket := r.buckets.UserBucket(userID)
	user := &model.User{}

	query := r.client.Prepared.GetUserByID.Bind(bucket, userID)
	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.EmailHash, &user.EmailEncrypted,
		&user.EmailKeyID, &user.PasswordHash, &user.GoogleID, &user.FacebookID,
		&user.FirstName, &user.MiddleName, &user.LastName, &user.IsVerified,
		&user.IsAdmin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrUserNotFound
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetUserByEmail(emailHash string) (*model.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetUserByEmail.Bind(emailHash)
	if err := r.client.ScanWithRetry(query, &bucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrUserNotFound
		}
		util.Error("Failed to resolve email mapping", zap.Error(err))
		return nil, fmt.Errorf("failed to resolve email mapping: %w", err)
	}

	return r.GetUserByID(userID)
}

func (r *UserRepository) GetUserByProvider(provider, providerID string) (*model.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetUserByProvider.Bind(provider, providerID)
	if err := r.client.ScanWithRetry(query, &bucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrUserNotFound
		}
		util.Error("Failed to resolve provider mapping",
			zap.String("provider", provider),
			zap.Error(err))
		return nil, fmt.Errorf("failed to resolve provider mapping: %w", err)
	}

	return r.GetUserByID(userID)
}

func (r *UserRepository) UpdatePasswordHash(userID, passwordHash string) error {
	bucket := r.buckets.UserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdatePasswordHash.Bind(passwordHash, now, bucket, userID)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update password hash",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	util.Info("Password hash updated", zap.String("user_id", userID))
	return nil
}

func (r *UserRepository) UpdateVerification(userID string, isVerified bool) error {
	bucket := r.buckets.UserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateVerification.Bind(isVerified, now, bucket, userID)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update verification status",
			zap.String("user_id", userID),
			zap.Bool("is_verified", isVerified),
			zap.Error(err))
		return fmt.Errorf("failed to update verification status: %w", err)
	}

	util.Info("Verification status updated",
		zap.String("user_id", userID),
		zap.Bool("is_verified", isVerified))
	return nil
}

func (r *UserRepository) UpdateAdmin(userID string, isAdmin bool) error {
	bucket := r.buckets.UserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateAdmin.Bind(isAdmin, now, bucket, userID)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update admin flag",
			zap.String("user_id", userID),
			zap.Bool("is_admin", isAdmin),
			zap.Error(err))
		return fmt.Errorf("failed to update admin flag: %w", err)
	}

	util.Info("Admin flag updated",
		zap.String("user_id", userID),
		zap.Bool("is_admin", isAdmin))
	return nil
}

func (r *UserRepository) UpdateProfile(userID, firstName, middleName, lastName string) error {
	bucket := r.buckets.UserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateProfile.Bind(firstName, middleName, lastName, now, bucket, userID)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update profile",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update profile: %w", err)
	}

	util.Info("Profile updated", zap.String("user_id", userID))
	return nil
}

// DeleteUser removes the user row and its email mapping in one batch. The
// caller passes the loaded user so the email hash does not need a re-read.
func (r *UserRepository) DeleteUser(user *model.User) error {
	bucket := r.buckets.UserBucket(user.UserID)

	batch := r.client.Batch(gocql.LoggedBatch)
	batch.Query(r.client.Prepared.DeleteUser.Statement(), bucket, user.UserID)
	batch.Query(r.client.Prepared.DeleteEmailToUser.Statement(), user.EmailHash)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to delete user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to delete user: %w", err)
	}

	util.Info("User deleted", zap.String("user_id", user.UserID))
	return nil
}

// LinkProvider records an OAuth identity mapping and mirrors the provider id
// onto the user row.
func (r *UserRepository) LinkProvider(userID, provider, providerID string) error {
	bucket := r.buckets.UserBucket(userID)
	now := time.Now().UTC()

	batch := r.client.Batch(gocql.LoggedBatch)
	batch.Query(r.client.Prepared.LinkProvider.Statement(),
		provider, providerID, bucket, userID, now)

	switch provider {
	case "google":
		batch.Query(`UPDATE users SET google_id = ?, updated_at = ? WHERE user_bucket = ? AND user_id = ?`,
			providerID, now, bucket, userID)
	case "facebook":
		batch.Query(`UPDATE users SET facebook_id = ?, updated_at = ? WHERE user_bucket = ? AND user_id = ?`,
			providerID, now, bucket, userID)
	default:
		return fmt.Errorf("unknown provider: %s", provider)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to link provider",
			zap.String("user_id", userID),
			zap.String("provider", provider),
			zap.Error(err))
		return fmt.Errorf("failed to link provider: %w", err)
	}

	util.Info("Provider linked",
		zap.String("user_id", userID),
		zap.String("provider", provider))
	return nil
}
