package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"dauth-service/internal/config"
	"dauth-service/internal/util"
)

// PreparedStatements holds the statements the repositories execute. They are
// prepared once at startup so hot-path queries skip the prepare round trip.
type PreparedStatements struct {
	CreateUser         *gocql.Query
	CreateEmailToUser  *gocql.Query
	GetUserByID        *gocql.Query
	GetUserByEmail     *gocql.Query
	GetUserByProvider  *gocql.Query
	LinkProvider       *gocql.Query
	UpdatePasswordHash *gocql.Query
	UpdateVerification *gocql.Query
	UpdateAdmin        *gocql.Query
	UpdateProfile      *gocql.Query
	DeleteUser         *gocql.Query
	DeleteEmailToUser  *gocql.Query
	ListSessions       *gocql.Query
	PutSession         *gocql.Query
	UpdateRefreshToken *gocql.Query
	DeleteSession      *gocql.Query
	DeleteAllSessions  *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, email_hash, email_encrypted, email_key_id,
            password_hash, google_id, facebook_id, first_name, middle_name,
            last_name, is_verified, is_admin, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateEmailToUser = s.Session.Query(`
        INSERT INTO email_to_user (email_hash, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, email_hash, email_encrypted, email_key_id,
            password_hash, google_id, facebook_id, first_name, middle_name,
            last_name, is_verified, is_admin, created_at, updated_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetUserByEmail = s.Session.Query(`
        SELECT user_bucket, user_id FROM email_to_user WHERE email_hash = ?`)

	prepared.GetUserByProvider = s.Session.Query(`
        SELECT user_bucket, user_id FROM provider_to_user
        WHERE provider = ? AND provider_id = ?`)

	prepared.LinkProvider = s.Session.Query(`
        INSERT INTO provider_to_user (provider, provider_id, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.UpdatePasswordHash = s.Session.Query(`
        UPDATE users SET password_hash = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateVerification = s.Session.Query(`
        UPDATE users SET is_verified = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateAdmin = s.Session.Query(`
        UPDATE users SET is_admin = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateProfile = s.Session.Query(`
        UPDATE users SET first_name = ?, middle_name = ?, last_name = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.DeleteUser = s.Session.Query(`
        DELETE FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.DeleteEmailToUser = s.Session.Query(`
        DELETE FROM email_to_user WHERE email_hash = ?`)

	prepared.ListSessions = s.Session.Query(`
        SELECT user_id, session_id, refresh_token, fingerprint, ip, created_at
        FROM sessions WHERE user_id = ?`)

	prepared.PutSession = s.Session.Query(`
        INSERT INTO sessions (user_id, session_id, refresh_token, fingerprint, ip, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`)

	prepared.UpdateRefreshToken = s.Session.Query(`
        UPDATE sessions SET refresh_token = ?
        WHERE user_id = ? AND session_id = ?`)

	prepared.DeleteSession = s.Session.Query(`
        DELETE FROM sessions WHERE user_id = ? AND session_id = ?`)

	prepared.DeleteAllSessions = s.Session.Query(`
        DELETE FROM sessions WHERE user_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
