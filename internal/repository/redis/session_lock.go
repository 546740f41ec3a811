package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauth-service/internal/client"
	"dauth-service/internal/util"
)

const (
	sessionLockPrefix = "session_lock:"
	sessionLockTTL    = 5 * time.Second
	lockRetryInterval = 50 * time.Millisecond
	lockAcquireBudget = 3 * time.Second
)

// Owner check before delete; releasing a lock that expired and was re-taken
// by another instance must be a no-op.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`

// SessionLock serializes session-list mutations for one user across service
// instances. The TTL bounds how long a crashed holder can block others.
type SessionLock struct {
	client *client.RedisClient
}

func NewSessionLock(client *client.RedisClient) *SessionLock {
	return &SessionLock{client: client}
}

// AcquireUserLock blocks until the per-user lock is held or the acquisition
// budget runs out. The returned release function is safe to call once.
func (l *SessionLock) AcquireUserLock(userID string) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockAcquireBudget)
	defer cancel()

	key := sessionLockPrefix + userID
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, sessionLockTTL)
		if err != nil {
			util.Error("Failed to acquire session lock",
				zap.String("user_id", userID),
				zap.Error(err))
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for session lock: %s", userID)
		case <-time.After(lockRetryInterval):
		}
	}

	release := func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()

		if _, err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token); err != nil {
			util.Warn("Failed to release session lock",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return release, nil
}
