// Package janitor runs the background sweep that deletes expired device
// sessions. The session store already drops expired rows lazily on read, so
// the sweep only reclaims storage for sessions nobody touches again.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dauth-service/internal/config"
	"dauth-service/internal/model"
	"dauth-service/internal/util"
)

type sweepSource interface {
	ExpiredSessions(cutoff time.Time) ([]model.Session, error)
	DeleteSession(userID, sessionID string) error
}

type Janitor struct {
	source   sweepSource
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(cfg *config.Config, source sweepSource) *Janitor {
	return &Janitor{
		source:   source,
		interval: cfg.Session.SweepInterval,
		ttl:      cfg.Session.TTL,
		now:      time.Now,
	}
}

// Start launches the sweep loop. It runs until Stop is called.
func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.group, ctx = errgroup.WithContext(ctx)

	j.group.Go(func() error {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				deleted, err := j.Sweep()
				if err != nil {
					util.Warn("Session sweep failed", zap.Error(err))
					continue
				}
				if deleted > 0 {
					util.Info("Session sweep completed", zap.Int("deleted", deleted))
				}
			}
		}
	})

	util.Info("Session janitor started",
		zap.Duration("interval", j.interval),
		zap.Duration("session_ttl", j.ttl))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() error {
	if j.cancel == nil {
		return nil
	}
	j.cancel()
	return j.group.Wait()
}

// Sweep deletes every session past its absolute lifetime and reports how many
// rows went away. Individual delete failures are logged and skipped; the next
// run picks them up.
func (j *Janitor) Sweep() (int, error) {
	cutoff := j.now().Add(-j.ttl)

	expired, err := j.source.ExpiredSessions(cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, s := range expired {
		if err := j.source.DeleteSession(s.UserID, s.SessionID); err != nil {
			util.Warn("Failed to delete expired session",
				zap.String("user_id", s.UserID),
				zap.String("session_id", s.SessionID),
				zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}
