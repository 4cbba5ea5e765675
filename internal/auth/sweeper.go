package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/repo"
)

// Sweeper periodically purges pending accounts whose verification window has closed
type Sweeper struct {
	users    repo.UserRepo
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. A non-positive interval defaults to one minute.
func NewSweeper(users repo.UserRepo, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{users: users, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("expired registration sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce deletes expired pending accounts and returns how many were removed
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.users.DeleteExpiredPending(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged expired registrations", zap.Int64("count", n))
	}
	return n, nil
}
