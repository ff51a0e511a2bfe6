package sessions

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes expired session rows. Validation re-checks
// expiry on every lookup, so the sweep only reclaims space.
type Sweeper struct {
	repo     Repository
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(repo Repository, interval time.Duration) *Sweeper {
	return &Sweeper{
		repo:     repo,
		interval: interval,
		now:      time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		slog.Error("Expired session sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Swept expired sessions", "count", deleted)
	}
}
