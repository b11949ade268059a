package service

import (
	"context"
	"log/slog"
	"time"

	"nexusdrive/internal/server/database"
)

// PurgeService periodically deletes share links that expired more than
// `after` ago. Files on disk are never touched.
type PurgeService struct {
	repo     *database.ShareRepository
	interval time.Duration
	after    time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewPurgeService creates a new purge service.
func NewPurgeService(repo *database.ShareRepository, interval, after time.Duration) *PurgeService {
	return &PurgeService{
		repo:     repo,
		interval: interval,
		after:    after,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

// Start begins the purge loop in a background goroutine.
func (ps *PurgeService) Start(ctx context.Context) {
	slog.Info("share purge service started", "interval", ps.interval, "after", ps.after)

	go func() {
		ticker := time.NewTicker(ps.interval)
		defer ticker.Stop()

		// Run once immediately on start
		ps.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				ps.RunOnce(ctx)
			case <-ctx.Done():
				slog.Info("share purge service stopping")
				close(ps.done)
				return
			}
		}
	}()
}

// Wait blocks until the purge service has fully stopped.
func (ps *PurgeService) Wait() {
	<-ps.done
}

// RunOnce performs a single purge cycle and returns how many links went.
func (ps *PurgeService) RunOnce(ctx context.Context) int64 {
	cutoff := ps.now().Add(-ps.after)
	n, err := ps.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to purge expired share links", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("purged expired share links", "count", n, "cutoff", cutoff)
	}
	return n
}
