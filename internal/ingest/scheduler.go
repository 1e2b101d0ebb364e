package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Refresher is the slice of the search service the scheduler needs.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Scheduler re-runs the refresh on a fixed interval, keeping the catalog
// current without manual refresh calls. Run blocks until ctx is cancelled.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
}

func NewScheduler(refresher Refresher, interval time.Duration) *Scheduler {
	return &Scheduler{refresher: refresher, interval: interval}
}

func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := s.refresher.Refresh(ctx)
			if err != nil {
				// keep ticking; a flaky feed should not kill the server
				slog.Error("scheduled refresh failed", "error", err)
				continue
			}
			slog.Info("scheduled refresh complete", "count", count)
		}
	}
}
