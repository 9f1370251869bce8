package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the sweeper on a fixed interval inside the API process.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	timeout  time.Duration
}

func NewScheduler(s *Sweeper, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		sweeper:  s,
		interval: interval,
		timeout:  timeout,
	}
}

// Run blocks until ctx is done. A run that outlives the timeout is cancelled;
// the next tick picks up whatever it left behind.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("sweeper scheduled", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// Errors are already logged by the run itself.
	_, _ = s.sweeper.Run(ctx)
}
