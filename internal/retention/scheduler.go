package retention

import (
	"context"
	"time"
)

// Schedule runs a sweep every interval until ctx is done. Failures are
// logged and the next tick tries again.
func (s *Sweeper) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "retention scheduler started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "retention scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, false); err != nil {
				s.logger.ErrorContext(ctx, "scheduled retention sweep failed", "error", err)
			}
		}
	}
}
