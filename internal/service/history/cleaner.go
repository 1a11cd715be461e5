package history

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultRetentionInterval = time.Hour

// StartRetentionCleaner periodically removes conversations older than days.
// It returns immediately; the loop stops when ctx is cancelled.
func (s *Store) StartRetentionCleaner(ctx context.Context, interval time.Duration, days int) {
	if days <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	go s.retentionLoop(ctx, interval, days)
}

func (s *Store) retentionLoop(ctx context.Context, interval time.Duration, days int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.CleanupOlderThan(ctx, days)
			if err != nil {
				s.logger.Warn("retention cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info("retention cleanup", zap.Int64("removed", removed), zap.Int("days", days))
			}
		}
	}
}
