package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"promptrelay/internal/models"
	"promptrelay/internal/redis"
)

const (
	statisticsCacheKey = "promptrelay:history:statistics"
	statisticsCacheTTL = 30 * time.Second
	statisticsDays     = 7
)

// GetStatistics aggregates the stored history. With a cache configured the
// result may lag writes by at most the cache TTL.
func (s *Store) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	if stats, ok := s.cachedStatistics(ctx); ok {
		return stats, nil
	}
	gen := s.writeGeneration()

	stats := &models.Statistics{
		PerProvider:         map[string]models.ProviderStats{},
		ConversationsPerDay: map[string]int64{},
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN response_success THEN 1 ELSE 0 END), 0) FROM conversations`,
	).Scan(&stats.TotalConversations, &stats.SuccessfulConversations)
	if err != nil {
		return nil, storageErr("count conversations", err)
	}
	if stats.TotalConversations > 0 {
		stats.SuccessRatePercent = float64(stats.SuccessfulConversations) / float64(stats.TotalConversations) * 100
	}

	if err := s.providerStatistics(ctx, stats); err != nil {
		return nil, err
	}
	if err := s.dailyStatistics(ctx, stats); err != nil {
		return nil, err
	}

	s.storeStatistics(ctx, gen, stats)
	return stats, nil
}

func (s *Store) providerStatistics(ctx context.Context, stats *models.Statistics) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COUNT(*), AVG(response_time), COALESCE(SUM(tokens_used), 0) FROM responses GROUP BY provider`,
	)
	if err != nil {
		return storageErr("provider statistics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			provider string
			ps       models.ProviderStats
			avg      sql.NullFloat64
		)
		if err := rows.Scan(&provider, &ps.Count, &avg, &ps.TotalTokens); err != nil {
			return storageErr("scan provider statistics", err)
		}
		if avg.Valid {
			v := avg.Float64
			ps.AvgResponseTime = &v
		}
		stats.PerProvider[provider] = ps
	}
	return storageErr("provider statistics", rows.Err())
}

// dailyStatistics buckets by UTC calendar date in Go so both dialects agree.
func (s *Store) dailyStatistics(ctx context.Context, stats *models.Statistics) error {
	since := s.now().UTC().AddDate(0, 0, -statisticsDays)
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp FROM conversations WHERE timestamp >= ?`, since)
	if err != nil {
		return storageErr("daily statistics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return storageErr("scan daily statistics", err)
		}
		stats.ConversationsPerDay[ts.UTC().Format(time.DateOnly)]++
	}
	return storageErr("daily statistics", rows.Err())
}

func (s *Store) cachedStatistics(ctx context.Context) (*models.Statistics, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, statisticsCacheKey)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.logger.Debug("read cached statistics", zap.Error(err))
		}
		return nil, false
	}
	var stats models.Statistics
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		s.logger.Warn("discard cached statistics", zap.Error(err))
		return nil, false
	}
	if stats.PerProvider == nil {
		stats.PerProvider = map[string]models.ProviderStats{}
	}
	if stats.ConversationsPerDay == nil {
		stats.ConversationsPerDay = map[string]int64{}
	}
	return &stats, true
}

func (s *Store) writeGeneration() uint64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.writes
}

// storeStatistics caches stats unless a write landed after gen was taken.
func (s *Store) storeStatistics(ctx context.Context, gen uint64, stats *models.Statistics) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.writes != gen {
		return
	}
	if err := s.cache.Set(ctx, statisticsCacheKey, raw, statisticsCacheTTL); err != nil {
		s.logger.Debug("cache statistics", zap.Error(err))
	}
}

func (s *Store) invalidateStatistics(ctx context.Context) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.writes++
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statisticsCacheKey); err != nil {
		s.logger.Debug("invalidate statistics", zap.Error(err))
	}
}
