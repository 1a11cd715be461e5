package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptrelay/internal/config"
	"promptrelay/internal/models"
	"promptrelay/internal/redis"
	"promptrelay/internal/storage"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite3", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	return NewStore(db, nil, opts...)
}

func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "hello", ModelUsed: "groq"})
	require.NoError(t, err)
	require.NoError(t, store.AppendResponse(ctx, models.NewResponse{
		ConversationID: id,
		Provider:       "groq",
		Model:          "llama3-8b-8192",
		ResponseText:   "hi",
		Success:        true,
		ResponseTime:   floatPtr(0.5),
		TokensUsed:     int64Ptr(12),
	}))

	detail, err := store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", detail.Prompt)
	assert.True(t, detail.ResponseSuccess)
	assert.Nil(t, detail.UserSession)
	require.NotNil(t, detail.ModelUsed)
	assert.Equal(t, "groq", *detail.ModelUsed)
	require.Len(t, detail.Responses, 1)
	resp := detail.Responses[0]
	assert.Equal(t, "groq", resp.Provider)
	require.NotNil(t, resp.ResponseText)
	assert.Equal(t, "hi", *resp.ResponseText)
	assert.Nil(t, resp.ErrorMessage)
	assert.Equal(t, int64(12), *resp.TokensUsed)
}

func TestGetConversationNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetConversation(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateConversationRequiresPrompt(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateConversation(context.Background(), models.NewConversation{Prompt: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAppendResponseUnknownConversation(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendResponse(context.Background(), models.NewResponse{ConversationID: 999, Provider: "openai", Success: true})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
}

func TestListConversationsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "first", Timestamp: base})
	require.NoError(t, err)
	second, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "second", Timestamp: base.Add(time.Minute)})
	require.NoError(t, err)
	require.NoError(t, store.AppendResponse(ctx, models.NewResponse{ConversationID: second, Provider: "claude", Success: true, ResponseText: "a"}))
	require.NoError(t, store.AppendResponse(ctx, models.NewResponse{ConversationID: second, Provider: "groq", Success: false, ErrorMessage: "boom"}))

	list, err := store.ListConversations(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, []string{"claude", "groq"}, list[0].Providers)
	assert.Equal(t, []bool{true, false}, list[0].ResponseSuccesses)
	assert.Equal(t, first, list[1].ID)
	assert.Empty(t, list[1].Providers)

	page, err := store.ListConversations(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first, page[0].ID)

	empty, err := store.ListConversations(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, prompt := range []string{"Tell me about Go", "weather today", "100% sure", "100 percent"} {
		_, err := store.CreateConversation(ctx, models.NewConversation{Prompt: prompt})
		require.NoError(t, err)
	}

	found, err := store.SearchConversations(ctx, "go", 20)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Tell me about Go", found[0].Prompt)

	found, err = store.SearchConversations(ctx, "100%", 20)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "100% sure", found[0].Prompt)

	found, err = store.SearchConversations(ctx, "nothing matches", 20)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSearchConversationsNewestFirstAndLimited(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 6; i++ {
		id, err := store.CreateConversation(ctx, models.NewConversation{
			Prompt:    fmt.Sprintf("What's the weather on day %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "Tell me a joke", Timestamp: base.Add(24 * time.Hour)})
	require.NoError(t, err)

	found, err := store.SearchConversations(ctx, "WEATHER", 20)
	require.NoError(t, err)
	require.Len(t, found, 6)
	for i, conv := range found {
		assert.Equal(t, ids[len(ids)-1-i], conv.ID)
	}

	capped, err := store.SearchConversations(ctx, "weather", 4)
	require.NoError(t, err)
	require.Len(t, capped, 4)
	assert.Equal(t, ids[5], capped[0].ID)
	assert.Equal(t, ids[2], capped[3].ID)
}

func TestConcurrentWritesAndReads(t *testing.T) {
	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	store := NewStore(db, nil, WithCache(newMemoryCache()))
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers*3)
	for i := 0; i < writers; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, err := store.SaveExchange(ctx, models.NewConversation{Prompt: fmt.Sprintf("prompt %d", i)}, []models.NewResponse{
				{Provider: "openai", Success: true, ResponseText: "a", ResponseTime: floatPtr(1)},
				{Provider: "groq", Success: false, ErrorMessage: "down"},
			})
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := store.ListConversations(ctx, 10, 0)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := store.GetStatistics(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), stats.TotalConversations)
	assert.Equal(t, int64(writers), stats.PerProvider["openai"].Count)
	assert.Equal(t, int64(writers), stats.PerProvider["groq"].Count)

	list, err := store.ListConversations(ctx, writers+10, 0)
	require.NoError(t, err)
	require.Len(t, list, writers)
	for _, conv := range list {
		assert.Equal(t, []string{"openai", "groq"}, conv.Providers)
	}

	removed, err := store.CleanupOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), removed)
	var orphans int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM responses`).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestDeleteConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.SaveExchange(ctx, models.NewConversation{Prompt: "bye"}, []models.NewResponse{
		{Provider: "openai", Success: true, ResponseText: "ok"},
	})
	require.NoError(t, err)

	deleted, err := store.DeleteConversation(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.GetConversation(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	var remaining int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM responses`).Scan(&remaining))
	assert.Zero(t, remaining)

	deleted, err = store.DeleteConversation(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSaveExchangeIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveExchange(ctx, models.NewConversation{Prompt: "compare"}, []models.NewResponse{
		{Provider: "openai", Success: true, ResponseText: "a"},
		{Provider: "", Success: true},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	list, err := store.ListConversations(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCleanupOlderThan(t *testing.T) {
	now := time.Date(2024, 6, 30, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	old, err := store.SaveExchange(ctx, models.NewConversation{Prompt: "old", Timestamp: now.AddDate(0, 0, -40)},
		[]models.NewResponse{{Provider: "groq", Success: true, ResponseText: "x"}})
	require.NoError(t, err)
	recent, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "recent", Timestamp: now.AddDate(0, 0, -1)})
	require.NoError(t, err)

	_, err = store.CleanupOlderThan(ctx, -1)
	require.ErrorIs(t, err, ErrInvalidInput)

	removed, err := store.CleanupOlderThan(ctx, 1000000000)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = store.CleanupOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	_, err = store.GetConversation(ctx, old)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetConversation(ctx, recent)
	require.NoError(t, err)

	removed, err = store.CleanupOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestStatisticsEmpty(t *testing.T) {
	store := newTestStore(t)
	stats, err := store.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalConversations)
	assert.Zero(t, stats.SuccessRatePercent)
	assert.Empty(t, stats.PerProvider)
	assert.Empty(t, stats.ConversationsPerDay)
}

func TestStatisticsAggregates(t *testing.T) {
	now := time.Date(2024, 6, 30, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := store.SaveExchange(ctx, models.NewConversation{Prompt: "a", Timestamp: now.Add(-time.Hour)}, []models.NewResponse{
		{Provider: "groq", Success: true, ResponseText: "x", ResponseTime: floatPtr(1), TokensUsed: int64Ptr(10)},
		{Provider: "claude", Success: false, ErrorMessage: "down"},
	})
	require.NoError(t, err)
	_, err = store.SaveExchange(ctx, models.NewConversation{Prompt: "b", Timestamp: now.AddDate(0, 0, -2), ResponseSuccess: boolPtr(false)}, []models.NewResponse{
		{Provider: "groq", Success: true, ResponseText: "y", ResponseTime: floatPtr(3)},
	})
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, models.NewConversation{Prompt: "c", Timestamp: now.AddDate(0, 0, -20)})
	require.NoError(t, err)

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalConversations)
	assert.Equal(t, int64(2), stats.SuccessfulConversations)
	assert.InDelta(t, 66.666, stats.SuccessRatePercent, 0.01)

	groq := stats.PerProvider["groq"]
	assert.Equal(t, int64(2), groq.Count)
	require.NotNil(t, groq.AvgResponseTime)
	assert.InDelta(t, 2.0, *groq.AvgResponseTime, 1e-9)
	assert.Equal(t, int64(10), groq.TotalTokens)

	claude := stats.PerProvider["claude"]
	assert.Equal(t, int64(1), claude.Count)
	assert.Nil(t, claude.AvgResponseTime)
	assert.Zero(t, claude.TotalTokens)

	assert.Equal(t, map[string]int64{"2024-06-30": 1, "2024-06-28": 1}, stats.ConversationsPerDay)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
	gets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestStatisticsCacheInvalidatedOnWrite(t *testing.T) {
	cache := newMemoryCache()
	store := newTestStore(t, WithCache(cache))
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "one"})
	require.NoError(t, err)
	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalConversations)
	assert.Contains(t, cache.data, statisticsCacheKey)

	// a write behind the store's back is hidden by the cache
	_, err = store.db.Exec(`DELETE FROM conversations`)
	require.NoError(t, err)
	stats, err = store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalConversations)

	_, err = store.CreateConversation(ctx, models.NewConversation{Prompt: "two"})
	require.NoError(t, err)
	assert.NotContains(t, cache.data, statisticsCacheKey)
	stats, err = store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalConversations)
}

func TestStatisticsFillSkippedAfterConcurrentWrite(t *testing.T) {
	cache := newMemoryCache()
	store := newTestStore(t, WithCache(cache))
	ctx := context.Background()

	gen := store.writeGeneration()
	_, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "lands mid read"})
	require.NoError(t, err)
	store.storeStatistics(ctx, gen, &models.Statistics{})
	assert.NotContains(t, cache.data, statisticsCacheKey)

	store.storeStatistics(ctx, store.writeGeneration(), &models.Statistics{TotalConversations: 1})
	assert.Contains(t, cache.data, statisticsCacheKey)
}

func TestRetentionCleanerRemovesExpired(t *testing.T) {
	now := time.Now().UTC()
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.CreateConversation(ctx, models.NewConversation{Prompt: "stale", Timestamp: now.AddDate(0, 0, -10)})
	require.NoError(t, err)
	store.StartRetentionCleaner(ctx, 10*time.Millisecond, 5)

	require.Eventually(t, func() bool {
		list, err := store.ListConversations(context.Background(), 10, 0)
		return err == nil && len(list) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
