package chat

import (
	"context"
	"iter"
	"sync"
	"time"

	"promptrelay/internal/models"
	"promptrelay/internal/redis"
	"promptrelay/internal/service/ai"
)

type fakeProvider struct {
	name      string
	model     string
	text      string
	err       error
	fragments []ai.Fragment
	models    []string

	mu         sync.Mutex
	calls      int
	listCalls  int
	lastModel  string
	lastPrompt string
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) DefaultModel() string { return f.model }

func (f *fakeProvider) GenerateText(_ context.Context, prompt, model string) (*ai.Result, error) {
	f.mu.Lock()
	f.calls++
	f.lastModel = model
	f.lastPrompt = prompt
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	tokens := int64(7)
	return &ai.Result{Text: f.text, Model: model, TokensUsed: &tokens}, nil
}

func (f *fakeProvider) GenerateTextStream(_ context.Context, _, _ string) iter.Seq[ai.Fragment] {
	return func(yield func(ai.Fragment) bool) {
		for _, frag := range f.fragments {
			if !yield(frag) {
				return
			}
		}
	}
}

func (f *fakeProvider) ListModels(context.Context) []string {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.models
}

type savedExchange struct {
	conv      models.NewConversation
	responses []models.NewResponse
}

type recordingStore struct {
	mu    sync.Mutex
	saved []savedExchange
	err   error
}

func (s *recordingStore) SaveExchange(_ context.Context, conv models.NewConversation, responses []models.NewResponse) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, savedExchange{conv: conv, responses: responses})
	return int64(len(s.saved)), nil
}

type busyDispatcher struct{ err error }

func (b busyDispatcher) Do(context.Context, string, func()) error { return b.err }

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (m *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	if b, ok := value.([]byte); ok {
		m.data[key] = string(b)
	}
	return nil
}
