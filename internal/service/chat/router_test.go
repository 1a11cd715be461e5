package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptrelay/internal/service/ai"
	"promptrelay/internal/worker"
)

func TestNormalize(t *testing.T) {
	ok := Normalize("openai", "gpt-4o", "Hello", &ai.Result{Text: "Hi", Model: "gpt-4o-mini"}, nil, 1200*time.Millisecond)
	assert.True(t, ok.Success)
	require.NotNil(t, ok.Text)
	assert.Equal(t, "Hi", *ok.Text)
	assert.Nil(t, ok.Error)
	assert.Equal(t, "gpt-4o-mini", ok.Model)
	assert.InDelta(t, 1.2, *ok.ResponseTime, 1e-9)

	failed := Normalize("groq", "m", "Hello", nil, errors.New("boom"), 0)
	assert.False(t, failed.Success)
	assert.Nil(t, failed.Text)
	assert.Equal(t, "boom", *failed.Error)
	assert.Nil(t, failed.ResponseTime)

	empty := Normalize("claude", "m", "Hello", nil, nil, time.Second)
	assert.False(t, empty.Success)
	assert.Equal(t, "unable to generate a response", *empty.Error)
	assert.Equal(t, "claude", empty.Provider)
	assert.Equal(t, "Hello", empty.Prompt)
}

func TestGeneratePersistsExchange(t *testing.T) {
	groq := &fakeProvider{name: "groq", model: "llama3-8b-8192", text: "Hi there"}
	store := &recordingStore{}
	router := NewRouter(ai.NewStaticRegistry(groq), store, nil)

	res, err := router.Generate(context.Background(), Request{Prompt: "Hello", Provider: "groq", Session: "s1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Hi there", *res.Text)
	assert.Equal(t, "llama3-8b-8192", groq.lastModel)

	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.Equal(t, "Hello", saved.conv.Prompt)
	assert.Equal(t, "s1", saved.conv.UserSession)
	assert.Equal(t, "groq", saved.conv.ModelUsed)
	assert.True(t, *saved.conv.ResponseSuccess)
	require.Len(t, saved.responses, 1)
	assert.Equal(t, "Hi there", saved.responses[0].ResponseText)
	assert.Equal(t, int64(7), *saved.responses[0].TokensUsed)
}

func TestGenerateModelPassthroughAndFailure(t *testing.T) {
	groq := &fakeProvider{name: "groq", model: "llama3-8b-8192", err: &ai.Error{Kind: ai.KindProviderError, Message: "model not found"}}
	store := &recordingStore{}
	router := NewRouter(ai.NewStaticRegistry(groq), store, nil)

	res, err := router.Generate(context.Background(), Request{Prompt: "Hello", Provider: "groq", Model: "no-such-model"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "model not found", *res.Error)
	assert.Equal(t, "no-such-model", groq.lastModel)

	require.Len(t, store.saved, 1)
	assert.False(t, *store.saved[0].conv.ResponseSuccess)
	assert.Equal(t, "model not found", store.saved[0].responses[0].ErrorMessage)
}

func TestGenerateValidation(t *testing.T) {
	store := &recordingStore{}
	router := NewRouter(ai.NewStaticRegistry(), store, nil)

	_, err := router.Generate(context.Background(), Request{Prompt: "   ", Provider: "openai"})
	require.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = router.Generate(context.Background(), Request{Prompt: "Hello", Provider: "mistral"})
	require.ErrorIs(t, err, ErrUnknownProvider)
	assert.Empty(t, store.saved)
}

func TestGenerateNotConfigured(t *testing.T) {
	store := &recordingStore{}
	router := NewRouter(ai.NewStaticRegistry(), store, nil)

	res, err := router.Generate(context.Background(), Request{Prompt: "Hello", Provider: "claude"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "claude not configured", *res.Error)
	assert.Empty(t, store.saved)
}

func TestGenerateSurvivesStorageFailure(t *testing.T) {
	openai := &fakeProvider{name: "openai", model: "gpt-4o", text: "fine"}
	router := NewRouter(ai.NewStaticRegistry(openai), &recordingStore{err: errors.New("disk full")}, nil)

	res, err := router.Generate(context.Background(), Request{Prompt: "Hello", Provider: "openai"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestGenerateBusyDispatcher(t *testing.T) {
	openai := &fakeProvider{name: "openai", model: "gpt-4o", text: "fine"}
	router := NewRouter(ai.NewStaticRegistry(openai), nil, nil, WithDispatcher(busyDispatcher{err: worker.ErrDispatcherBusy}))

	res, err := router.Generate(context.Background(), Request{Prompt: "Hello", Provider: "openai"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "server is busy, please retry", *res.Error)
	assert.Zero(t, openai.calls)
}

func TestCompareOnlyClaudeConfigured(t *testing.T) {
	claude := &fakeProvider{name: "claude", model: "claude-3-5-sonnet-20241022", text: "Bonjour"}
	store := &recordingStore{}
	d := worker.NewDispatcher(worker.Config{MinWorkers: 1, MaxWorkers: 4, QueueSize: 8}, nil)
	defer d.Stop()
	router := NewRouter(ai.NewStaticRegistry(claude), store, nil, WithDispatcher(d))

	cmp, err := router.Compare(context.Background(), CompareRequest{Prompt: "Hello", Providers: []string{"openai", "claude", "groq"}})
	require.NoError(t, err)
	require.Len(t, cmp.Responses, 3)

	assert.True(t, cmp.Responses["claude"].Success)
	assert.Equal(t, "Bonjour", *cmp.Responses["claude"].Text)
	for _, name := range []string{"openai", "groq"} {
		r := cmp.Responses[name]
		assert.False(t, r.Success, name)
		assert.Equal(t, name+" not configured", *r.Error)
	}

	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.True(t, *saved.conv.ResponseSuccess)
	require.Len(t, saved.responses, 1)
	assert.Equal(t, "claude", saved.responses[0].Provider)
	assert.Equal(t, int64(1), cmp.ConversationID)
}

func TestCompareDefaultSetWithOnlyClaude(t *testing.T) {
	claude := &fakeProvider{name: "claude", model: "m", text: "Bonjour"}
	router := NewRouter(ai.NewStaticRegistry(claude), &recordingStore{}, nil)

	cmp, err := router.Compare(context.Background(), CompareRequest{Prompt: "Hello"})
	require.NoError(t, err)
	require.Len(t, cmp.Responses, 3)
	assert.True(t, cmp.Responses["claude"].Success)
	for _, name := range []string{"openai", "groq"} {
		r, ok := cmp.Responses[name]
		require.True(t, ok, name)
		assert.False(t, r.Success, name)
		assert.Equal(t, name+" not configured", *r.Error)
	}
	assert.NotContains(t, cmp.Responses, "gemini")
}

func TestCompareDefaultsIncludeConfiguredGemini(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", model: "m", err: errors.New("down")}
	router := NewRouter(ai.NewStaticRegistry(gemini), &recordingStore{}, nil)

	cmp, err := router.Compare(context.Background(), CompareRequest{Prompt: "Hello"})
	require.NoError(t, err)
	assert.Len(t, cmp.Responses, 4)
	require.Contains(t, cmp.Responses, "gemini")
	for _, r := range cmp.Responses {
		assert.False(t, r.Success)
	}
}

func TestCompareRejectsUnknownProvider(t *testing.T) {
	router := NewRouter(ai.NewStaticRegistry(), nil, nil)
	_, err := router.Compare(context.Background(), CompareRequest{Prompt: "Hello", Providers: []string{"openai", "mistral"}})
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = router.Compare(context.Background(), CompareRequest{Prompt: ""})
	require.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestListModelsCached(t *testing.T) {
	groq := &fakeProvider{name: "groq", model: "m", models: []string{"a", "b"}}
	router := NewRouter(ai.NewStaticRegistry(groq), nil, nil, WithModelCache(&mapCache{}))

	for i := 0; i < 2; i++ {
		names, err := router.ListModels(context.Background(), "groq")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names)
	}
	assert.Equal(t, 1, groq.listCalls)

	_, err := router.ListModels(context.Background(), "claude")
	require.Error(t, err)
	assert.Equal(t, "claude not configured", err.Error())

	_, err = router.ListModels(context.Background(), "mistral")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestListModelsEmptyOnFailure(t *testing.T) {
	router := NewRouter(ai.NewStaticRegistry(&fakeProvider{name: "groq", model: "m"}), nil, nil)
	names, err := router.ListModels(context.Background(), "groq")
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestNewResponseMapping(t *testing.T) {
	failed := toNewResponse(Normalize("groq", "m", "p", nil, errors.New("x"), time.Second))
	assert.False(t, failed.Success)
	assert.Equal(t, "x", failed.ErrorMessage)
	assert.Empty(t, failed.ResponseText)
	assert.Zero(t, failed.ConversationID)
}
