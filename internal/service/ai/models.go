package ai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// openAILister lists models from any OpenAI-compatible /models endpoint.
type openAILister struct {
	client *goopenai.Client
}

func newOpenAILister(apiKey, baseURL string) *openAILister {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAILister{client: goopenai.NewClientWithConfig(cfg)}
}

func (l *openAILister) ListModels(ctx context.Context) ([]string, error) {
	list, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

type geminiLister struct {
	client *genai.Client
}

func (l *geminiLister) ListModels(ctx context.Context) ([]string, error) {
	page, err := l.client.Models.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	names := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		if m == nil {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

// staticLister serves a configured list for vendors without a listing endpoint.
type staticLister []string

func (l staticLister) ListModels(context.Context) ([]string, error) {
	return []string(l), nil
}
