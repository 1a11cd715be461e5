package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"promptrelay/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"

	groqBaseURL = "https://api.groq.com/openai/v1"
)

// KnownProviders lists every provider the service can route to, in display order.
var KnownProviders = []string{ProviderOpenAI, ProviderClaude, ProviderGroq, ProviderGemini}

// CoreProviders are always part of a default comparison, configured or not.
var CoreProviders = []string{ProviderOpenAI, ProviderClaude, ProviderGroq}

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o",
	ProviderClaude: "claude-3-5-sonnet-20241022",
	ProviderGroq:   "llama3-8b-8192",
	ProviderGemini: "gemini-2.0-flash",
}

// DefaultModel returns the configured model or the built-in default for name.
func DefaultModel(name string, cfg config.ProviderConfig) string {
	if m := strings.TrimSpace(cfg.Model); m != "" {
		return m
	}
	return defaultModels[name]
}

type builder func(ctx context.Context, cfg config.ProviderConfig, modelName string) (model.BaseChatModel, ModelLister, error)

var builders = map[string]builder{
	ProviderOpenAI: buildOpenAI,
	ProviderClaude: buildClaude,
	ProviderGroq:   buildGroq,
	ProviderGemini: buildGemini,
}

func buildOpenAI(ctx context.Context, cfg config.ProviderConfig, modelName string) (model.BaseChatModel, ModelLister, error) {
	return buildOpenAICompatible(ctx, cfg, cfg.BaseURL, modelName)
}

func buildGroq(ctx context.Context, cfg config.ProviderConfig, modelName string) (model.BaseChatModel, ModelLister, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	return buildOpenAICompatible(ctx, cfg, baseURL, modelName)
}

func buildOpenAICompatible(ctx context.Context, cfg config.ProviderConfig, baseURL, modelName string) (model.BaseChatModel, ModelLister, error) {
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
		Model:   modelName,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("openai chat model: %w", err)
	}
	var lister ModelLister = newOpenAILister(cfg.APIKey, baseURL)
	if len(cfg.Models) > 0 {
		lister = staticLister(cfg.Models)
	}
	return chat, lister, nil
}

func buildClaude(ctx context.Context, cfg config.ProviderConfig, modelName string) (model.BaseChatModel, ModelLister, error) {
	var baseURL *string
	if cfg.BaseURL != "" {
		baseURL = &cfg.BaseURL
	}
	chat, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     modelName,
		BaseURL:   baseURL,
		MaxTokens: DefaultMaxTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("claude chat model: %w", err)
	}
	models := cfg.Models
	if len(models) == 0 {
		models = []string{modelName}
	}
	return chat, staticLister(models), nil
}

func buildGemini(ctx context.Context, cfg config.ProviderConfig, modelName string) (model.BaseChatModel, ModelLister, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini client: %w", err)
	}
	chat, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  modelName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gemini chat model: %w", err)
	}
	var lister ModelLister = &geminiLister{client: client}
	if len(cfg.Models) > 0 {
		lister = staticLister(cfg.Models)
	}
	return chat, lister, nil
}
