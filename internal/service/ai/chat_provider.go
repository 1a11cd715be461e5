package ai

import (
	"context"
	"errors"
	"io"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const listModelsTimeout = 10 * time.Second

// ModelLister enumerates the models a vendor exposes.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// chatProvider adapts an eino chat model to Provider. Vendors differ only in
// the chat model and lister they are built with.
type chatProvider struct {
	name         string
	defaultModel string
	chat         model.BaseChatModel
	lister       ModelLister
	timeout      time.Duration
	logger       *zap.Logger
}

// NewChatProvider wraps an eino chat model. A zero timeout disables the per-call deadline.
func NewChatProvider(name, defaultModel string, chat model.BaseChatModel, lister ModelLister, timeout time.Duration, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &chatProvider{
		name:         name,
		defaultModel: defaultModel,
		chat:         chat,
		lister:       lister,
		timeout:      timeout,
		logger:       logger.Named(name),
	}
}

func (p *chatProvider) Name() string         { return p.name }
func (p *chatProvider) DefaultModel() string { return p.defaultModel }

func (p *chatProvider) GenerateText(ctx context.Context, prompt, modelName string) (*Result, error) {
	modelName = p.resolveModel(modelName)
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	msg, err := p.chat.Generate(ctx, buildMessages(prompt), callOptions(modelName)...)
	if err != nil {
		p.logger.Debug("generate failed", zap.String("model", modelName), zap.Error(err))
		return nil, ClassifyError(p.name, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, &Error{Kind: KindProviderError, Provider: p.name, Message: emptyResponseMessage}
	}
	return &Result{Text: msg.Content, Model: modelName, TokensUsed: tokensUsed(msg)}, nil
}

func (p *chatProvider) GenerateTextStream(ctx context.Context, prompt, modelName string) iter.Seq[Fragment] {
	modelName = p.resolveModel(modelName)
	return func(yield func(Fragment) bool) {
		ctx, cancel := p.withTimeout(ctx)
		defer cancel()

		sr, err := p.chat.Stream(ctx, buildMessages(prompt), callOptions(modelName)...)
		if err != nil {
			yield(errorFragment(ClassifyError(p.name, err)))
			return
		}
		defer sr.Close()

		for {
			chunk, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(errorFragment(ClassifyError(p.name, err)))
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			if !yield(Fragment{Text: chunk.Content}) {
				return
			}
		}
	}
}

func (p *chatProvider) ListModels(ctx context.Context) []string {
	if p.lister == nil {
		return []string{p.defaultModel}
	}
	ctx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()
	names, err := p.lister.ListModels(ctx)
	if err != nil {
		p.logger.Warn("list models failed", zap.Error(err))
		return []string{}
	}
	names = slices.Clone(names)
	slices.Sort(names)
	return slices.Compact(names)
}

func (p *chatProvider) resolveModel(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return p.defaultModel
}

func (p *chatProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func buildMessages(prompt string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(prompt),
	}
}

func callOptions(modelName string) []model.Option {
	return []model.Option{
		model.WithModel(modelName),
		model.WithTemperature(DefaultTemperature),
		model.WithMaxTokens(DefaultMaxTokens),
	}
}

func tokensUsed(msg *schema.Message) *int64 {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	total := int64(msg.ResponseMeta.Usage.TotalTokens)
	if total <= 0 {
		return nil
	}
	return &total
}
