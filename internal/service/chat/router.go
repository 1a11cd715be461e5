package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"promptrelay/internal/models"
	"promptrelay/internal/service/ai"
	"promptrelay/internal/worker"
)

var (
	// ErrEmptyPrompt is returned when the prompt is missing or blank.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrUnknownProvider is returned for provider names the service cannot route to.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Store is the persistence the router writes exchanges to.
type Store interface {
	SaveExchange(ctx context.Context, conv models.NewConversation, responses []models.NewResponse) (int64, error)
}

// Dispatcher runs provider calls on a bounded pool.
type Dispatcher interface {
	Do(ctx context.Context, key string, fn func()) error
}

// Cache backs the model list cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Request is a single provider generation.
type Request struct {
	Prompt   string
	Provider string
	Model    string
	Session  string
}

// CompareRequest fans one prompt out to several providers. An empty
// Providers list means the registry's compare defaults.
type CompareRequest struct {
	Prompt    string
	Providers []string
	Session   string
}

// Comparison holds every requested provider's result keyed by name.
type Comparison struct {
	Prompt         string
	Responses      map[string]models.NormalizedResponse
	ConversationID int64
}

// Router dispatches prompts to providers, normalizes the outcomes and records them.
type Router struct {
	registry   *ai.Registry
	store      Store
	dispatcher Dispatcher
	cache      Cache
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Router)

// WithModelCache caches provider model lists.
func WithModelCache(c Cache) Option {
	return func(r *Router) { r.cache = c }
}

// WithDispatcher routes provider calls through a worker pool.
func WithDispatcher(d Dispatcher) Option {
	return func(r *Router) { r.dispatcher = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func NewRouter(registry *ai.Registry, store Store, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		registry: registry,
		store:    store,
		logger:   logger.Named("chat"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry exposes the provider registry.
func (r *Router) Registry() *ai.Registry {
	return r.registry
}

// Generate runs one provider call. Provider failures are reported in the
// result; the error is only set for invalid requests.
func (r *Router) Generate(ctx context.Context, req Request) (models.NormalizedResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return models.NormalizedResponse{}, ErrEmptyPrompt
	}
	if !r.registry.Known(req.Provider) {
		return models.NormalizedResponse{}, fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}

	result, attempted := r.call(ctx, req.Session, req.Provider, req.Prompt, req.Model)
	if attempted {
		r.save(ctx, models.NewConversation{
			Prompt:          req.Prompt,
			UserSession:     req.Session,
			ModelUsed:       req.Provider,
			ResponseSuccess: &result.Success,
		}, []models.NewResponse{toNewResponse(result)})
	}
	return result, nil
}

// Compare runs the prompt against every requested provider concurrently.
// Providers that are not configured appear as failed entries.
func (r *Router) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	names, err := r.compareSet(req.Providers)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		result    models.NormalizedResponse
		attempted bool
	}
	outcomes := make([]outcome, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			res, attempted := r.call(ctx, req.Session, name, req.Prompt, "")
			outcomes[i] = outcome{result: res, attempted: attempted}
		}(i, name)
	}
	wg.Wait()

	cmp := &Comparison{
		Prompt:    req.Prompt,
		Responses: make(map[string]models.NormalizedResponse, len(names)),
	}
	var (
		responses []models.NewResponse
		anyOK     bool
	)
	for i, name := range names {
		o := outcomes[i]
		cmp.Responses[name] = o.result
		if o.attempted {
			responses = append(responses, toNewResponse(o.result))
		}
		anyOK = anyOK || o.result.Success
	}
	cmp.ConversationID = r.save(ctx, models.NewConversation{
		Prompt:          req.Prompt,
		UserSession:     req.Session,
		ModelUsed:       "compare",
		ResponseSuccess: &anyOK,
	}, responses)
	return cmp, nil
}

func (r *Router) compareSet(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return r.registry.CompareDefaults(), nil
	}
	names := make([]string, 0, len(requested))
	for _, name := range requested {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || slices.Contains(names, name) {
			continue
		}
		if !r.registry.Known(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return r.registry.CompareDefaults(), nil
	}
	return names, nil
}

// call invokes one provider and reports whether a call was actually attempted.
func (r *Router) call(ctx context.Context, session, name, prompt, model string) (models.NormalizedResponse, bool) {
	p, err := r.registry.Get(name)
	if err != nil {
		return Normalize(name, model, prompt, nil, err, 0), false
	}
	if model == "" {
		model = p.DefaultModel()
	}

	start := r.now()
	var out struct {
		res *ai.Result
		err error
	}
	generate := func() { out.res, out.err = p.GenerateText(ctx, prompt, model) }
	if r.dispatcher == nil {
		generate()
	} else if derr := r.dispatcher.Do(ctx, session, generate); derr != nil {
		return Normalize(name, model, prompt, nil, dispatchError(name, derr), r.now().Sub(start)), true
	}
	return Normalize(name, model, prompt, out.res, out.err, r.now().Sub(start)), true
}

func dispatchError(provider string, err error) error {
	switch {
	case errors.Is(err, worker.ErrDispatcherBusy):
		return &ai.Error{Kind: ai.KindUnavailable, Provider: provider, Message: worker.ErrDispatcherBusy.Error(), Retryable: true}
	case errors.Is(err, worker.ErrDispatcherStopped):
		return &ai.Error{Kind: ai.KindUnavailable, Provider: provider, Message: "service is shutting down"}
	default:
		return ai.ClassifyError(provider, err)
	}
}

// save records an exchange best effort; failures are logged, never returned.
func (r *Router) save(ctx context.Context, conv models.NewConversation, responses []models.NewResponse) int64 {
	if r.store == nil {
		return 0
	}
	id, err := r.store.SaveExchange(context.WithoutCancel(ctx), conv, responses)
	if err != nil {
		r.logger.Warn("save conversation failed", zap.Error(err), zap.Int("responses", len(responses)))
		return 0
	}
	return id
}
