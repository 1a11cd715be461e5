package ai

import (
	"context"
	"slices"
	"sort"

	"go.uber.org/zap"

	"promptrelay/internal/config"
)

// ProviderStatus describes one provider for discovery endpoints.
type ProviderStatus struct {
	Name         string `json:"name"`
	Configured   bool   `json:"configured"`
	DefaultModel string `json:"default_model,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Registry holds the providers enabled for the process lifetime.
type Registry struct {
	providers map[string]Provider
	disabled  map[string]string
}

// NewRegistry builds every provider that has credentials. A provider whose
// construction fails is disabled rather than aborting startup.
func NewRegistry(ctx context.Context, cfg config.ProvidersConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ai")
	r := &Registry{
		providers: map[string]Provider{},
		disabled:  map[string]string{},
	}
	byName := cfg.ByName()
	for _, name := range KnownProviders {
		pc := byName[name]
		if !pc.Enabled() {
			r.disabled[name] = "not configured"
			logger.Info("provider disabled", zap.String("provider", name), zap.String("reason", "missing api key"))
			continue
		}
		modelName := DefaultModel(name, pc)
		chat, lister, err := builders[name](ctx, pc, modelName)
		if err != nil {
			r.disabled[name] = err.Error()
			logger.Warn("provider init failed", zap.String("provider", name), zap.Error(err))
			continue
		}
		r.providers[name] = NewChatProvider(name, modelName, chat, lister, pc.Timeout(), logger)
		logger.Info("provider enabled", zap.String("provider", name), zap.String("model", modelName))
	}
	return r
}

// NewStaticRegistry registers ready-made providers, mainly for tests.
func NewStaticRegistry(providers ...Provider) *Registry {
	r := &Registry{
		providers: map[string]Provider{},
		disabled:  map[string]string{},
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	for _, name := range KnownProviders {
		if _, ok := r.providers[name]; !ok {
			r.disabled[name] = "not configured"
		}
	}
	return r
}

// Get returns the provider or a NotConfigured error.
func (r *Registry) Get(name string) (Provider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, NotConfigured(name)
}

// Known reports whether name is a provider this service can route to.
func (r *Registry) Known(name string) bool {
	if _, ok := r.providers[name]; ok {
		return true
	}
	return slices.Contains(KnownProviders, name)
}

// Names lists every known provider, configured or not.
func (r *Registry) Names() []string {
	names := slices.Clone(KnownProviders)
	var extra []string
	for name := range r.providers {
		if !slices.Contains(names, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// CompareDefaults is the provider set a comparison covers when none are
// named: the core providers, plus any other provider that is configured.
func (r *Registry) CompareDefaults() []string {
	names := slices.Clone(CoreProviders)
	for _, name := range r.Names() {
		if _, ok := r.providers[name]; ok && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// Configured lists the enabled providers in display order.
func (r *Registry) Configured() []string {
	var names []string
	for _, name := range r.Names() {
		if _, ok := r.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (r *Registry) Status() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(r.providers)+len(r.disabled))
	for _, name := range r.Names() {
		if p, ok := r.providers[name]; ok {
			out = append(out, ProviderStatus{Name: name, Configured: true, DefaultModel: p.DefaultModel()})
			continue
		}
		out = append(out, ProviderStatus{Name: name, Reason: r.disabled[name]})
	}
	return out
}
