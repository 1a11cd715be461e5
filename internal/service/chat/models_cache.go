package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"promptrelay/internal/redis"
)

const (
	modelCachePrefix = "promptrelay:models:"
	modelCacheTTL    = 10 * time.Minute
)

// ListModels returns the provider's model identifiers. Listing failures yield
// an empty list; only an unconfigured or unknown provider is an error.
func (r *Router) ListModels(ctx context.Context, provider string) ([]string, error) {
	if !r.registry.Known(provider) {
		return nil, ErrUnknownProvider
	}
	p, err := r.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	key := modelCachePrefix + provider
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			var names []string
			if err := json.Unmarshal([]byte(raw), &names); err == nil {
				return names, nil
			}
		case !errors.Is(err, redis.ErrCacheMiss):
			r.logger.Debug("read cached models", zap.String("provider", provider), zap.Error(err))
		}
	}

	names := p.ListModels(ctx)
	if names == nil {
		names = []string{}
	}
	if r.cache != nil && len(names) > 0 {
		if raw, err := json.Marshal(names); err == nil {
			if err := r.cache.Set(ctx, key, raw, modelCacheTTL); err != nil {
				r.logger.Debug("cache models", zap.String("provider", provider), zap.Error(err))
			}
		}
	}
	return names, nil
}
