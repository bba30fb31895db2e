package providers

import (
	"context"

	"github.com/dshills/conclave/internal/cache"
	"github.com/dshills/conclave/internal/metrics"
)

// Cached memoizes successful responses of another Provider.
type Cached struct {
	next  Provider
	store *cache.Cache
	model string
}

// WithCache wraps p so identical requests to the same model are answered
// from store. A nil or disabled store returns p unchanged.
func WithCache(p Provider, store *cache.Cache, model string) Provider {
	if store == nil || !store.Enabled() {
		return p
	}
	return &Cached{next: p, store: store, model: model}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Complete(ctx context.Context, req Request) (Response, error) {
	key := requestKey(c.next.Name(), c.model, req)
	var resp Response
	if c.store.Get(key, &resp) {
		metrics.ObserveCacheLookup(true)
		return resp, nil
	}
	metrics.ObserveCacheLookup(false)

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return Response{}, err
	}
	_ = c.store.Put(key, resp)
	return resp, nil
}

func requestKey(provider, model string, req Request) string {
	tier := req.Tier
	if tier == "" {
		tier = TierPrimary
	}
	return cache.BuildKey(provider, model, string(tier), req.SharedContext, req.SystemPrompt, req.UserPrompt)
}
