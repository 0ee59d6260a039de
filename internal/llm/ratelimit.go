package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/agentive-ai/fleet/internal/types"
)

// RateLimited wraps a provider with a client-side request rate limiter.
// Complete blocks until the limiter grants a slot or the context ends.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

var _ Provider = (*RateLimited)(nil)

// NewRateLimited wraps the provider, allowing requestsPerSecond sustained
// requests with a burst of one.
func NewRateLimited(inner Provider, requestsPerSecond float64) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (r *RateLimited) Name() string {
	return r.inner.Name()
}

func (r *RateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, types.WrapError(types.LLM_REQUEST_FAILED, "rate limiter wait canceled", err)
	}
	return r.inner.Complete(ctx, req)
}
