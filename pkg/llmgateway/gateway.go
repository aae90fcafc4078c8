package llmgateway

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Route orders the providers to try for one model id: the primary
// first, then fallbacks in order (spec §7 "falls back to the
// configured fallback provider").
type Route struct {
	Model     string
	Providers []Provider
}

// Gateway dispatches CompleteRequests to the provider chain registered
// for the request's model, retrying transient failures with exponential
// backoff before falling through to the next provider (spec §6/§7).
type Gateway struct {
	routes     map[string][]Provider
	maxRetries int
	backoff    time.Duration
}

// NewGateway constructs a Gateway from a set of routes.
func NewGateway(routes []Route, maxRetries int, backoff time.Duration) *Gateway {
	g := &Gateway{
		routes:     make(map[string][]Provider, len(routes)),
		maxRetries: maxRetries,
		backoff:    backoff,
	}
	for _, r := range routes {
		g.routes[r.Model] = r.Providers
	}
	return g
}

// Complete implements spec §6's consumed provider interface at the
// gateway level: retries each provider on transient error, falling
// through to the next configured provider once retries are exhausted.
func (g *Gateway) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	providers, ok := g.routes[req.Model]
	if !ok || len(providers) == 0 {
		return CompleteResult{}, ErrNoProviderForModel
	}

	var lastErr error
	for _, p := range providers {
		res, err := g.completeWithRetry(ctx, p, req)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var transient *TransientError
		if !errors.As(err, &transient) {
			// Non-transient failure (validation, auth, etc.) is surfaced
			// immediately rather than tried against a fallback provider.
			return CompleteResult{}, err
		}
		slog.Warn("llm provider failed, falling back", "provider", p.Name(), "model", req.Model, "error", err)
	}

	return CompleteResult{}, errors.Join(ErrAllProvidersFailed, lastErr)
}

func (g *Gateway) completeWithRetry(ctx context.Context, p Provider, req CompleteRequest) (CompleteResult, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * g.backoff
			select {
			case <-ctx.Done():
				return CompleteResult{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		res, err := p.Complete(ctx, req)
		if err == nil {
			res.Provider = p.Name()
			return res, nil
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return CompleteResult{}, err
		}
		lastErr = err
	}
	return CompleteResult{}, lastErr
}
