package llmgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	name    string
	results []CompleteResult
	errs    []error
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return CompleteResult{}, p.errs[i]
	}
	if i < len(p.results) {
		return p.results[i], nil
	}
	return CompleteResult{}, errors.New("scriptedProvider: out of script")
}

func (p *scriptedProvider) Stream(ctx context.Context, req CompleteRequest) (<-chan Chunk, error) {
	return nil, ErrStreamingUnsupported
}

func TestGateway_NoRouteForModel(t *testing.T) {
	g := NewGateway(nil, 0, time.Millisecond)
	_, err := g.Complete(context.Background(), CompleteRequest{Model: "ghost"})
	require.ErrorIs(t, err, ErrNoProviderForModel)
}

func TestGateway_RetriesTransientThenSucceeds(t *testing.T) {
	p := &scriptedProvider{
		name: "primary",
		errs: []error{&TransientError{Provider: "primary", Err: errors.New("timeout")}},
		results: []CompleteResult{
			{}, // consumed by the failed first attempt, ignored
			{Content: "ok"},
		},
	}
	g := NewGateway([]Route{{Model: "m", Providers: []Provider{p}}}, 2, time.Millisecond)

	res, err := g.Complete(context.Background(), CompleteRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, 2, p.calls)
}

func TestGateway_NonTransientErrorSurfacedImmediately(t *testing.T) {
	p := &scriptedProvider{name: "primary", errs: []error{errors.New("validation failed")}}
	g := NewGateway([]Route{{Model: "m", Providers: []Provider{p}}}, 3, time.Millisecond)

	_, err := g.Complete(context.Background(), CompleteRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, 1, p.calls, "should not retry a non-transient error")
}

func TestGateway_FallsBackToSecondProviderAfterRetriesExhausted(t *testing.T) {
	primary := &scriptedProvider{
		name: "primary",
		errs: []error{
			&TransientError{Provider: "primary", Err: errors.New("timeout")},
			&TransientError{Provider: "primary", Err: errors.New("timeout")},
		},
	}
	fallback := &scriptedProvider{name: "fallback", results: []CompleteResult{{Content: "fallback-ok"}}}

	g := NewGateway([]Route{{Model: "m", Providers: []Provider{primary, fallback}}}, 1, time.Millisecond)

	res, err := g.Complete(context.Background(), CompleteRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "fallback-ok", res.Content)
	assert.Equal(t, "fallback", res.Provider)
}

func TestGateway_AllProvidersFail(t *testing.T) {
	mkTransient := func(name string) []error {
		return []error{&TransientError{Provider: name, Err: errors.New("down")}}
	}
	primary := &scriptedProvider{name: "primary", errs: mkTransient("primary")}
	fallback := &scriptedProvider{name: "fallback", errs: mkTransient("fallback")}

	g := NewGateway([]Route{{Model: "m", Providers: []Provider{primary, fallback}}}, 0, time.Millisecond)

	_, err := g.Complete(context.Background(), CompleteRequest{Model: "m"})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
}
