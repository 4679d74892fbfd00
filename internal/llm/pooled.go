package llm

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"keyrelay/internal/domain"
)

// PooledProvider implements domain.LLMProvider on top of a KeyPool. Each call
// takes the next usable key. When the API rejects that key with an auth or
// quota error, the key is quarantined and the call moves on to the next one.
type PooledProvider struct {
	pool    *KeyPool
	metrics *poolMetrics
}

// PooledOption configures a PooledProvider.
type PooledOption func(*pooledOptions)

type pooledOptions struct {
	meter metric.Meter
}

// WithMeter sets the OpenTelemetry meter. Default is otel.Meter("keyrelay/llm").
func WithMeter(m metric.Meter) PooledOption {
	return func(o *pooledOptions) { o.meter = m }
}

// NewPooledProvider wraps pool. Every handle in pool must carry a client.
func NewPooledProvider(pool *KeyPool, opts ...PooledOption) (*PooledProvider, error) {
	if pool == nil {
		return nil, errors.New("pooled provider: pool must not be nil")
	}
	for i, h := range pool.handles {
		if h.Client == nil {
			return nil, fmt.Errorf("pooled provider: key %d has no client", i)
		}
	}
	var o pooledOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &PooledProvider{
		pool:    pool,
		metrics: newPoolMetrics(o.meter, pool),
	}, nil
}

// Pool returns the underlying key pool.
func (p *PooledProvider) Pool() *KeyPool { return p.pool }

// Generate implements domain.LLMProvider. It returns ErrNoUsableKeys once
// every key is quarantined. Non-credential errors are returned unchanged
// so an outer retry layer can decide what to do with them.
func (p *PooledProvider) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < p.pool.Len(); attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		h, ok := p.pool.Next()
		if !ok {
			p.metrics.request(ctx, outcomeExhausted)
			if lastErr != nil {
				return "", fmt.Errorf("%w: %w", ErrNoUsableKeys, lastErr)
			}
			return "", ErrNoUsableKeys
		}

		out, err := h.Client.Generate(ctx, prompt)
		if err == nil {
			p.metrics.request(ctx, outcomeOK)
			return out, nil
		}
		if !IsCredentialError(err) {
			p.metrics.request(ctx, outcomeError)
			return "", err
		}
		p.pool.MarkBadReason(h, credentialReason(err))
		p.metrics.quarantine(ctx)
		lastErr = err
	}
	p.metrics.request(ctx, outcomeExhausted)
	return "", fmt.Errorf("%w after %d attempts: %w", ErrNoUsableKeys, p.pool.Len(), lastErr)
}

// Close unregisters the provider's metric callbacks. The pool is left intact.
func (p *PooledProvider) Close() error {
	return p.metrics.close()
}

var _ domain.LLMProvider = (*PooledProvider)(nil)
