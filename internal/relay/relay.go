// Package relay assembles a key pool, its pooled provider and the retry
// layer into one unit, and lets the daemon swap that unit on config reload.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"keyrelay/internal/domain"
	"keyrelay/internal/ledger"
	"keyrelay/internal/llm"
	"keyrelay/internal/retry"
)

// Options carries the collaborators shared by every relay the daemon builds.
type Options struct {
	Logger *slog.Logger
	Ledger domain.QuarantineLedger // nil disables recording
	Meter  metric.Meter            // nil uses the global meter provider
}

// Relay is one generation of the credential pool and the provider stack over it.
type Relay struct {
	Pool     *llm.KeyPool
	Provider domain.LLMProvider // pooled provider, wrapped with retry when configured

	pooled   *llm.PooledProvider
	recorder *ledger.Recorder
}

// Build resolves keys from cfg (and getSecret as fallback), then builds the pool,
// the pooled provider and the retry wrapper. Errors wrap llm.ErrNoKeys when no
// key is configured anywhere.
func Build(cfg *domain.Config, getSecret llm.SecretGetter, opts Options) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("relay: nil config")
	}
	keys, err := llm.ResolveKeys(&cfg.Pool, getSecret)
	if err != nil {
		return nil, err
	}
	factory, err := llm.NewClientFactory(&cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	poolOpts := []llm.Option{llm.WithLogger(opts.Logger)}
	var rec *ledger.Recorder
	if opts.Ledger != nil {
		rec = ledger.NewRecorder(opts.Ledger, opts.Logger)
		poolOpts = append(poolOpts, llm.WithQuarantineHook(rec.Hook))
	}
	pool, err := llm.NewKeyPool(keys, factory, poolOpts...)
	if err != nil {
		closeRecorder(rec)
		return nil, err
	}

	var pooledOpts []llm.PooledOption
	if opts.Meter != nil {
		pooledOpts = append(pooledOpts, llm.WithMeter(opts.Meter))
	}
	pooled, err := llm.NewPooledProvider(pool, pooledOpts...)
	if err != nil {
		closeRecorder(rec)
		return nil, fmt.Errorf("relay: %w", err)
	}

	provider := llm.WrapWithRetry(pooled, &cfg.Retry)
	if rp, ok := provider.(*retry.RetryableProvider); ok {
		rp.WithLogger(opts.Logger)
	}
	return &Relay{Pool: pool, Provider: provider, pooled: pooled, recorder: rec}, nil
}

func closeRecorder(rec *ledger.Recorder) {
	if rec != nil {
		rec.Close()
	}
}

// Generate sends prompt through the relay's provider stack.
func (r *Relay) Generate(ctx context.Context, prompt string) (string, error) {
	return r.Provider.Generate(ctx, prompt)
}

// Close flushes queued ledger writes and releases the relay's metric
// registrations. Requests already holding the relay keep working, but
// quarantines they cause are no longer recorded.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	closeRecorder(r.recorder)
	if r.pooled == nil {
		return nil
	}
	return r.pooled.Close()
}

// Holder publishes the current Relay. Requests load it once and keep using
// that generation even if a reload swaps in a new one mid-flight.
type Holder struct {
	cur       atomic.Pointer[Relay]
	rebuildMu sync.Mutex // orders concurrent reloads (watcher and SIGHUP)
	logger    *slog.Logger
}

// NewHolder returns a Holder serving r. A nil logger uses slog.Default().
func NewHolder(r *Relay, logger *slog.Logger) *Holder {
	h := &Holder{logger: logger}
	h.cur.Store(r)
	return h
}

func (h *Holder) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

// Load returns the current relay.
func (h *Holder) Load() *Relay { return h.cur.Load() }

// Swap installs r and closes the relay it replaces.
func (h *Holder) Swap(r *Relay) {
	if r == nil {
		return
	}
	if old := h.cur.Swap(r); old != nil && old != r {
		if err := old.Close(); err != nil {
			h.log().Warn("closing previous relay", "error", err)
		}
	}
}

// Rebuild builds a relay from cfg and swaps it in. On failure the current
// relay stays in place and the error is returned.
func (h *Holder) Rebuild(cfg *domain.Config, getSecret llm.SecretGetter, opts Options) error {
	h.rebuildMu.Lock()
	defer h.rebuildMu.Unlock()
	r, err := Build(cfg, getSecret, opts)
	if err != nil {
		h.log().Error("relay rebuild failed; keeping current key pool", "error", err)
		return err
	}
	h.Swap(r)
	st := r.Pool.Status()
	h.log().Info("key pool reloaded", "total", st.Total, "available", st.Available)
	return nil
}

// Generate implements domain.LLMProvider against the current relay.
func (h *Holder) Generate(ctx context.Context, prompt string) (string, error) {
	return h.Load().Generate(ctx, prompt)
}

// Status reports the current pool.
func (h *Holder) Status() llm.PoolStatus {
	return h.Load().Pool.Status()
}

var (
	_ domain.LLMProvider = (*Relay)(nil)
	_ domain.LLMProvider = (*Holder)(nil)
)
