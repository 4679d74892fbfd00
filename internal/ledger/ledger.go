// Package ledger records quarantined keys so operators can see which
// credentials were pulled from rotation and why. Only masked keys and
// fingerprints are stored.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"keyrelay/internal/domain"
)

// DefaultMaxLen caps the memory and redis ledgers when no limit is configured.
const DefaultMaxLen = 1000

// hookTimeout bounds a single Record made by a Recorder.
var hookTimeout = 5 * time.Second

// Open returns the ledger selected by cfg.Driver. An empty driver means "memory".
func Open(ctx context.Context, cfg domain.LedgerConfig) (domain.QuarantineLedger, error) {
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryLedger(maxLen), nil
	case "sqlite", "libsql":
		if cfg.URL == "" {
			return nil, fmt.Errorf("ledger: %s driver requires a url", cfg.Driver)
		}
		l, err := OpenSQL(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "redis":
		if cfg.URL == "" {
			return nil, fmt.Errorf("ledger: redis driver requires a url")
		}
		l, err := OpenRedis(ctx, cfg.URL, maxLen)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("ledger: unknown driver %q", cfg.Driver)
	}
}

// recorderBuffer is the number of quarantine events a Recorder queues before
// it starts dropping them.
const recorderBuffer = 64

// Recorder writes quarantine events to a ledger from a single background
// goroutine, so the key pool never waits on ledger I/O. Events that arrive
// while the queue is full, or after Close, are logged and dropped.
type Recorder struct {
	l      domain.QuarantineLedger
	logger *slog.Logger
	events chan domain.QuarantineEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a Recorder over l. A nil logger uses slog.Default().
func NewRecorder(l domain.QuarantineLedger, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		l:      l,
		logger: logger,
		events: make(chan domain.QuarantineEvent, recorderBuffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		if err := r.l.Record(ctx, ev); err != nil {
			r.logger.Error("quarantine ledger write failed", "key", ev.Masked, "error", err)
		}
		cancel()
	}
}

// Hook queues ev and returns immediately. It has the signature of a key pool
// quarantine hook.
func (r *Recorder) Hook(ev domain.QuarantineEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("quarantine ledger closed; event dropped", "key", ev.Masked)
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("quarantine ledger queue full; event dropped", "key", ev.Masked)
	}
}

// Close stops accepting events and waits until the queued ones are written.
// The underlying ledger is not closed. Close is safe to call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}
