package llm

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"keyrelay/internal/domain"
)

// ErrNoKeys is returned by NewKeyPool when no usable credentials were supplied.
// It is a configuration error: callers must not continue without a pool.
var ErrNoKeys = errors.New("keypool: at least one API key is required")

// ClientFactory builds the client bound to a single API key. NewKeyPool calls it
// exactly once per key, in rotation order, and never rebuilds a client.
type ClientFactory func(key string) domain.LLMProvider

// Handle is the client bound to one key of a KeyPool. Callers pass it back to
// MarkBad when a request made through it fails with an auth or quota error.
type Handle struct {
	Client domain.LLMProvider

	pool  *KeyPool
	index int
}

// Index returns the position of the handle's key in rotation order.
func (h *Handle) Index() int { return h.index }

// Option is a functional option for configuring a KeyPool.
type Option func(*KeyPool)

// WithLogger sets a structured logger for the pool. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(kp *KeyPool) {
		if l != nil {
			kp.logger = l
		}
	}
}

// WithQuarantineHook registers fn to be called after a key is quarantined.
// Hooks run outside the pool lock; a panicking hook is recovered and logged.
func WithQuarantineHook(fn func(domain.QuarantineEvent)) Option {
	return func(kp *KeyPool) {
		if fn != nil {
			kp.hooks = append(kp.hooks, fn)
		}
	}
}

// KeyPool hands out API keys in round-robin order and permanently skips keys
// that callers report as bad. KeyPool is safe for concurrent use.
type KeyPool struct {
	keys    []string
	handles []*Handle

	mu      sync.Mutex
	nextIdx int
	bad     map[string]struct{}

	logger  *slog.Logger
	hooks   []func(domain.QuarantineEvent)
	nowFunc func() time.Time
}

// NewKeyPool creates a pool over keys, binding one client per key through factory.
// keys are expected to be trimmed with empty entries removed (see SplitKeys).
// A nil factory yields handles without a client, for callers that only need rotation.
// Returns ErrNoKeys if keys is empty or nil.
func NewKeyPool(keys []string, factory ClientFactory, opts ...Option) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	kp := &KeyPool{
		keys:    append([]string(nil), keys...),
		handles: make([]*Handle, len(keys)),
		bad:     make(map[string]struct{}),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(kp)
	}
	for i, k := range kp.keys {
		h := &Handle{pool: kp, index: i}
		if factory != nil {
			h.Client = factory(k)
		}
		kp.handles[i] = h
	}
	kp.log().Info("key pool initialized", "total", len(kp.keys), "available", len(kp.keys))
	return kp, nil
}

func (kp *KeyPool) log() *slog.Logger {
	if kp.logger != nil {
		return kp.logger
	}
	return slog.Default()
}

// Next returns the handle for the next usable key, scanning at most one full
// revolution from the cursor. The cursor moves one past the winner. When every
// key is quarantined Next returns (nil, false).
func (kp *KeyPool) Next() (*Handle, bool) {
	kp.mu.Lock()
	n := len(kp.keys)
	for i := 0; i < n; i++ {
		idx := (kp.nextIdx + i) % n
		if _, isBad := kp.bad[kp.keys[idx]]; isBad {
			continue
		}
		kp.nextIdx = (idx + 1) % n
		h := kp.handles[idx]
		kp.mu.Unlock()
		return h, true
	}
	kp.mu.Unlock()

	kp.log().Error("no usable API keys remain", "total", n)
	return nil, false
}

// MarkBad quarantines the key behind h for the rest of the pool's lifetime.
// Marking an already quarantined key, a nil handle, or a handle from another
// pool is a no-op.
func (kp *KeyPool) MarkBad(h *Handle) {
	kp.MarkBadReason(h, "")
}

// MarkBadReason is MarkBad with a short reason (e.g. "401 Unauthorized")
// attached to the log entry and the quarantine event.
func (kp *KeyPool) MarkBadReason(h *Handle, reason string) {
	if h == nil || h.pool != kp {
		return
	}

	kp.mu.Lock()
	if h.index < 0 || h.index >= len(kp.handles) || kp.handles[h.index] != h {
		kp.mu.Unlock()
		return
	}
	key := kp.keys[h.index]
	if _, already := kp.bad[key]; already {
		kp.mu.Unlock()
		return
	}
	kp.bad[key] = struct{}{}
	available := len(kp.keys) - len(kp.bad)
	kp.mu.Unlock()

	ev := domain.QuarantineEvent{
		Index:       h.index,
		Masked:      MaskKey(key),
		Fingerprint: Fingerprint(key),
		Reason:      reason,
		At:          kp.nowFunc(),
	}
	kp.log().Warn("API key quarantined", "key", ev.Masked, "index", ev.Index, "reason", reason, "available", available)
	kp.notify(ev)
}

func (kp *KeyPool) notify(ev domain.QuarantineEvent) {
	for _, hook := range kp.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					kp.log().Error("quarantine hook panicked", "key", ev.Masked, "panic", r)
				}
			}()
			hook(ev)
		}()
	}
}

// AvailableCount returns the number of keys minus the number of distinct
// quarantined keys. With repeated keys this can exceed the number of positions
// Next will still serve.
func (kp *KeyPool) AvailableCount() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return len(kp.keys) - len(kp.bad)
}

// Len returns the total number of keys in the pool.
func (kp *KeyPool) Len() int {
	return len(kp.keys)
}

// KeyStatus describes one key for status output. The raw key is never included.
type KeyStatus struct {
	Index  int    `json:"index"`
	Masked string `json:"masked"`
	Bad    bool   `json:"bad"`
}

// PoolStatus is a point-in-time view of the pool.
type PoolStatus struct {
	Total     int               `json:"total"`
	Available int               `json:"available"`
	Health    domain.PoolHealth `json:"status"`
	Keys      []KeyStatus       `json:"keys,omitempty"`
}

// Status returns a snapshot of the pool with masked keys.
func (kp *KeyPool) Status() PoolStatus {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	st := PoolStatus{
		Total:     len(kp.keys),
		Available: len(kp.keys) - len(kp.bad),
		Keys:      make([]KeyStatus, len(kp.keys)),
	}
	st.Health = domain.HealthFor(st.Total, st.Available)
	for i, k := range kp.keys {
		_, isBad := kp.bad[k]
		st.Keys[i] = KeyStatus{Index: i, Masked: MaskKey(k), Bad: isBad}
	}
	return st
}
