package ledger

import (
	"context"
	"sync"

	"keyrelay/internal/domain"
)

// MemoryLedger keeps the most recent events in process memory.
type MemoryLedger struct {
	mu     sync.Mutex
	events []domain.QuarantineEvent
	maxLen int
}

// NewMemoryLedger returns a ledger holding at most maxLen events (DefaultMaxLen if maxLen <= 0).
func NewMemoryLedger(maxLen int) *MemoryLedger {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &MemoryLedger{maxLen: maxLen}
}

func (m *MemoryLedger) Record(_ context.Context, ev domain.QuarantineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if over := len(m.events) - m.maxLen; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	return nil
}

// List returns up to limit events, newest first. limit <= 0 returns all.
func (m *MemoryLedger) List(_ context.Context, limit int) ([]domain.QuarantineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.QuarantineEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *MemoryLedger) Close() error { return nil }

var _ domain.QuarantineLedger = (*MemoryLedger)(nil)
