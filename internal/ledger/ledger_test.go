package ledger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"keyrelay/internal/domain"
)

func event(i int, reason string) domain.QuarantineEvent {
	return domain.QuarantineEvent{
		Index:       i,
		Masked:      "sk-abc...xyz",
		Fingerprint: "0123456789ab",
		Reason:      reason,
		At:          time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}
}

// =============================================================================
// Open
// =============================================================================

func TestOpen_WhenDriverEmptyOrMemory_ShouldReturnMemoryLedger(t *testing.T) {
	for _, driver := range []string{"", "memory", " Memory "} {
		l, err := Open(context.Background(), domain.LedgerConfig{Driver: driver})
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if _, ok := l.(*MemoryLedger); !ok {
			t.Errorf("Open(%q) = %T, want *MemoryLedger", driver, l)
		}
	}
}

func TestOpen_WhenDriverUnknown_ShouldReturnError(t *testing.T) {
	l, err := Open(context.Background(), domain.LedgerConfig{Driver: "mongo"})
	if err == nil || l != nil {
		t.Fatalf("expected error and nil ledger, got %v, %v", l, err)
	}
}

func TestOpen_WhenSQLDriverWithoutURL_ShouldReturnError(t *testing.T) {
	for _, driver := range []string{"sqlite", "libsql", "redis"} {
		if _, err := Open(context.Background(), domain.LedgerConfig{Driver: driver}); err == nil {
			t.Errorf("Open(%q) without url: expected error", driver)
		}
	}
}

func TestOpen_WhenSQLite_ShouldReturnWorkingLedger(t *testing.T) {
	l, err := Open(context.Background(), domain.LedgerConfig{Driver: "sqlite", URL: "file:ledger_open.db?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	if err := l.Record(context.Background(), event(0, "401 Unauthorized")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := l.List(context.Background(), 0)
	if err != nil || len(got) == 0 {
		t.Fatalf("List = %v, %v", got, err)
	}
}

// =============================================================================
// Recorder
// =============================================================================

type failingLedger struct{ MemoryLedger }

func (f *failingLedger) Record(context.Context, domain.QuarantineEvent) error {
	return errors.New("ledger down")
}

// stalledLedger blocks every Record until release is closed or its context ends.
type stalledLedger struct {
	MemoryLedger
	entered chan struct{}
	release chan struct{}
}

func newStalledLedger() *stalledLedger {
	return &stalledLedger{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *stalledLedger) Record(ctx context.Context, ev domain.QuarantineEvent) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRecorder_Close_ShouldFlushQueuedEvents(t *testing.T) {
	l := NewMemoryLedger(10)
	r := NewRecorder(l, nil)
	r.Hook(event(1, "401 Unauthorized"))
	r.Hook(event(2, "quota exceeded"))
	r.Close()

	got, _ := l.List(context.Background(), 0)
	if len(got) != 2 {
		t.Fatalf("List = %+v, want 2 events", got)
	}
	if got[0].Index != 2 || got[0].Reason != "quota exceeded" {
		t.Errorf("newest event = %+v", got[0])
	}
}

func TestRecorder_Hook_WhenLedgerStalled_ShouldReturnImmediately(t *testing.T) {
	l := newStalledLedger()
	r := NewRecorder(l, slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))
	defer r.Close()
	defer close(l.release)

	r.Hook(event(0, "401 Unauthorized"))
	<-l.entered

	start := time.Now()
	r.Hook(event(1, "401 Unauthorized"))
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Hook blocked for %v while the ledger was stalled", elapsed)
	}
}

func TestRecorder_Hook_WhenQueueFull_ShouldDropAndWarn(t *testing.T) {
	var buf syncBuffer
	l := newStalledLedger()
	r := NewRecorder(l, slog.New(slog.NewTextHandler(&buf, nil)))
	r.Hook(event(0, ""))
	<-l.entered
	for i := 0; i <= recorderBuffer; i++ {
		r.Hook(event(i+1, ""))
	}
	if !strings.Contains(buf.String(), "queue full; event dropped") {
		t.Errorf("expected drop warning, got %q", buf.String())
	}
	close(l.release)
	r.Close()
}

func TestRecorder_Hook_WhenClosed_ShouldDropEvent(t *testing.T) {
	l := NewMemoryLedger(10)
	var buf syncBuffer
	r := NewRecorder(l, slog.New(slog.NewTextHandler(&buf, nil)))
	r.Close()
	r.Close()
	r.Hook(event(0, ""))

	if got, _ := l.List(context.Background(), 0); len(got) != 0 {
		t.Errorf("List = %+v, want empty", got)
	}
	if !strings.Contains(buf.String(), "ledger closed") {
		t.Errorf("expected closed warning, got %q", buf.String())
	}
}

func TestRecorder_WhenRecordFails_ShouldLogWithMaskedKeyOnly(t *testing.T) {
	var buf syncBuffer
	r := NewRecorder(&failingLedger{}, slog.New(slog.NewTextHandler(&buf, nil)))
	r.Hook(event(0, ""))
	r.Close()

	out := buf.String()
	if !strings.Contains(out, "quarantine ledger write failed") || !strings.Contains(out, "ledger down") {
		t.Errorf("expected error log, got %q", out)
	}
	if !strings.Contains(out, "sk-abc...xyz") {
		t.Errorf("expected masked key in log, got %q", out)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
