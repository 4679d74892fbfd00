package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// LedgerOptions holds options for the ledger command.
type LedgerOptions struct {
	ConfigSource
	Limit int // <= 0 lists every stored event
	JSON  bool
}

// RunLedger lists recorded quarantine events, newest first.
func RunLedger(ctx context.Context, opts LedgerOptions, stdout, stderr io.Writer) int {
	cfg, _, err := opts.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	switch cfg.Ledger.Driver {
	case "", "memory":
		fmt.Fprintln(stderr, "  ledger driver is memory: events live only inside the running daemon (see its logs)")
		return 0
	}

	l, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer l.Close()

	events, err := l.List(ctx, opts.Limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(events)
		return 0
	}
	if len(events) == 0 {
		fmt.Fprintln(stdout, "no quarantined keys recorded")
		return 0
	}
	for _, ev := range events {
		reason := ev.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(stdout, "%s  [%d] %s  fp=%s  %s\n", ev.At.UTC().Format(time.RFC3339), ev.Index, ev.Masked, ev.Fingerprint, reason)
	}
	return 0
}
