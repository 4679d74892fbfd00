package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"keyrelay/internal/domain"
	"keyrelay/internal/relay"
)

// CompleteOptions holds options for the complete command.
type CompleteOptions struct {
	ConfigSource
	Prompt string
}

// RunComplete sends one prompt through a freshly built pool and prints the
// reply. Quarantines it causes are written to the configured ledger.
func RunComplete(ctx context.Context, opts CompleteOptions, stdout, stderr io.Writer) int {
	if strings.TrimSpace(opts.Prompt) == "" {
		fmt.Fprintln(stderr, "Error: prompt must not be empty")
		return 1
	}
	cfg, _, err := opts.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logger := NewLogger(cfg.Infra, stderr)

	var rec domain.QuarantineLedger
	if l, err := openLedger(ctx, cfg.Ledger); err != nil {
		logger.Warn("quarantine ledger unavailable; events will only be logged", "driver", cfg.Ledger.Driver, "error", err)
	} else {
		rec = l
		defer l.Close()
	}

	r, err := buildRelay(cfg, secretLookup(stderr), relay.Options{Logger: logger, Ledger: rec})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer r.Close()

	out, err := r.Generate(ctx, opts.Prompt)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, out)
	return 0
}
