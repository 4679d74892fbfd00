package domain

import "context"

// LLMProvider is the model-agnostic interface for text generation.
// Implementations may be a single OpenAI-compatible client, a pooled provider
// rotating across many keys, a retry decorator, or a local echo provider.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QuarantineLedger durably records keys taken out of rotation so operators can
// see which credentials were quarantined and why. Implementations must never
// store the raw credential; only the masked form and fingerprint.
type QuarantineLedger interface {
	// Record appends one quarantine event.
	Record(ctx context.Context, ev QuarantineEvent) error

	// List returns up to limit events, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]QuarantineEvent, error)

	// Close releases any connection held by the ledger.
	Close() error
}
