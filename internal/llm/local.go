package llm

import (
	"context"

	"keyrelay/internal/domain"
)

// LocalProvider answers without any network call. It lets the gateway and CLI
// run end to end without real credentials. It implements domain.LLMProvider.
type LocalProvider struct {
	Prefix string // prepended to the prompt in the response
}

// NewLocalProvider returns a local provider that echoes the prompt with an optional prefix.
func NewLocalProvider(prefix string) *LocalProvider {
	return &LocalProvider{Prefix: prefix}
}

// LocalClientFactory binds one LocalProvider per key. Each reply is tagged with
// the masked key so rotation is visible in the output.
func LocalClientFactory() ClientFactory {
	return func(key string) domain.LLMProvider {
		return NewLocalProvider("[" + MaskKey(key) + "] ")
	}
}

// Generate implements domain.LLMProvider.
func (p *LocalProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Prefix + prompt, nil
}

var _ domain.LLMProvider = (*LocalProvider)(nil)
