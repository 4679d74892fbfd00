package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"keyrelay/internal/domain"
	"keyrelay/internal/retry"
)

// DefaultSecretName is the secrets store entry consulted when no keys are configured.
const DefaultSecretName = "openai_api_keys"

// SecretGetter returns a secret by name (e.g. "openai_api_keys"). A missing
// secret should be reported as ("", nil).
type SecretGetter func(name string) (string, error)

// SplitKeys splits a delimited key list by commas, trims whitespace, and drops
// empty entries and repeats. Rotation order follows first appearance.
func SplitKeys(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		keys = append(keys, trimmed)
	}
	return keys
}

// ResolveKeys returns the pool's keys: cfg.APIKeys when set, otherwise the
// secret named cfg.SecretName (default DefaultSecretName). getSecret may be nil.
// Returns an error wrapping ErrNoKeys when neither source yields a key.
func ResolveKeys(cfg *domain.PoolConfig, getSecret SecretGetter) ([]string, error) {
	if cfg != nil {
		if keys := SplitKeys(cfg.APIKeys); len(keys) > 0 {
			return keys, nil
		}
	}
	secretName := DefaultSecretName
	if cfg != nil && cfg.SecretName != "" {
		secretName = cfg.SecretName
	}
	if getSecret != nil {
		raw, err := getSecret(secretName)
		if err != nil {
			return nil, fmt.Errorf("keypool secret %q: %w", secretName, err)
		}
		if keys := SplitKeys(raw); len(keys) > 0 {
			return keys, nil
		}
	}
	return nil, fmt.Errorf("%w (set OPENAI_API_KEYS or store with: keyrelay secrets set %s <k1,k2,...>)", ErrNoKeys, secretName)
}

// NewClientFactory returns the ClientFactory for cfg.Provider: "openai" (the
// default) or "local".
func NewClientFactory(cfg *domain.PoolConfig) (ClientFactory, error) {
	if cfg == nil {
		cfg = &domain.PoolConfig{}
	}
	switch cfg.Provider {
	case "", "openai":
		httpClient := &http.Client{}
		if cfg.TimeoutSeconds > 0 {
			httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		return OpenAIClientFactory(cfg.BaseURL, cfg.Model, httpClient), nil
	case "local":
		return LocalClientFactory(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (use: openai, local)", cfg.Provider)
	}
}

// WrapWithRetry decorates a provider with retry logic when config is supplied.
func WrapWithRetry(provider domain.LLMProvider, retryCfg *domain.RetryConfig) domain.LLMProvider {
	if retryCfg == nil || retryCfg.MaxRetries <= 0 {
		return provider
	}
	cfg := retry.Config{
		MaxRetries:     retryCfg.MaxRetries,
		InitialBackoff: time.Duration(retryCfg.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(retryCfg.MaxBackoff) * time.Millisecond,
		Multiplier:     float64(retryCfg.Multiplier),
	}
	if err := cfg.Validate(); err != nil {
		cfg = retry.DefaultConfig()
		cfg.MaxRetries = retryCfg.MaxRetries
	}
	return retry.NewRetryableProvider(provider, cfg)
}
