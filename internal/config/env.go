package config

import (
	"strings"

	"keyrelay/internal/domain"
)

// Environment variables that override the config file.
const (
	EnvAPIKeys   = "OPENAI_API_KEYS"
	EnvBaseURL   = "OPENAI_BASE_URL"
	EnvModel     = "OPENAI_MODEL_NAME"
	EnvAuthToken = "KEYRELAY_AUTH_TOKEN"
)

// ApplyEnv overlays non-empty environment values onto cfg. A trailing "/" on
// the base URL is dropped.
func ApplyEnv(cfg *domain.Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvAPIKeys)); v != "" {
		cfg.Pool.APIKeys = v
	}
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		cfg.Pool.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		cfg.Pool.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvAuthToken)); v != "" {
		cfg.Gateway.Auth.AuthToken = v
	}
	normalize(cfg)
}
