package domain

import "time"

// =============================================================================
// Core Configuration
// =============================================================================

// Config is the root of keyrelay.json (or keyrelay.yaml).
type Config struct {
	Pool           PoolConfig    `json:"pool"`
	Gateway        GatewayConfig `json:"gateway"`
	Retry          RetryConfig   `json:"retry"`
	Ledger         LedgerConfig  `json:"ledger"`
	Infra          InfraConfig   `json:"infra"`
	StatusSchedule string        `json:"statusSchedule"` // cron spec for pool status reports; empty disables
}

// PoolConfig describes the credential pool and the remote API it authenticates against.
type PoolConfig struct {
	Provider       string `json:"provider,omitempty" jsonschema:"enum=openai,enum=local"`
	APIKeys        string `json:"apiKeys,omitempty"`    // comma-delimited; OPENAI_API_KEYS overrides
	SecretName     string `json:"secretName,omitempty"` // secrets store entry consulted when no keys are configured
	BaseURL        string `json:"baseUrl,omitempty"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" jsonschema:"minimum=0"`
}

// RetryConfig controls retry behaviour for transient API failures.
type RetryConfig struct {
	MaxRetries     int `json:"maxRetries" jsonschema:"minimum=0"`     // Maximum retry attempts (0 = no retries)
	InitialBackoff int `json:"initialBackoff" jsonschema:"minimum=0"` // Initial backoff in milliseconds
	MaxBackoff     int `json:"maxBackoff" jsonschema:"minimum=0"`     // Maximum backoff in milliseconds
	Multiplier     int `json:"multiplier" jsonschema:"minimum=0"`     // Backoff multiplier (e.g. 2 for exponential doubling)
}

type GatewayConfig struct {
	Port      int             `json:"port" jsonschema:"minimum=0,maximum=65535"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rateLimit"`
}

type AuthConfig struct {
	AuthToken string `json:"authToken,omitempty"` // When set, gateway requires Authorization: Bearer <authToken>
}

// RateLimitConfig is a per-client token bucket. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `json:"rps" jsonschema:"minimum=0"`
	Burst int     `json:"burst" jsonschema:"minimum=0"`
}

// LedgerConfig selects where quarantine events are recorded.
type LedgerConfig struct {
	Driver string `json:"driver,omitempty" jsonschema:"enum=memory,enum=sqlite,enum=libsql,enum=redis"`
	URL    string `json:"url,omitempty"`                           // file:keyrelay.db, libsql://..., redis://...
	MaxLen int    `json:"maxLen,omitempty" jsonschema:"minimum=0"` // redis only: events kept
}

type InfraConfig struct {
	LogFormat string `json:"logFormat" jsonschema:"enum=text,enum=json"`
	LogLevel  string `json:"logLevel" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// =============================================================================
// Key Pool Domain
// =============================================================================

// QuarantineEvent describes a key that was taken out of rotation.
type QuarantineEvent struct {
	Index       int       `json:"index"`       // position in the pool's rotation order
	Masked      string    `json:"masked"`      // prefix...suffix form, never the full key
	Fingerprint string    `json:"fingerprint"` // short sha256 prefix for correlation
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// PoolHealth is the coarse state derived from how many keys remain usable.
type PoolHealth string

const (
	HealthOK          PoolHealth = "ok"
	HealthDegraded    PoolHealth = "degraded"
	HealthUnavailable PoolHealth = "unavailable"
)

// HealthFor returns the health for a pool with total keys of which available are usable.
func HealthFor(total, available int) PoolHealth {
	switch {
	case available <= 0:
		return HealthUnavailable
	case available < total:
		return HealthDegraded
	default:
		return HealthOK
	}
}
