package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"keyrelay/internal/domain"
)

// =============================================================================
// Config
// =============================================================================

// Config controls retry behaviour for transient API failures.
type Config struct {
	MaxRetries     int           `json:"maxRetries"`     // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration `json:"initialBackoff"` // Delay before first retry
	MaxBackoff     time.Duration `json:"maxBackoff"`     // Upper bound on backoff duration
	Multiplier     float64       `json:"multiplier"`     // Backoff multiplier (e.g. 2.0 for exponential)
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// Validate checks that all Config fields are within acceptable ranges.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("retry: MaxRetries must be >= 0")
	}
	if c.InitialBackoff <= 0 {
		return errors.New("retry: InitialBackoff must be > 0")
	}
	if c.MaxBackoff <= 0 {
		return errors.New("retry: MaxBackoff must be > 0")
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

// =============================================================================
// Error Classification
// =============================================================================

// httpStatuser is implemented by API errors that carry an HTTP status code.
type httpStatuser interface {
	HTTPStatus() int
}

// retryableStatus reports whether an HTTP status is a transient server failure.
// 429 is deliberately absent: rate limits are answered by rotating keys, not waiting.
func retryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504, 529:
		return true
	}
	return false
}

// IsRetryable returns true when err represents a transient failure that may
// succeed on retry (5xx, timeout, connection refused, EOF).
// Context errors (Canceled, DeadlineExceeded) are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se httpStatuser
	if errors.As(err, &se) {
		return retryableStatus(se.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, code := range []string{"500", "502", "503", "504", "529"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "EOF")
}

// =============================================================================
// RetryableProvider (Decorator)
// =============================================================================

// RetryableProvider wraps an LLMProvider with retry-on-transient-error logic.
type RetryableProvider struct {
	inner     domain.LLMProvider
	config    Config
	sleepFunc func(ctx context.Context, d time.Duration) error // injectable for testing
	logger    *slog.Logger
}

// NewRetryableProvider returns a decorator that retries Generate calls on transient errors.
// inner must not be nil.
func NewRetryableProvider(inner domain.LLMProvider, cfg Config) *RetryableProvider {
	if inner == nil {
		panic("retry: inner provider must not be nil")
	}
	return &RetryableProvider{
		inner:     inner,
		config:    cfg,
		sleepFunc: sleepContext,
	}
}

// WithLogger sets the logger used for retry notices. Nil keeps slog.Default().
func (p *RetryableProvider) WithLogger(l *slog.Logger) *RetryableProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *RetryableProvider) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// Unwrap returns the decorated provider.
func (p *RetryableProvider) Unwrap() domain.LLMProvider { return p.inner }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Generate calls the inner provider and retries on transient errors with exponential backoff.
// Returns the first successful result, or the last error after retries are exhausted.
func (p *RetryableProvider) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		result, err := p.inner.Generate(ctx, prompt)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
		if attempt == p.config.MaxRetries {
			break
		}

		p.log().Debug("retrying after transient error", "attempt", attempt+1, "backoff", backoff, "err", err)
		if err := p.sleepFunc(ctx, backoff); err != nil {
			return "", err
		}

		next := time.Duration(float64(backoff) * p.config.Multiplier)
		if next > p.config.MaxBackoff {
			next = p.config.MaxBackoff
		}
		backoff = next
	}

	return "", fmt.Errorf("retries exhausted after %d attempts: %w", p.config.MaxRetries+1, lastErr)
}

var _ domain.LLMProvider = (*RetryableProvider)(nil)
