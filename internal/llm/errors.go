package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoUsableKeys is returned by PooledProvider when every key in the pool is
// quarantined. It is an expected outcome under sustained key failure; the
// gateway maps it to 503.
var ErrNoUsableKeys = errors.New("keypool: no usable API keys remain")

// StatusError is returned when the remote API answers with a non-200 status.
// Body is inspected for quota markers but never formatted: providers echo
// the rejected key in it.
type StatusError struct {
	StatusCode int
	Status     string // e.g. "401 Unauthorized"
	Body       string // truncated response body
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s", e.Status)
}

// IsCredentialError reports whether err means the key itself is unusable:
// authentication (401), authorization (403), payment/quota (402, quota
// messages) or rate limiting (429). Context errors never qualify.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden, http.StatusTooManyRequests:
			return true
		}
		msg += " " + strings.ToLower(se.Body)
	}
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit")
}

// credentialReason returns a short reason for a quarantine. Response bodies are
// left out since some APIs echo part of the rejected key.
func credentialReason(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if strings.Contains(strings.ToLower(err.Error()), "quota") {
		return "quota exceeded"
	}
	return "rate limited"
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }
