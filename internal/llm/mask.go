package llm

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	maskHead = 10
	maskTail = 6
)

// MaskKey returns a log-safe form of key: a short prefix and suffix with the
// middle elided. Each fragment is capped at a quarter of the key length, so
// the full credential is never reproduced. Keys under 4 bytes render as "***".
func MaskKey(key string) string {
	n := len(key)
	head := min(maskHead, n/4)
	tail := min(maskTail, n/4)
	if head == 0 {
		return "***"
	}
	return key[:head] + "..." + key[n-tail:]
}

// Fingerprint returns the first 12 hex characters of sha256(key). It identifies
// a key across log lines and ledger entries without revealing it.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}
