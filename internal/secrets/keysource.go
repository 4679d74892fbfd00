package secrets

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PassphraseEnv names the variable that supplies the secrets passphrase.
const PassphraseEnv = "KEYRELAY_SECRETS_PASSPHRASE"

// Hooks for tests.
var (
	keySourceGetenv        = os.Getenv
	keySourceReadFile      = os.ReadFile
	keySourceUserConfigDir = os.UserConfigDir
	keySourceMkdirAll      = os.MkdirAll
)

// DefaultKeySource returns a 32-byte key derived from KEYRELAY_SECRETS_PASSPHRASE
// or, when unset, from /etc/machine-id. The caller owns the returned slice.
func DefaultKeySource() ([]byte, error) {
	if s := keySourceGetenv(PassphraseEnv); s != "" {
		return deriveKey(s), nil
	}
	const machineIDPath = "/etc/machine-id"
	b, err := keySourceReadFile(machineIDPath)
	if err != nil {
		return nil, fmt.Errorf("secrets: set %s or ensure %s exists: %w", PassphraseEnv, machineIDPath, err)
	}
	for i, c := range b {
		if c == '\n' || c == '\r' {
			b = b[:i]
			break
		}
	}
	if len(b) == 0 {
		return nil, errors.New("secrets: machine-id is empty")
	}
	return deriveKey(string(b)), nil
}

// DeriveKeyFromPassphrase returns the 32-byte key for passphrase.
func DeriveKeyFromPassphrase(passphrase string) []byte {
	return deriveKey(passphrase)
}

func deriveKey(input string) []byte {
	const salt = "keyrelay-secrets-v1"
	h := sha256.Sum256([]byte(salt + input))
	return h[:]
}

// SecretsDir returns UserConfigDir/keyrelay, creating it with 0700.
func SecretsDir() (string, error) {
	base, err := keySourceUserConfigDir()
	if err != nil {
		return "", fmt.Errorf("secrets dir: %w", err)
	}
	dir := filepath.Join(base, "keyrelay")
	if err := keySourceMkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("secrets dir mkdir: %w", err)
	}
	return dir, nil
}

// DefaultSecretsPath returns the path to the default .secrets file.
func DefaultSecretsPath() (string, error) {
	dir, err := SecretsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".secrets"), nil
}
