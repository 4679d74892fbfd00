package secrets

import (
	"errors"
)

// Store keeps named secrets (API key lists, gateway tokens) out of the config file.
type Store interface {
	// Get returns the secret stored under name, or ErrNotFound.
	Get(name string) (string, error)
	// Set stores value under name, replacing any previous value.
	Set(name, value string) error
	// Delete removes name. Deleting a missing name is not an error.
	Delete(name string) error
	// List returns the stored names in sorted order.
	List() ([]string, error)
}

// ErrNotFound is returned when a secret is not found.
var ErrNotFound = errors.New("secret not found")

// Lookup adapts s to the key resolver's getter: a missing secret yields ("", nil)
// so resolution can report the pool-level configuration error instead.
func Lookup(s Store) func(name string) (string, error) {
	return func(name string) (string, error) {
		if s == nil {
			return "", nil
		}
		v, err := s.Get(name)
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return v, err
	}
}

// DefaultStore returns the file store at DefaultSecretsPath, keyed by DefaultKeySource.
func DefaultStore() (Store, error) {
	path, err := DefaultSecretsPath()
	if err != nil {
		return nil, err
	}
	return NewFileStore(path)
}
