package cli

import (
	"os"
	"path/filepath"
	"testing"

	"keyrelay/internal/secrets"
)

// envOf returns a getenv backed by vars; everything else is unset.
func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

// writeConfig writes content to a fresh config file named name and returns its path.
func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// useSecrets points openSecrets at a file store in a temp dir and returns it.
func useSecrets(t *testing.T) secrets.Store {
	t.Helper()
	store, err := secrets.NewFileStoreWithKey(filepath.Join(t.TempDir(), ".secrets"), secrets.DeriveKeyFromPassphrase("cli-test"))
	if err != nil {
		t.Fatalf("NewFileStoreWithKey: %v", err)
	}
	old := openSecrets
	openSecrets = func() (secrets.Store, error) { return store, nil }
	t.Cleanup(func() { openSecrets = old })
	return store
}
