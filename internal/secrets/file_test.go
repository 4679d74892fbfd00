package secrets

import (
	"bytes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets")
	s, err := NewFileStoreWithKey(path, DeriveKeyFromPassphrase("test-passphrase"))
	if err != nil {
		t.Fatalf("NewFileStoreWithKey: %v", err)
	}
	return s, path
}

// =============================================================================
// Get / Set
// =============================================================================

func TestFileStore_SetThenGet_ShouldReturnStoredValue(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Set("openai_api_keys", "sk-a,sk-b"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("openai_api_keys")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-a,sk-b" {
		t.Errorf("Get: want sk-a,sk-b, got %q", got)
	}
}

func TestFileStore_WhenFileMissing_GetShouldReturnErrNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Get("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: want ErrNotFound, got %v", err)
	}
}

func TestFileStore_WhenNameMissing_GetShouldReturnErrNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: want ErrNotFound, got %v", err)
	}
}

func TestNewFileStoreWithKey_WhenKeyWrongLength_ShouldError(t *testing.T) {
	if _, err := NewFileStoreWithKey(filepath.Join(t.TempDir(), ".secrets"), []byte("short")); err == nil {
		t.Error("expected error for key length != 32")
	}
}

func TestNewFileStoreWithKey_ShouldWipeCallerKey(t *testing.T) {
	key := DeriveKeyFromPassphrase("test-passphrase")
	if _, err := NewFileStoreWithKey(filepath.Join(t.TempDir(), ".secrets"), key); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, make([]byte, len(key))) {
		t.Error("expected caller key slice to be wiped")
	}
}

func TestFileStore_AfterSet_FileShouldNotContainPlainText(t *testing.T) {
	s, path := newTestStore(t)
	secret := "sk-my-secret-api-key"
	if err := s.Set("openai_api_keys", secret); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("secrets file should not be empty after Set")
	}
	if bytes.Contains(data, []byte(secret)) {
		t.Error("secrets file must not contain the secret in plain text")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestFileStore_AfterRestart_GetShouldReturnStoredValue(t *testing.T) {
	s1, path := newTestStore(t)
	if err := s1.Set("openai_api_keys", "sk-persisted"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s2, err := NewFileStoreWithKey(path, DeriveKeyFromPassphrase("test-passphrase"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s2.Get("openai_api_keys")
	if err != nil || got != "sk-persisted" {
		t.Errorf("Get after restart: want sk-persisted, got %q err=%v", got, err)
	}
}

func TestFileStore_WhenWrongPassphrase_GetShouldReturnDecryptError(t *testing.T) {
	s1, path := newTestStore(t)
	if err := s1.Set("k", "v"); err != nil {
		t.Fatal(err)
	}
	s2, err := NewFileStoreWithKey(path, DeriveKeyFromPassphrase("other"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s2.Get("k")
	if err == nil || !strings.Contains(err.Error(), "decrypt") {
		t.Errorf("expected decrypt error, got %v", err)
	}
}

func TestFileStore_Set_ShouldMergeAndOverwrite(t *testing.T) {
	s, _ := newTestStore(t)
	for _, kv := range [][2]string{{"openai_api_keys", "first"}, {"gateway_token", "tok"}, {"openai_api_keys", "second"}} {
		if err := s.Set(kv[0], kv[1]); err != nil {
			t.Fatalf("Set %s: %v", kv[0], err)
		}
	}
	if got, _ := s.Get("openai_api_keys"); got != "second" {
		t.Errorf("openai_api_keys = %q, want second", got)
	}
	if got, _ := s.Get("gateway_token"); got != "tok" {
		t.Errorf("gateway_token = %q, want tok", got)
	}
}

func TestFileStore_Set_WhenFileCorrupt_ShouldReplaceIt(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("garbage-garbage-garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := s.Get("k"); err != nil || got != "v" {
		t.Errorf("Get = %q, %v", got, err)
	}
}

func TestFileStore_Get_WhenFileTruncated_ShouldReturnError(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("k"); err == nil || !strings.Contains(err.Error(), "truncated") {
		t.Errorf("expected truncated error, got %v", err)
	}
}

func TestFileStore_Get_WhenNewGCMFails_ShouldReturnError(t *testing.T) {
	prev := fileCipherNewGCM
	defer func() { fileCipherNewGCM = prev }()
	fileCipherNewGCM = func(cipher.Block) (cipher.AEAD, error) {
		return nil, fmt.Errorf("injected NewGCM error")
	}
	s, path := newTestStore(t)
	if err := os.WriteFile(path, make([]byte, 20), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := s.Get("k")
	if err == nil || !strings.Contains(err.Error(), "injected") {
		t.Errorf("expected injected error, got %v", err)
	}
}

// =============================================================================
// Delete / List
// =============================================================================

func TestFileStore_Delete_ShouldRemoveOnlyThatName(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Set("a", "1")
	_ = s.Set("b", "2")
	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected a deleted, got %v", err)
	}
	if got, _ := s.Get("b"); got != "2" {
		t.Errorf("b = %q, want 2", got)
	}
}

func TestFileStore_Delete_WhenFileMissing_ShouldNotError(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Delete("nothing"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestFileStore_Delete_WhenFileCorrupt_ShouldResetToEmpty(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("garbage-garbage-garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	names, err := s.List()
	if err != nil || len(names) != 0 {
		t.Errorf("List after reset = %v, %v", names, err)
	}
}

func TestFileStore_List_ShouldReturnSortedNames(t *testing.T) {
	s, _ := newTestStore(t)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		if err := s.Set(n, "x"); err != nil {
			t.Fatal(err)
		}
	}
	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"alpha", "mid", "zeta"}; !reflect.DeepEqual(names, want) {
		t.Errorf("List = %v, want %v", names, want)
	}
}

func TestFileStore_List_WhenFileMissing_ShouldReturnEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	names, err := s.List()
	if err != nil || len(names) != 0 {
		t.Errorf("List = %v, %v", names, err)
	}
}

// =============================================================================
// Write failures
// =============================================================================

func TestFileStore_Set_WhenWriteFails_ShouldReturnError(t *testing.T) {
	prev := fileWriteFile
	defer func() { fileWriteFile = prev }()
	fileWriteFile = func(string, []byte, os.FileMode) error { return errors.New("disk full") }

	s, _ := newTestStore(t)
	if err := s.Set("k", "v"); err == nil {
		t.Error("expected write error")
	}
}

func TestFileStore_Set_WhenMarshalFails_ShouldReturnError(t *testing.T) {
	prev := fileMarshal
	defer func() { fileMarshal = prev }()
	fileMarshal = func(any) ([]byte, error) { return nil, errors.New("marshal boom") }

	s, _ := newTestStore(t)
	if err := s.Set("k", "v"); err == nil {
		t.Error("expected marshal error")
	}
}

func TestFileStore_Set_WhenRandFails_ShouldReturnError(t *testing.T) {
	prev := fileRandReader
	defer func() { fileRandReader = prev }()
	fileRandReader = errReader{}

	s, _ := newTestStore(t)
	if err := s.Set("k", "v"); err == nil {
		t.Error("expected nonce error")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// =============================================================================
// NewFileStore / Lookup
// =============================================================================

func TestNewFileStore_WhenKeySourceFails_ShouldReturnError(t *testing.T) {
	prev := defaultKeySource
	defer func() { defaultKeySource = prev }()
	defaultKeySource = func() ([]byte, error) { return nil, errors.New("no key") }

	if _, err := NewFileStore(filepath.Join(t.TempDir(), ".secrets")); err == nil {
		t.Error("expected key source error")
	}
}

func TestLookup_WhenSecretMissing_ShouldReturnEmptyWithoutError(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := Lookup(s)("openai_api_keys")
	if err != nil || got != "" {
		t.Errorf("Lookup = %q, %v; want empty, nil", got, err)
	}
}

func TestLookup_WhenSecretPresent_ShouldReturnValue(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Set("openai_api_keys", "sk-1")
	got, err := Lookup(s)("openai_api_keys")
	if err != nil || got != "sk-1" {
		t.Errorf("Lookup = %q, %v", got, err)
	}
}

func TestLookup_WhenStoreFails_ShouldPropagateError(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Lookup(s)("k"); err == nil {
		t.Error("expected store error to propagate")
	}
}

func TestLookup_WhenStoreNil_ShouldReturnEmpty(t *testing.T) {
	got, err := Lookup(nil)("k")
	if err != nil || got != "" {
		t.Errorf("Lookup(nil) = %q, %v", got, err)
	}
}
