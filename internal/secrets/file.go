package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/awnumar/memguard"
)

const (
	nonceSizeGCM = 12
	keySize      = 32
)

// Hooks for tests.
var (
	defaultKeySource           = DefaultKeySource
	fileWriteFile              = os.WriteFile
	fileMarshal                = json.Marshal
	fileRandReader   io.Reader = rand.Reader
	fileCipherNewGCM           = cipher.NewGCM
)

// NewFileStore returns a Store backed by an AES-GCM encrypted file, keyed by DefaultKeySource.
func NewFileStore(path string) (Store, error) {
	key, err := defaultKeySource()
	if err != nil {
		return nil, err
	}
	return NewFileStoreWithKey(path, key)
}

// NewFileStoreWithKey returns a Store using a 32-byte key. The key is moved into
// a memguard enclave and key is wiped; callers must not reuse it.
func NewFileStoreWithKey(path string, key []byte) (Store, error) {
	if len(key) != keySize {
		return nil, errors.New("secrets: key must be 32 bytes")
	}
	return &fileStore{path: path, enclave: memguard.NewEnclave(key)}, nil
}

type fileStore struct {
	path    string
	enclave *memguard.Enclave
	mu      sync.Mutex
}

func (f *fileStore) Get(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.readMap()
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	v, ok := m[name]
	if !ok || v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *fileStore) Set(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.readMap()
	if err != nil {
		// An unreadable file is replaced rather than blocking new secrets.
		m = make(map[string]string)
	}
	m[name] = value
	return f.writeMap(m)
}

func (f *fileStore) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.readMap()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return f.writeMap(map[string]string{})
	}
	if _, ok := m[name]; !ok {
		return nil
	}
	delete(m, name)
	return f.writeMap(m)
}

func (f *fileStore) List() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.readMap()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fileStore) aead() (cipher.AEAD, error) {
	buf, err := f.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("secrets key: %w", err)
	}
	defer buf.Destroy()
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return fileCipherNewGCM(block)
}

// readMap decrypts the file. A missing file is reported as a wrapped os.ErrNotExist.
func (f *fileStore) readMap() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("secrets read: %w", err)
	}
	if len(data) < nonceSizeGCM {
		return nil, errors.New("secrets file truncated")
	}
	gcm, err := f.aead()
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := data[:nonceSizeGCM], data[nonceSizeGCM:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets decrypt: %w", err)
	}
	defer memguard.WipeBytes(plain)
	m := make(map[string]string)
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("secrets parse: %w", err)
	}
	return m, nil
}

func (f *fileStore) writeMap(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("secrets mkdir: %w", err)
	}
	plain, err := fileMarshal(m)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(plain)
	gcm, err := f.aead()
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(fileRandReader, nonce); err != nil {
		return err
	}
	return fileWriteFile(f.path, gcm.Seal(nonce, nonce, plain, nil), 0600)
}
