package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

var ErrSealedValue = errors.New("sealed value cannot be opened")

const (
	saltSize  = 16
	nonceSize = 24
)

// FileVault keeps one sealed file per key in a private directory. Each file
// is salt || nonce || secretbox(value), keyed by argon2id(secret, salt).
type FileVault struct {
	dir    string
	secret []byte
}

func NewFileVault(dir, secret string) (*FileVault, error) {
	if secret == "" {
		return nil, errors.New("file vault: empty secret")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file vault: %w", err)
	}
	return &FileVault{dir: dir, secret: []byte(secret)}, nil
}

func (v *FileVault) path(key string) string {
	return filepath.Join(v.dir, hex.EncodeToString([]byte(key))+".sealed")
}

func (v *FileVault) deriveKey(salt []byte) *[32]byte {
	var k [32]byte
	copy(k[:], argon2.IDKey(v.secret, salt, 1, 64*1024, 4, 32))
	return &k
}

func (v *FileVault) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	blob, err := os.ReadFile(v.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(blob) < saltSize+nonceSize+secretbox.Overhead {
		return "", false, ErrSealedValue
	}
	salt := blob[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], blob[saltSize:saltSize+nonceSize])
	plain, ok := secretbox.Open(nil, blob[saltSize+nonceSize:], &nonce, v.deriveKey(salt))
	if !ok {
		return "", false, ErrSealedValue
	}
	return string(plain), true, nil
}

func (v *FileVault) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return err
	}
	out := make([]byte, 0, saltSize+nonceSize+len(value)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(value), &nonce, v.deriveKey(salt))

	tmp := v.path(key) + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, v.path(key))
}

func (v *FileVault) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(v.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryVault is a process-local Vault.
type MemoryVault struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{values: make(map[string]string)}
}

func (m *MemoryVault) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryVault) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryVault) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
