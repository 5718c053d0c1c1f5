package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// TokenKey is the vault key holding the bearer token.
const TokenKey = "token"

// Vault is secure key-value storage on the device.
type Vault interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type tokenState struct {
	token   string
	present bool
}

// Store owns the bearer token: the vault holds the durable copy and an
// atomically swapped pointer caches it for the life of the process.
type Store struct {
	vault  Vault
	cached atomic.Pointer[tokenState]
	loadMu sync.Mutex
}

func NewStore(v Vault) *Store {
	return &Store{vault: v}
}

// Token returns the current token. The vault is read at most once; later
// calls are served from memory until SetToken replaces the value.
func (s *Store) Token(ctx context.Context) (string, bool, error) {
	if st := s.cached.Load(); st != nil {
		return st.token, st.present, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if st := s.cached.Load(); st != nil {
		return st.token, st.present, nil
	}

	tok, ok, err := s.vault.Get(ctx, TokenKey)
	if err != nil {
		return "", false, fmt.Errorf("read token: %w", err)
	}
	st := &tokenState{token: tok, present: ok && tok != ""}
	s.cached.CompareAndSwap(nil, st)
	st = s.cached.Load()
	return st.token, st.present, nil
}

// SetToken persists token and updates the cache. An empty token clears it.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	if err := s.vault.Put(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	s.cached.Store(&tokenState{token: token, present: true})
	return nil
}

// Clear drops the cached token first so no new request picks it up, then
// deletes the durable copy.
func (s *Store) Clear(ctx context.Context) error {
	s.cached.Store(&tokenState{})
	if err := s.vault.Delete(ctx, TokenKey); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
