// Package credential keeps the session bearer token in the OS keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "money-tracker"
	tokenKey    = "session-token"
)

// ErrNotFound is returned when no session token is available.
var ErrNotFound = errors.New("no session token stored")

// TokenStore persists the bearer token of the local user.
type TokenStore struct {
	ring keyring.Keyring
}

// Open opens the platform keyring. Headless hosts fall back to an encrypted
// file under ~/.config/money-tracker.
func Open() (*TokenStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/money-tracker/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("money-tracker-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return NewTokenStore(ring), nil
}

// NewTokenStore wraps an opened keyring.
func NewTokenStore(ring keyring.Keyring) *TokenStore {
	return &TokenStore{ring: ring}
}

// Load returns the stored token.
func (s *TokenStore) Load() (string, error) {
	item, err := s.ring.Get(tokenKey)
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("load session token: %w", err)
	case len(item.Data) == 0:
		return "", ErrNotFound
	}
	return string(item.Data), nil
}

// Save replaces the stored token.
func (s *TokenStore) Save(token string) error {
	err := s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        []byte(token),
		Label:       "Money Tracker session",
		Description: "bearer token for the notification service",
	})
	if err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}

// Forget removes the stored token. A missing token is not an error.
func (s *TokenStore) Forget() error {
	if err := s.ring.Remove(tokenKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("forget session token: %w", err)
	}
	return nil
}

// Resolve returns explicit when set, otherwise the token held by store.
// A nil store means the keyring is disabled.
func Resolve(explicit string, store *TokenStore) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if store == nil {
		return "", ErrNotFound
	}
	return store.Load()
}
