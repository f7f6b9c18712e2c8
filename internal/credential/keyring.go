// Package credential keeps the session id in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const (
	serviceName = "tasknotify"
	sessionKey  = "session"

	// EnvSession overrides the stored session when set.
	EnvSession = "TASKNOTIFY_SESSION"
)

// ErrNoSession is returned when no session is stored.
var ErrNoSession = errors.New("credential: no session")

// Store reads and writes the session id.
type Store struct {
	ring   keyring.Keyring
	getenv func(string) string
}

// Open opens the system keyring, falling back to an encrypted file under
// fileDir when no native backend is available.
func Open(fileDir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("tasknotify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring, getenv: os.Getenv}
}

// Session returns the session id.
func (s *Store) Session() (string, error) {
	if v := s.getenv(EnvSession); v != "" {
		return v, nil
	}

	item, err := s.ring.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("getting session: %w", err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoSession
	}
	return string(item.Data), nil
}

// SetSession stores the session id.
func (s *Store) SetSession(id string) error {
	if id == "" {
		return ErrNoSession
	}
	err := s.ring.Set(keyring.Item{
		Key:   sessionKey,
		Data:  []byte(id),
		Label: "tasknotify session",
	})
	if err != nil {
		return fmt.Errorf("setting session: %w", err)
	}
	return nil
}

// DeleteSession removes the stored session. Deleting a missing session
// is not an error.
func (s *Store) DeleteSession() error {
	err := s.ring.Remove(sessionKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
