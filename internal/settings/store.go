// Package settings caches the user's notification preferences and keeps
// them in step with the remote settings API.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/tasknotify/internal/model"
)

// API is the remote source of truth.
type API interface {
	Get(ctx context.Context) (model.NotificationSettings, error)
	Put(ctx context.Context, patch model.SettingsPatch) error
}

// Store is the in-memory settings cache.
type Store struct {
	mu      sync.RWMutex
	api     API
	logger  *slog.Logger
	current model.NotificationSettings
	loaded  bool
	err     error
}

func NewStore(api API, logger *slog.Logger) *Store {
	return &Store{api: api, logger: logger}
}

// Load fetches settings. On failure the defaults are used and the error
// is kept for Err; Load itself never fails.
func (s *Store) Load(ctx context.Context) model.NotificationSettings {
	fetched, err := s.api.Get(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.Warn("settings load failed, using defaults", "error", err)
		fetched = model.DefaultNotificationSettings()
	}
	s.current = fetched
	s.loaded = true
	s.err = err
	return s.current.Clone()
}

// Update sends the fields of patch that differ from the cached settings
// and applies patch locally once the server accepts it. An empty diff
// sends nothing. On failure the cache is left as it was.
func (s *Store) Update(ctx context.Context, patch model.SettingsPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.RLock()
	cur := s.current
	if !s.loaded {
		cur = model.DefaultNotificationSettings()
	}
	s.mu.RUnlock()

	diff := patch.Diff(cur)
	if diff.IsEmpty() {
		return nil
	}

	if err := s.api.Put(ctx, diff); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.logger.Warn("settings update failed", "error", err)
		return fmt.Errorf("update settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.current = model.DefaultNotificationSettings()
		s.loaded = true
	}
	s.current = patch.Apply(s.current)
	s.err = nil
	return nil
}

// Current returns the cached settings, or false when nothing is loaded.
func (s *Store) Current() (model.NotificationSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return model.NotificationSettings{}, false
	}
	return s.current.Clone(), true
}

// Effective returns the cached settings, falling back to the defaults.
func (s *Store) Effective() model.NotificationSettings {
	if cur, ok := s.Current(); ok {
		return cur
	}
	return model.DefaultNotificationSettings()
}

// Err returns the last load or update error, if any.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// OnLogin re-fetches settings for the new session.
func (s *Store) OnLogin(ctx context.Context) model.NotificationSettings {
	return s.Load(ctx)
}

// OnLogout clears the cache.
func (s *Store) OnLogout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = model.NotificationSettings{}
	s.loaded = false
	s.err = nil
}
