// Package app wires the stream, router, toast queue, settings and
// permission components into one client service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/tasknotify/internal/credential"
	"github.com/dukerupert/tasknotify/internal/model"
	"github.com/dukerupert/tasknotify/internal/permission"
	"github.com/dukerupert/tasknotify/internal/router"
	"github.com/dukerupert/tasknotify/internal/settings"
	"github.com/dukerupert/tasknotify/internal/stream"
	"github.com/dukerupert/tasknotify/internal/toast"
)

var (
	// ErrQuietHours is returned when native notifications are switched on
	// inside the quiet-hours window or on a blocked weekend day.
	ErrQuietHours = errors.New("app: notifications are paused right now")

	// ErrPermissionDenied is returned when native notifications are
	// switched on but the platform permission is not granted.
	ErrPermissionDenied = errors.New("app: notification permission denied")
)

// SessionStore holds the session id between runs.
type SessionStore interface {
	Session() (string, error)
	SetSession(id string) error
	DeleteSession() error
}

// Deps are the components the service drives.
type Deps struct {
	Stream   *stream.Client
	Router   *router.Router
	Toasts   *toast.Queue
	Settings *settings.Store
	Gateway  *permission.Gateway
	Sessions SessionStore
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Service is the notification client.
type Service struct {
	stream   *stream.Client
	router   *router.Router
	toasts   *toast.Queue
	settings *settings.Store
	gateway  *permission.Gateway
	sessions SessionStore
	clock    clockwork.Clock
	logger   *slog.Logger

	mu   sync.RWMutex
	last *model.NotificationEvent
}

func New(d Deps) *Service {
	return &Service{
		stream:   d.Stream,
		router:   d.Router,
		toasts:   d.Toasts,
		settings: d.Settings,
		gateway:  d.Gateway,
		sessions: d.Sessions,
		clock:    d.Clock,
		logger:   d.Logger,
	}
}

// Start resumes the stored session. Without one the stream is put in its
// error state and stream.ErrNoSession is returned.
func (s *Service) Start(ctx context.Context) error {
	s.gateway.Check(ctx)

	session, err := s.sessions.Session()
	if err != nil {
		if !errors.Is(err, credential.ErrNoSession) {
			s.logger.Warn("reading session failed", "error", err)
		}
		return s.stream.Connect("")
	}

	s.settings.OnLogin(ctx)
	return s.stream.Connect(session)
}

// Login stores sessionID, reloads settings and connects.
func (s *Service) Login(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return stream.ErrNoSession
	}
	if err := s.sessions.SetSession(sessionID); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	s.settings.OnLogin(ctx)
	return s.stream.Connect(sessionID)
}

// Logout disconnects and clears everything tied to the session.
func (s *Service) Logout() error {
	s.stream.Logout()
	s.settings.OnLogout()
	s.toasts.ClearAll()

	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()

	if err := s.sessions.DeleteSession(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Run routes stream events until ctx is done. It returns once pending
// native notifications have finished.
func (s *Service) Run(ctx context.Context) error {
	defer s.router.Wait()
	for {
		ev, err := s.stream.Next(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, ev)
	}
}

func (s *Service) handle(ctx context.Context, ev model.NotificationEvent) {
	s.mu.Lock()
	s.last = &ev
	s.mu.Unlock()

	s.router.Route(ctx, ev, s.settings.Effective())
}

// Retry is the user-triggered reconnect.
func (s *Service) Retry() error {
	return s.stream.Reconnect()
}

// Foreground refreshes the permission and reconnects a dropped stream.
func (s *Service) Foreground(ctx context.Context) {
	s.gateway.Check(ctx)
	s.stream.Foreground()
}

// Status returns the stream status.
func (s *Service) Status() stream.Status {
	return s.stream.Status()
}

// Toasts returns the visible toasts, oldest first.
func (s *Service) Toasts() []toast.Entry {
	return s.toasts.List()
}

// Dismiss removes a toast.
func (s *Service) Dismiss(id int64) {
	s.toasts.Remove(id)
}

// ClearToasts removes every toast.
func (s *Service) ClearToasts() {
	s.toasts.ClearAll()
}

// Settings returns the effective settings and the last settings error.
func (s *Service) Settings() (model.NotificationSettings, error) {
	return s.settings.Effective(), s.settings.Err()
}

// Permission returns the cached permission state.
func (s *Service) Permission() model.PermissionState {
	return s.gateway.State()
}

// LastNotification returns the most recently received event.
func (s *Service) LastNotification() (model.NotificationEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.NotificationEvent{}, false
	}
	return *s.last, true
}

// UpdateSettings applies a partial update.
func (s *Service) UpdateSettings(ctx context.Context, patch model.SettingsPatch) error {
	return s.settings.Update(ctx, patch)
}

func (s *Service) SetToastEnabled(ctx context.Context, on bool) error {
	return s.settings.Update(ctx, model.SettingsPatch{ToastEnabled: &on})
}

// SetBrowserEnabled toggles native notifications. Turning them on is
// refused during quiet hours and requires the platform permission, which
// is requested if still undecided.
func (s *Service) SetBrowserEnabled(ctx context.Context, on bool) error {
	if on {
		if !s.settings.Effective().DeliveryAllowed(s.clock.Now()) {
			return ErrQuietHours
		}
		st, err := s.gateway.Request(ctx)
		if err != nil {
			return fmt.Errorf("request permission: %w", err)
		}
		if st != model.PermissionGranted {
			return ErrPermissionDenied
		}
	}
	return s.settings.Update(ctx, model.SettingsPatch{BrowserEnabled: &on})
}
