// Package permission is the single source of truth for whether native
// notifications may be shown.
package permission

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukerupert/tasknotify/internal/model"
)

// ErrUnsupported is returned by Request when the platform has no native
// notification mechanism.
var ErrUnsupported = errors.New("native notifications are not supported on this platform")

// Platform wraps the OS permission primitive.
type Platform interface {
	// Supported reports whether native notifications exist at all.
	Supported() bool
	// Permission returns the current state without prompting.
	Permission(ctx context.Context) (model.PermissionState, error)
	// RequestPermission prompts the user and returns the decision.
	RequestPermission(ctx context.Context) (model.PermissionState, error)
}

// Gateway caches the platform permission and refreshes it on every check
// or request.
type Gateway struct {
	mu        sync.RWMutex
	platform  Platform
	supported bool
	state     model.PermissionState
	logger    *slog.Logger

	// requestMu serializes prompts so concurrent callers never see two.
	requestMu sync.Mutex
}

// NewGateway creates a gateway for p.
func NewGateway(p Platform, logger *slog.Logger) *Gateway {
	g := &Gateway{
		platform:  p,
		supported: p.Supported(),
		state:     model.PermissionDefault,
		logger:    logger,
	}
	if !g.supported {
		g.state = model.PermissionDenied
	}
	return g
}

// Check returns the current permission without prompting.
func (g *Gateway) Check(ctx context.Context) model.PermissionState {
	if !g.supported {
		return model.PermissionDenied
	}

	st, err := g.platform.Permission(ctx)
	if err != nil {
		g.logger.Warn("permission check failed", "error", err)
		return g.State()
	}

	g.mu.Lock()
	g.state = st
	g.mu.Unlock()
	return st
}

// Request prompts only while the permission is still undecided. Once
// granted or denied it returns the stored decision without prompting.
func (g *Gateway) Request(ctx context.Context) (model.PermissionState, error) {
	if !g.supported {
		return model.PermissionDenied, ErrUnsupported
	}

	g.requestMu.Lock()
	defer g.requestMu.Unlock()

	if st := g.Check(ctx); st != model.PermissionDefault {
		return st, nil
	}

	st, err := g.platform.RequestPermission(ctx)
	if err != nil {
		return g.State(), err
	}

	g.mu.Lock()
	g.state = st
	g.mu.Unlock()

	g.logger.Info("permission decided", "state", st)
	return st, nil
}

// State returns the cached permission.
func (g *Gateway) State() model.PermissionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Supported reports whether the platform can show native notifications.
func (g *Gateway) Supported() bool {
	return g.supported
}

// CanNotify reports whether a native notification may be dispatched now.
func (g *Gateway) CanNotify() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.supported && g.state == model.PermissionGranted
}
