// Package router applies the visibility policy to incoming notification
// events and fans them out to the toast queue and native targets.
package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/tasknotify/internal/model"
	"github.com/dukerupert/tasknotify/internal/toast"
)

const nativeTimeout = 5 * time.Second

// titles maps each event type to the label shown to the user.
var titles = map[model.EventType]string{
	model.EventDueSoon:  "마감일 임박",
	model.EventOverdue:  "마감일 초과",
	model.EventReminder: "할 일 알림",
	model.EventSystem:   "시스템 알림",
}

// style is how an event type is rendered as a toast. A zero duration
// means the queue default.
type style struct {
	typ      toast.Type
	duration time.Duration
}

var styles = map[model.EventType]style{
	model.EventDueSoon:  {typ: toast.TypeWarning, duration: 8 * time.Second},
	model.EventOverdue:  {typ: toast.TypeError, duration: 10 * time.Second},
	model.EventReminder: {typ: toast.TypeInfo, duration: 6 * time.Second},
}

// Title returns the label for t.
func Title(t model.EventType) string {
	if s, ok := titles[t]; ok {
		return s
	}
	return titles[model.EventSystem]
}

// ToastQueue receives in-app toasts.
type ToastQueue interface {
	Add(typ toast.Type, title, message string, opts toast.Options) int64
}

// Notifier shows a native notification.
type Notifier interface {
	Notify(ctx context.Context, n model.NativeNotification) error
}

// PermissionChecker reports whether native notifications may be shown.
type PermissionChecker interface {
	CanNotify() bool
}

// Navigator opens a todo in the UI.
type Navigator func(todoID string)

// Result describes what Route delivered. Native reports that a native
// notification was handed off; it is sent in the background.
type Result struct {
	Dropped bool
	ToastID int64
	Native  bool
}

// Router dispatches events. Its side effects are additive: it never
// removes or edits something already delivered.
type Router struct {
	toasts   ToastQueue
	native   Notifier
	perm     PermissionChecker
	navigate Navigator
	logger   *slog.Logger

	inflight sync.WaitGroup
}

// New creates a Router. native and navigate may be nil.
func New(toasts ToastQueue, native Notifier, perm PermissionChecker, navigate Navigator, logger *slog.Logger) *Router {
	return &Router{
		toasts:   toasts,
		native:   native,
		perm:     perm,
		navigate: navigate,
		logger:   logger,
	}
}

// Route applies settings to ev and dispatches it.
func (r *Router) Route(ctx context.Context, ev model.NotificationEvent, settings model.NotificationSettings) Result {
	if ev.IsHeartbeat() {
		return Result{Dropped: true}
	}

	title := Title(ev.Type)
	var res Result

	if settings.ToastEnabled {
		st, ok := styles[ev.Type]
		if !ok {
			st = style{typ: toast.TypeInfo}
		}
		opts := toast.Options{Duration: st.duration}
		if ev.TodoID != "" && r.navigate != nil {
			todoID := ev.TodoID
			opts.OnClick = func() { r.navigate(todoID) }
		}
		res.ToastID = r.toasts.Add(st.typ, title, ev.Message, opts)
	}

	if settings.BrowserEnabled && r.native != nil && r.perm.CanNotify() {
		n := model.NativeNotification{
			Title:  title,
			Body:   ev.Message,
			Silent: !settings.SoundEnabled,
		}
		if ev.TodoID != "" {
			n.Tag = "todo-" + ev.TodoID
			n.URL = "/todos/" + ev.TodoID
		}

		r.inflight.Add(1)
		go r.notify(ctx, ev, n)
		res.Native = true
	}

	r.logger.Debug("event routed", "type", ev.Type, "toast_id", res.ToastID, "native", res.Native)
	return res
}

func (r *Router) notify(ctx context.Context, ev model.NotificationEvent, n model.NativeNotification) {
	defer r.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, nativeTimeout)
	defer cancel()
	if err := r.native.Notify(ctx, n); err != nil {
		r.logger.Warn("native notification failed", "type", ev.Type, "todo_id", ev.TodoID, "error", err)
	}
}

// Wait blocks until every native notification handed off by Route has
// finished.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// MultiNotifier sends to every target. One failing target does not stop
// the others.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n model.NativeNotification) error {
	var errs []error
	for _, target := range m {
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
