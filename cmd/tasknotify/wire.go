package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/tasknotify/internal/app"
	"github.com/dukerupert/tasknotify/internal/config"
	"github.com/dukerupert/tasknotify/internal/credential"
	"github.com/dukerupert/tasknotify/internal/database"
	"github.com/dukerupert/tasknotify/internal/desktop"
	"github.com/dukerupert/tasknotify/internal/permission"
	"github.com/dukerupert/tasknotify/internal/push"
	"github.com/dukerupert/tasknotify/internal/router"
	"github.com/dukerupert/tasknotify/internal/settings"
	"github.com/dukerupert/tasknotify/internal/store"
	"github.com/dukerupert/tasknotify/internal/stream"
	"github.com/dukerupert/tasknotify/internal/toast"
)

// client is a fully wired service plus the resources to release.
type client struct {
	svc    *app.Service
	stream *stream.Client
	db     *sql.DB
}

func (c *client) Close() {
	c.stream.Disconnect()
	c.db.Close()
}

// loggedQueue logs every toast before queueing it. Headless mode has no
// screen to show them on.
type loggedQueue struct {
	*toast.Queue
	logger *slog.Logger
}

func (q loggedQueue) Add(typ toast.Type, title, message string, opts toast.Options) int64 {
	id := q.Queue.Add(typ, title, message, opts)
	q.logger.Info(title, "toast_id", id, "type", typ, "message", message)
	return id
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(expandHome(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func openCredentials() (*credential.Store, error) {
	return credential.Open(filepath.Join(config.Dir(), "credentials"))
}

func newTransport(cfg *config.Config) stream.Transport {
	if cfg.Stream.Transport == config.TransportWebSocket {
		return stream.NewWebSocketTransport(cfg.StreamURL(), nil)
	}
	return stream.NewSSETransport(cfg.StreamURL(), nil)
}

// build wires every component. When logToasts is set, toasts are also
// written to the log.
func build(cfg *config.Config, logger *slog.Logger, prompt desktop.Prompter, logToasts bool) (*client, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	creds, err := openCredentials()
	if err != nil {
		db.Close()
		return nil, err
	}

	clock := clockwork.NewRealClock()
	dt := desktop.New(store.NewPermissionStore(db), prompt, logger.With("component", "desktop"))

	native := nativeTargets(cfg, dt, store.NewPushStore(db), logger)

	gateway := permission.NewGateway(dt, logger.With("component", "permission"))
	queue := toast.New(clock,
		toast.WithDefaultDuration(cfg.Toast.DefaultDuration),
		toast.WithLimit(cfg.Toast.MaxEntries),
	)
	var sink router.ToastQueue = queue
	if logToasts {
		sink = loggedQueue{Queue: queue, logger: logger.With("component", "toast")}
	}

	navigate := func(todoID string) {
		target := strings.TrimRight(cfg.ServerURL, "/") + "/todos/" + todoID
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dt.Open(ctx, target); err != nil {
			logger.Warn("open todo failed", "todo_id", todoID, "error", err)
		}
	}

	sc := stream.NewClient(newTransport(cfg), clock, stream.Config{
		MaxAttempts: cfg.Stream.MaxAttempts,
		BaseDelay:   cfg.Stream.BaseDelay,
	}, logger.With("component", "stream"), func(s stream.Status) {
		logger.Debug("connection state", "component", "stream", "state", s.State, "attempt", s.Attempt)
	})

	svc := app.New(app.Deps{
		Stream:   sc,
		Router:   router.New(sink, native, gateway, navigate, logger.With("component", "router")),
		Toasts:   queue,
		Settings: settings.NewStore(settings.NewHTTPAPI(cfg.SettingsURL(), creds.Session), logger.With("component", "settings")),
		Gateway:  gateway,
		Sessions: creds,
		Clock:    clock,
		Logger:   logger.With("component", "app"),
	})

	return &client{svc: svc, stream: sc, db: db}, nil
}

// nativeTargets collects the enabled native notification targets. It
// returns nil when none is enabled.
func nativeTargets(cfg *config.Config, dt *desktop.Desktop, subs push.SubscriptionStore, logger *slog.Logger) router.Notifier {
	var targets router.MultiNotifier
	if cfg.Desktop.Enabled {
		targets = append(targets, dt)
	}
	pushCfg := push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
	}
	if pushCfg.Enabled() {
		targets = append(targets, push.NewService(pushCfg, subs, logger.With("component", "push")))
		if !dt.Supported() {
			// The permission gateway reads the desktop platform, so push
			// is gated off too.
			logger.Warn("web push configured but native notifications are unavailable on this host, push targets will not fire",
				"platform", desktop.PlatformName)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	return targets
}
