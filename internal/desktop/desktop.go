// Package desktop shows native notifications through the OS notification
// daemon: notify-send on Linux and osascript on macOS.
package desktop

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/dukerupert/tasknotify/internal/model"
)

// PlatformName is the key under which the permission decision is stored.
const PlatformName = "desktop"

const sendTimeout = 5 * time.Second

// PermissionStore persists the permission decision.
type PermissionStore interface {
	GetPermission(platform string) (model.PermissionState, error)
	SetPermission(platform string, state model.PermissionState) error
}

// Prompter asks the user whether native notifications may be shown.
type Prompter func(ctx context.Context) (bool, error)

// Runner executes a command. It is replaced in tests.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// binaryFor returns the notification command for goos, or "" if unsupported.
func binaryFor(goos string) string {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "notify-send"
	case "darwin":
		return "osascript"
	}
	return ""
}

// Desktop is both the permission Platform and the native Notifier for the
// local OS.
type Desktop struct {
	goos    string
	binary  string
	found   bool
	store   PermissionStore
	prompt  Prompter
	run     Runner
	appName string
	logger  *slog.Logger
}

// Option configures a Desktop.
type Option func(*Desktop)

// WithRunner replaces command execution.
func WithRunner(r Runner) Option {
	return func(d *Desktop) { d.run = r }
}

// WithGOOS pretends to run on goos and skips the PATH lookup.
func WithGOOS(goos string) Option {
	return func(d *Desktop) {
		d.goos = goos
		d.binary = binaryFor(goos)
		d.found = d.binary != ""
	}
}

// New detects the local notification command.
func New(store PermissionStore, prompt Prompter, logger *slog.Logger, opts ...Option) *Desktop {
	d := &Desktop{
		goos:    runtime.GOOS,
		binary:  binaryFor(runtime.GOOS),
		store:   store,
		prompt:  prompt,
		run:     execRunner,
		appName: "tasknotify",
		logger:  logger,
	}
	if d.binary != "" {
		_, err := exec.LookPath(d.binary)
		d.found = err == nil
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Desktop) Supported() bool {
	return d.found
}

func (d *Desktop) Permission(ctx context.Context) (model.PermissionState, error) {
	return d.store.GetPermission(PlatformName)
}

func (d *Desktop) RequestPermission(ctx context.Context) (model.PermissionState, error) {
	if d.prompt == nil {
		return model.PermissionDefault, fmt.Errorf("no prompt available")
	}
	ok, err := d.prompt(ctx)
	if err != nil {
		return model.PermissionDefault, fmt.Errorf("prompt: %w", err)
	}

	st := model.PermissionDenied
	if ok {
		st = model.PermissionGranted
	}
	if err := d.store.SetPermission(PlatformName, st); err != nil {
		return model.PermissionDefault, err
	}
	return st, nil
}

// Notify shows n. Notifications sharing a tag replace each other on
// daemons that honour the synchronous/stack hints.
func (d *Desktop) Notify(ctx context.Context, n model.NativeNotification) error {
	if !d.found {
		return fmt.Errorf("desktop notifications unavailable on %s", d.goos)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var args []string
	switch d.binary {
	case "notify-send":
		args = []string{"--app-name=" + d.appName}
		if n.Tag != "" {
			args = append(args,
				"--hint=string:x-canonical-private-synchronous:"+n.Tag,
				"--hint=string:x-dunst-stack-tag:"+n.Tag,
			)
		}
		if !n.Silent {
			args = append(args, "--hint=string:sound-name:message-new-instant")
		}
		args = append(args, "--", n.Title, n.Body)
	case "osascript":
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(n.Body), appleQuote(n.Title))
		if !n.Silent {
			script += ` sound name "default"`
		}
		args = []string{"-e", script}
	}

	if err := d.run(ctx, d.binary, args...); err != nil {
		return fmt.Errorf("desktop notify: %w", err)
	}
	d.logger.Debug("desktop notification shown", "tag", n.Tag)
	return nil
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Open hands target to the platform's default URL handler.
func (d *Desktop) Open(ctx context.Context, target string) error {
	var name string
	switch d.goos {
	case "darwin":
		name = "open"
	case "linux", "freebsd", "openbsd":
		name = "xdg-open"
	default:
		return fmt.Errorf("cannot open %s on %s", target, d.goos)
	}
	return d.run(ctx, name, target)
}
