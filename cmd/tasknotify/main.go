package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/dukerupert/tasknotify/internal/config"
	"github.com/dukerupert/tasknotify/internal/desktop"
	"github.com/dukerupert/tasknotify/internal/logging"
	"github.com/dukerupert/tasknotify/internal/model"
	"github.com/dukerupert/tasknotify/internal/push"
	"github.com/dukerupert/tasknotify/internal/store"
	"github.com/dukerupert/tasknotify/internal/stream"
	"github.com/dukerupert/tasknotify/internal/tui"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: tasknotify [-config path] [command]

Commands:
  run                                     terminal UI (default)
  headless                                log notifications to stderr
  login <session-id>                      store the session
  logout                                  forget the session
  keygen                                  print a new VAPID key pair
  subscribe <endpoint> <p256dh> <auth> [device]
                                          add a web push target
  permission [status|grant|deny|reset]    desktop notification permission

Options:`)
	flag.PrintDefaults()
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("reading .env: %v", err)
	}

	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Usage = usage
	flag.Parse()

	cmd, args := "run", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	switch cmd {
	case "run":
		err = runTUI(cfg)
	case "headless":
		err = runHeadless(cfg)
	case "login":
		err = login(args)
	case "logout":
		err = logout()
	case "keygen":
		err = keygen()
	case "subscribe":
		err = subscribe(cfg, args)
	case "permission":
		err = permissionCmd(cfg, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tasknotify: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg *config.Config) error {
	logFile, err := logging.OpenFile(expandHome(cfg.Log.File))
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := logging.Setup(cfg.Log.Level, logFile)

	// The view asks for consent itself before enabling desktop notifications.
	c, err := build(cfg, logger, desktop.Consent, false)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.svc.Start(ctx); err != nil && !errors.Is(err, stream.ErrNoSession) {
		return err
	}
	go c.svc.Run(ctx)

	p := tea.NewProgram(tui.New(c.svc), tea.WithAltScreen(), tea.WithReportFocus())
	_, err = p.Run()
	return err
}

func runHeadless(cfg *config.Config) error {
	logger := logging.Setup(cfg.Log.Level, os.Stderr)

	c, err := build(cfg, logger, desktop.LinePrompter(os.Stdin, os.Stdout), true)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.svc.Start(ctx); err != nil {
		if errors.Is(err, stream.ErrNoSession) {
			return errors.New("not logged in: run `tasknotify login <session-id>` first")
		}
		return err
	}
	logger.Info("tasknotify running", "server", cfg.ServerURL, "transport", cfg.Stream.Transport)

	if err := c.svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(os.Stderr, "\nShutting down...")
	return nil
}

func login(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: tasknotify login <session-id>")
	}
	creds, err := openCredentials()
	if err != nil {
		return err
	}
	if err := creds.SetSession(args[0]); err != nil {
		return err
	}
	fmt.Println("Session stored.")
	return nil
}

func logout() error {
	creds, err := openCredentials()
	if err != nil {
		return err
	}
	if err := creds.DeleteSession(); err != nil {
		return err
	}
	fmt.Println("Session removed.")
	return nil
}

func keygen() error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("push:\n  vapid_public_key: %s\n  vapid_private_key: %s\n", pub, priv)
	return nil
}

func subscribe(cfg *config.Config, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errors.New("usage: tasknotify subscribe <endpoint> <p256dh> <auth> [device]")
	}
	device := ""
	if len(args) == 4 {
		device = args[3]
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sub, err := store.NewPushStore(db).CreateSubscription(args[0], args[1], args[2], device)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	fmt.Printf("Subscription %d registered for %s\n", sub.ID, sub.Endpoint)
	return nil
}

func permissionCmd(cfg *config.Config, args []string) error {
	action := "status"
	if len(args) > 0 {
		action = args[0]
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	perms := store.NewPermissionStore(db)

	switch action {
	case "status":
	case "grant":
		err = perms.SetPermission(desktop.PlatformName, model.PermissionGranted)
	case "deny":
		err = perms.SetPermission(desktop.PlatformName, model.PermissionDenied)
	case "reset":
		err = perms.ResetPermission(desktop.PlatformName)
	default:
		return fmt.Errorf("unknown permission action %q", action)
	}
	if err != nil {
		return err
	}

	st, err := perms.GetPermission(desktop.PlatformName)
	if err != nil {
		return err
	}
	d := desktop.New(perms, nil, slog.Default())
	fmt.Printf("desktop notifications: %s (supported: %t)\n", st, d.Supported())
	return nil
}
