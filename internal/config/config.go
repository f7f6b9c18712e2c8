// Package config loads tasknotify's YAML configuration with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TASKNOTIFY"

// Transport names accepted for stream.transport.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

type StreamConfig struct {
	Path        string        `mapstructure:"path"`
	Transport   string        `mapstructure:"transport"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type SettingsConfig struct {
	Path string `mapstructure:"path"`
}

type ToastConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
	MaxEntries      int           `mapstructure:"max_entries"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// PushConfig holds the VAPID identity used to relay native notifications
// through web push. Push is off unless both keys are set.
type PushConfig struct {
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"`
}

type DesktopConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the top-level configuration.
type Config struct {
	ServerURL string         `mapstructure:"server_url"`
	DBPath    string         `mapstructure:"db_path"`
	Stream    StreamConfig   `mapstructure:"stream"`
	Settings  SettingsConfig `mapstructure:"settings"`
	Toast     ToastConfig    `mapstructure:"toast"`
	Log       LogConfig      `mapstructure:"log"`
	Push      PushConfig     `mapstructure:"push"`
	Desktop   DesktopConfig  `mapstructure:"desktop"`
}

// Dir returns ~/.config/tasknotify, or the working directory when the
// home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tasknotify")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("db_path", filepath.Join(Dir(), "state.db"))
	v.SetDefault("stream.path", "/api/notifications/stream")
	v.SetDefault("stream.transport", TransportSSE)
	v.SetDefault("stream.max_attempts", 5)
	v.SetDefault("stream.base_delay", time.Second)
	v.SetDefault("settings.path", "/api/notification-settings")
	v.SetDefault("toast.default_duration", 5*time.Second)
	v.SetDefault("toast.max_entries", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(Dir(), "tasknotify.log"))
	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "")
	v.SetDefault("desktop.enabled", true)
}

// Load reads the YAML file at path. A missing file yields the defaults.
// Every key can be overridden by TASKNOTIFY_<KEY> with dots replaced by
// underscores, e.g. TASKNOTIFY_STREAM_TRANSPORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_url %q is not an absolute URL", c.ServerURL)
	}
	switch c.Stream.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("stream.transport %q: want %s or %s", c.Stream.Transport, TransportSSE, TransportWebSocket)
	}
	if c.Stream.MaxAttempts <= 0 {
		return fmt.Errorf("stream.max_attempts must be positive, got %d", c.Stream.MaxAttempts)
	}
	if c.Stream.BaseDelay <= 0 {
		return fmt.Errorf("stream.base_delay must be positive, got %s", c.Stream.BaseDelay)
	}
	if c.Toast.MaxEntries < 0 {
		return fmt.Errorf("toast.max_entries must not be negative, got %d", c.Toast.MaxEntries)
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return errors.New("push: set both vapid_public_key and vapid_private_key, or neither")
	}
	return nil
}

// StreamURL returns the absolute push endpoint URL.
func (c *Config) StreamURL() string {
	return join(c.ServerURL, c.Stream.Path)
}

// SettingsURL returns the absolute settings API URL.
func (c *Config) SettingsURL() string {
	return join(c.ServerURL, c.Settings.Path)
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
