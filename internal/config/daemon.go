package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Transport and cache kinds.
const (
	KindRedis  = "redis"
	KindMemory = "memory"
)

// Toast backends.
const (
	ToastBackendDesktop = "desktop"
	ToastBackendLog     = "log"
)

// DaemonConfig is the configuration for campusbelld.
// Loaded from ~/.config/campusbell/campusbelld.toml
type DaemonConfig struct {
	User       UserConfig       `toml:"user" yaml:"user" envPrefix:"USER_"`
	Transport  TransportConfig  `toml:"transport" yaml:"transport" envPrefix:"TRANSPORT_"`
	Cache      CacheConfig      `toml:"cache" yaml:"cache" envPrefix:"CACHE_"`
	Sound      SoundConfig      `toml:"sound" yaml:"sound" envPrefix:"SOUND_"`
	Toast      ToastConfig      `toml:"toast" yaml:"toast" envPrefix:"TOAST_"`
	Navigation NavigationConfig `toml:"navigation" yaml:"navigation" envPrefix:"NAVIGATION_"`
	Log        LogConfig        `toml:"log" yaml:"log" envPrefix:"LOG_"`
}

// UserConfig identifies the signed-in user whose events are consumed.
type UserConfig struct {
	ID string `toml:"id" yaml:"id" env:"ID"`
}

// TransportConfig selects and configures the push channel.
type TransportConfig struct {
	Kind           string   `toml:"kind" yaml:"kind" env:"KIND"`                // "redis" or "memory"
	RedisURL       string   `toml:"redis_url" yaml:"redis_url" env:"REDIS_URL"` // redis://host:port/db or host:port
	ChannelPrefix  string   `toml:"channel_prefix" yaml:"channel_prefix" env:"CHANNEL_PREFIX"`
	ConnectTimeout Duration `toml:"connect_timeout" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// CacheConfig configures query cache invalidation.
type CacheConfig struct {
	Kind                string `toml:"kind" yaml:"kind" env:"KIND"`                // "redis" or "memory"
	RedisURL            string `toml:"redis_url" yaml:"redis_url" env:"REDIS_URL"` // empty = transport.redis_url
	KeyPrefix           string `toml:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
	InvalidationChannel string `toml:"invalidation_channel" yaml:"invalidation_channel" env:"INVALIDATION_CHANNEL"`
}

// SoundConfig contains audio settings.
type SoundConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Volume     float64 `toml:"volume" yaml:"volume" env:"VOLUME"` // 0.0-1.0
	SampleRate int     `toml:"sample_rate" yaml:"sample_rate" env:"SAMPLE_RATE"`

	// Custom maps an event type to a sound file played instead of its tone
	Custom map[string]string `toml:"custom" yaml:"custom" env:"CUSTOM"`
}

// ToastConfig contains visible alert settings.
type ToastConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Backend string `toml:"backend" yaml:"backend" env:"BACKEND"` // "desktop" or "log"
	AppName string `toml:"app_name" yaml:"app_name" env:"APP_NAME"`
	Icon    string `toml:"icon" yaml:"icon" env:"ICON"`
}

// NavigationConfig configures the toast "View" action.
type NavigationConfig struct {
	NotificationsURL string `toml:"notifications_url" yaml:"notifications_url" env:"NOTIFICATIONS_URL"`
	Opener           string `toml:"opener" yaml:"opener" env:"OPENER"` // empty = xdg-open
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL"`    // debug, info, warn, error
	Format string `toml:"format" yaml:"format" env:"FORMAT"` // text, json
}

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Transport: TransportConfig{
			Kind:           KindRedis,
			RedisURL:       "redis://localhost:6379/0",
			ChannelPrefix:  "notifications:",
			ConnectTimeout: Duration(10 * time.Second),
		},
		Cache: CacheConfig{
			Kind:                KindRedis,
			KeyPrefix:           "campusbell:cache:",
			InvalidationChannel: "campusbell:cache:invalidate",
		},
		Sound: SoundConfig{
			Enabled:    true,
			Volume:     0.5,
			SampleRate: 44100,
			Custom:     map[string]string{},
		},
		Toast: ToastConfig{
			Enabled: true,
			Backend: ToastBackendDesktop,
			AppName: "campusbell",
			Icon:    "mail-unread",
		},
		Navigation: NavigationConfig{
			NotificationsURL: "https://campus.example/notifications",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DaemonConfigPath returns the path to the daemon config file.
func DaemonConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "campusbelld.toml"), nil
}

// LoadDaemonConfig loads the daemon configuration from the default path.
func LoadDaemonConfig() (*DaemonConfig, error) {
	path, err := DaemonConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadDaemonConfigFrom(path)
}

// LoadDaemonConfigFrom loads defaults, overlays the file at path (if it
// exists) and the environment, then validates the result.
func LoadDaemonConfigFrom(path string) (*DaemonConfig, error) {
	config := DefaultDaemonConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save writes the configuration to path atomically.
func (c *DaemonConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	kinds := []string{KindRedis, KindMemory}

	if !slices.Contains(kinds, c.Transport.Kind) {
		return fmt.Errorf("invalid transport kind %q, must be one of: %v", c.Transport.Kind, kinds)
	}
	if c.Transport.Kind == KindRedis {
		if c.User.ID == "" {
			return fmt.Errorf("user.id is required for the redis transport")
		}
		if c.Transport.RedisURL == "" {
			return fmt.Errorf("transport.redis_url is required for the redis transport")
		}
	}
	if c.Transport.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative")
	}

	if !slices.Contains(kinds, c.Cache.Kind) {
		return fmt.Errorf("invalid cache kind %q, must be one of: %v", c.Cache.Kind, kinds)
	}
	if c.Cache.Kind == KindRedis && c.CacheRedisURL() == "" {
		return fmt.Errorf("cache.redis_url or transport.redis_url is required for the redis cache")
	}

	if c.Sound.Volume < 0 || c.Sound.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %g", c.Sound.Volume)
	}
	if c.Sound.SampleRate < 8000 || c.Sound.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", c.Sound.SampleRate)
	}
	for category, path := range c.Sound.Custom {
		if category == "" || path == "" {
			return fmt.Errorf("custom sound entries need a category and a path, got %q = %q", category, path)
		}
	}

	backends := []string{ToastBackendDesktop, ToastBackendLog}
	if !slices.Contains(backends, c.Toast.Backend) {
		return fmt.Errorf("invalid toast backend %q, must be one of: %v", c.Toast.Backend, backends)
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.Log.Level, levels)
	}
	formats := []string{"text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %v", c.Log.Format, formats)
	}

	return nil
}

// CacheRedisURL returns the redis URL of the cache, falling back to the transport's.
func (c *DaemonConfig) CacheRedisURL() string {
	if c.Cache.RedisURL != "" {
		return c.Cache.RedisURL
	}
	return c.Transport.RedisURL
}

// CustomSounds returns the custom sound mapping with ~ expanded.
func (c *DaemonConfig) CustomSounds() map[string]string {
	sounds := make(map[string]string, len(c.Sound.Custom))
	for category, path := range c.Sound.Custom {
		sounds[category] = ExpandPath(path)
	}
	return sounds
}
