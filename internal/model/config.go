package model

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Provider identifies the remote mail service an account talks to.
type Provider string

const (
	ProviderGraph Provider = "graph"
	ProviderGmail Provider = "gmail"
	ProviderIMAP  Provider = "imap"
)

// Account holds the configuration for a single mail account.
// Tokens and passwords are kept in the system keyring, never here.
type Account struct {
	// ID is the unique identifier for this account; it keys the
	// keyring credential and the cache entries.
	ID string `mapstructure:"id" yaml:"id"`

	// Username is the sign-in name or mailbox address.
	Username string `mapstructure:"username" yaml:"username"`

	// Provider selects the remote client implementation.
	Provider Provider `mapstructure:"provider" yaml:"provider"`

	// Enabled controls whether background jobs run for this account.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MarkRead marks unread messages as read after they are listed.
	MarkRead bool `mapstructure:"mark_read" yaml:"mark_read"`

	// OAuth application registration used to refresh tokens silently
	// (graph and gmail). Tenant defaults to "common" for graph.
	ClientID     string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret,omitempty"`
	Tenant       string `mapstructure:"tenant" yaml:"tenant,omitempty"`

	// IMAP connection settings.
	Host string `mapstructure:"host" yaml:"host,omitempty"`
	Port string `mapstructure:"port" yaml:"port,omitempty"`
	TLS  bool   `mapstructure:"tls" yaml:"tls,omitempty"`
}

// SyncConfig holds the scheduling and retry settings.
type SyncConfig struct {
	MinIntervalSec int    `mapstructure:"min_interval_sec" yaml:"min_interval_sec"`
	MaxIntervalSec int    `mapstructure:"max_interval_sec" yaml:"max_interval_sec"`
	IntervalSec    int    `mapstructure:"interval_sec" yaml:"interval_sec"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelayMS   int    `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	TaskTimeoutSec int    `mapstructure:"task_timeout_sec" yaml:"task_timeout_sec"`
	Reschedule     string `mapstructure:"reschedule" yaml:"reschedule"`
}

// Reschedule modes for the jittered check job.
const (
	RescheduleOnSubmit   = "submit"
	RescheduleOnComplete = "complete"
)

// MinInterval returns the lower bound of the check job delay.
func (s SyncConfig) MinInterval() time.Duration {
	return time.Duration(s.MinIntervalSec) * time.Second
}

// MaxInterval returns the upper bound of the check job delay.
func (s SyncConfig) MaxInterval() time.Duration {
	return time.Duration(s.MaxIntervalSec) * time.Second
}

// Interval returns the fixed background sync period.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSec) * time.Second
}

// RetryDelay returns the base backoff delay.
func (s SyncConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMS) * time.Millisecond
}

// TaskTimeout returns the upper bound on a single queued task.
func (s SyncConfig) TaskTimeout() time.Duration {
	return time.Duration(s.TaskTimeoutSec) * time.Second
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	TTLSec int `mapstructure:"ttl_sec" yaml:"ttl_sec"`
}

// TTL returns the generic cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme          string `mapstructure:"theme" yaml:"theme"`
	FontSize       int    `mapstructure:"font_size" yaml:"font_size"`
	PrimaryColor   string `mapstructure:"primary_color" yaml:"primary_color"`
	SecondaryColor string `mapstructure:"secondary_color" yaml:"secondary_color"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// NetworkConfig holds settings for outgoing HTTP requests.
type NetworkConfig struct {
	// ProxyURL routes API and token requests through an HTTP(S) or
	// SOCKS5 proxy. Empty means the proxy environment variables apply.
	ProxyURL string `mapstructure:"proxy_url" yaml:"proxy_url"`
}

// Proxy returns the parsed proxy URL, or nil when none is set.
func (n NetworkConfig) Proxy() *url.URL {
	u, err := parseProxy(n.ProxyURL)
	if err != nil {
		return nil
	}
	return u
}

func parseProxy(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("proxy host missing")
	}
	return u, nil
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Accounts []Account     `mapstructure:"accounts" yaml:"accounts"`
	Sync     SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Cache    CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Display  DisplayConfig `mapstructure:"display" yaml:"display"`
	Network  NetworkConfig `mapstructure:"network" yaml:"network"`
	Log      LogConfig     `mapstructure:"log" yaml:"log"`
}

// Account returns the configured account with the given ID.
func (c *AppConfig) Account(id string) (Account, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsync/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultConfigDir returns ~/.config/mailsync, or the working directory
// if the home directory cannot be determined.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailsync")
}

// DefaultAppConfig returns the built-in defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Accounts: []Account{},
		Sync: SyncConfig{
			MinIntervalSec: 300,
			MaxIntervalSec: 600,
			IntervalSec:    300,
			MaxRetries:     3,
			RetryDelayMS:   1000,
			TaskTimeoutSec: 120,
			Reschedule:     RescheduleOnSubmit,
		},
		Cache: CacheConfig{
			TTLSec: 300,
		},
		Display: DisplayConfig{
			Theme:          "light",
			FontSize:       16,
			PrimaryColor:   "#3498db",
			SecondaryColor: "#2ecc71",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var hexColor = regexp.MustCompile(`(?i)^#([0-9a-f]{3}){1,2}$`)

// Normalize replaces invalid settings with their defaults and returns a
// message for each replacement.
func (c *AppConfig) Normalize() []string {
	d := DefaultAppConfig()
	var fixes []string
	fix := func(name string, got, def interface{}) {
		fixes = append(fixes, fmt.Sprintf("invalid %s value %v; using default %v", name, got, def))
	}

	if c.Sync.MinIntervalSec < 1 {
		fix("sync.min_interval_sec", c.Sync.MinIntervalSec, d.Sync.MinIntervalSec)
		c.Sync.MinIntervalSec = d.Sync.MinIntervalSec
	}
	if c.Sync.MaxIntervalSec < 1 || c.Sync.MaxIntervalSec < c.Sync.MinIntervalSec {
		def := d.Sync.MaxIntervalSec
		if def < c.Sync.MinIntervalSec {
			def = c.Sync.MinIntervalSec
		}
		fix("sync.max_interval_sec", c.Sync.MaxIntervalSec, def)
		c.Sync.MaxIntervalSec = def
	}
	if c.Sync.IntervalSec < 1 {
		fix("sync.interval_sec", c.Sync.IntervalSec, d.Sync.IntervalSec)
		c.Sync.IntervalSec = d.Sync.IntervalSec
	}
	if c.Sync.MaxRetries < 0 {
		fix("sync.max_retries", c.Sync.MaxRetries, d.Sync.MaxRetries)
		c.Sync.MaxRetries = d.Sync.MaxRetries
	}
	if c.Sync.RetryDelayMS < 1 {
		fix("sync.retry_delay_ms", c.Sync.RetryDelayMS, d.Sync.RetryDelayMS)
		c.Sync.RetryDelayMS = d.Sync.RetryDelayMS
	}
	if c.Sync.TaskTimeoutSec < 1 {
		fix("sync.task_timeout_sec", c.Sync.TaskTimeoutSec, d.Sync.TaskTimeoutSec)
		c.Sync.TaskTimeoutSec = d.Sync.TaskTimeoutSec
	}
	if c.Sync.Reschedule != RescheduleOnSubmit && c.Sync.Reschedule != RescheduleOnComplete {
		fix("sync.reschedule", c.Sync.Reschedule, d.Sync.Reschedule)
		c.Sync.Reschedule = d.Sync.Reschedule
	}
	if c.Cache.TTLSec < 1 {
		fix("cache.ttl_sec", c.Cache.TTLSec, d.Cache.TTLSec)
		c.Cache.TTLSec = d.Cache.TTLSec
	}
	if c.Display.Theme != "light" && c.Display.Theme != "dark" {
		fix("display.theme", c.Display.Theme, d.Display.Theme)
		c.Display.Theme = d.Display.Theme
	}
	if c.Display.FontSize < 10 || c.Display.FontSize > 24 {
		fix("display.font_size", c.Display.FontSize, d.Display.FontSize)
		c.Display.FontSize = d.Display.FontSize
	}
	if !hexColor.MatchString(c.Display.PrimaryColor) {
		fix("display.primary_color", c.Display.PrimaryColor, d.Display.PrimaryColor)
		c.Display.PrimaryColor = d.Display.PrimaryColor
	}
	if !hexColor.MatchString(c.Display.SecondaryColor) {
		fix("display.secondary_color", c.Display.SecondaryColor, d.Display.SecondaryColor)
		c.Display.SecondaryColor = d.Display.SecondaryColor
	}
	if _, err := parseProxy(c.Network.ProxyURL); err != nil {
		fix("network.proxy_url", c.Network.ProxyURL, `""`)
		c.Network.ProxyURL = d.Network.ProxyURL
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		fix("log.level", c.Log.Level, d.Log.Level)
		c.Log.Level = d.Log.Level
	}

	for i := range c.Accounts {
		if c.Accounts[i].Provider == "" {
			c.Accounts[i].Provider = ProviderGraph
		}
		if c.Accounts[i].Provider == ProviderIMAP && c.Accounts[i].Port == "" {
			c.Accounts[i].Port = "993"
		}
		if c.Accounts[i].Provider == ProviderGraph && c.Accounts[i].Tenant == "" {
			c.Accounts[i].Tenant = "common"
		}
	}

	return fixes
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration. Invalid
// values are replaced with defaults and logged to the context logger.
func LoadConfig(ctx context.Context, path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	d := DefaultAppConfig()
	v.SetDefault("sync.min_interval_sec", d.Sync.MinIntervalSec)
	v.SetDefault("sync.max_interval_sec", d.Sync.MaxIntervalSec)
	v.SetDefault("sync.interval_sec", d.Sync.IntervalSec)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.retry_delay_ms", d.Sync.RetryDelayMS)
	v.SetDefault("sync.task_timeout_sec", d.Sync.TaskTimeoutSec)
	v.SetDefault("sync.reschedule", d.Sync.Reschedule)
	v.SetDefault("cache.ttl_sec", d.Cache.TTLSec)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("display.font_size", d.Display.FontSize)
	v.SetDefault("display.primary_color", d.Display.PrimaryColor)
	v.SetDefault("display.secondary_color", d.Display.SecondaryColor)
	v.SetDefault("network.proxy_url", d.Network.ProxyURL)
	v.SetDefault("log.level", d.Log.Level)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &pathErr) || errors.As(err, &notFound) {
			return d, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Viper unmarshals missing bools as false; treat unset as true.
	for i := range cfg.Accounts {
		if !v.IsSet(fmt.Sprintf("accounts.%d.enabled", i)) {
			cfg.Accounts[i].Enabled = true
		}
		if !v.IsSet(fmt.Sprintf("accounts.%d.mark_read", i)) {
			cfg.Accounts[i].MarkRead = true
		}
	}

	log := zerolog.Ctx(ctx)
	for _, msg := range cfg.Normalize() {
		log.Warn().Str("config", path).Msg(msg)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("sync", cfg.Sync)
	v.Set("cache", cfg.Cache)
	v.Set("display", cfg.Display)
	v.Set("network", cfg.Network)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
