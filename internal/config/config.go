// Package config handles loading and validating voltline configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config is the top-level voltline configuration.
type Config struct {
	Listen        string               `yaml:"listen"`
	DBPath        string               `yaml:"db_path"`
	LogLevel      string               `yaml:"log_level"`
	LogFormat     string               `yaml:"log_format"`
	Remote        RemoteConfig         `yaml:"remote"`
	Sync          SyncConfig           `yaml:"sync"`
	Lock          LockConfig           `yaml:"lock"`
	Retention     RetentionConfig      `yaml:"retention"`
	Notifications []NotificationConfig `yaml:"notifications"`
}

// RemoteConfig describes the GraphQL building API.
type RemoteConfig struct {
	URL               string   `yaml:"url"`
	Token             string   `yaml:"token"`
	Timeout           Duration `yaml:"timeout"`
	PageSize          int      `yaml:"page_size"`
	MaxPages          int      `yaml:"max_pages"`
	MaxAttempts       int      `yaml:"max_attempts"`
	RetryDelay        Duration `yaml:"retry_delay"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	TestBuildingID    string   `yaml:"test_building_id"`
}

// SyncConfig controls the scheduler and the energy derivation.
type SyncConfig struct {
	Interval   Duration `yaml:"interval"`
	Autostart  bool     `yaml:"autostart"`
	PowerUnits []string `yaml:"power_units"`
}

// LockConfig enables the Redis run lock when RedisAddr is set.
type LockConfig struct {
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	Key           string   `yaml:"key"`
	TTL           Duration `yaml:"ttl"`
}

// Enabled reports whether a distributed lock is configured.
func (l LockConfig) Enabled() bool { return l.RedisAddr != "" }

// RetentionConfig bounds how long time-series rows are kept. Zero keeps forever.
type RetentionConfig struct {
	PointSeries Duration `yaml:"point_series"`
	EnergyUsage Duration `yaml:"energy_usage"`
}

// NotificationConfig describes a notification target.
type NotificationConfig struct {
	Type    string            `yaml:"type"` // "ntfy" or "webhook"
	URL     string            `yaml:"url"`
	Topic   string            `yaml:"topic,omitempty"`   // ntfy only
	Method  string            `yaml:"method,omitempty"`  // webhook only
	Headers map[string]string `yaml:"headers,omitempty"` // webhook only
	On      []string          `yaml:"on,omitempty"`
}

// Duration wraps time.Duration with YAML string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file and applies VOLTLINE_*
// environment overrides. With no path, the environment alone must supply
// the remote URL. A missing file yields ErrConfigFileNotFound.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var validStatuses = map[string]bool{"success": true, "partial": true, "failed": true}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("remote.url is required")
	}
	u, err := url.Parse(c.Remote.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.url must be an absolute http(s) URL")
	}
	if c.Remote.PageSize < 1 {
		return fmt.Errorf("remote.page_size must be >= 1")
	}
	if c.Remote.MaxPages < 1 {
		return fmt.Errorf("remote.max_pages must be >= 1")
	}
	if c.Remote.MaxAttempts < 1 {
		return fmt.Errorf("remote.max_attempts must be >= 1")
	}
	if c.Remote.Timeout.Duration <= 0 {
		return fmt.Errorf("remote.timeout must be > 0")
	}
	if c.Remote.RequestsPerSecond < 0 {
		return fmt.Errorf("remote.requests_per_second must be >= 0")
	}
	if c.Sync.Interval.Duration < time.Second {
		return fmt.Errorf("sync.interval must be at least 1s")
	}
	if len(c.Sync.PowerUnits) == 0 {
		return fmt.Errorf("sync.power_units must not be empty")
	}
	if c.Lock.Enabled() && c.Lock.TTL.Duration <= 0 {
		return fmt.Errorf("lock.ttl must be > 0")
	}
	if c.Retention.PointSeries.Duration < 0 || c.Retention.EnergyUsage.Duration < 0 {
		return fmt.Errorf("retention durations must not be negative")
	}
	// Full syncs rebuild energy rows from retained series only.
	if ps := c.Retention.PointSeries.Duration; ps > 0 {
		if eu := c.Retention.EnergyUsage.Duration; eu == 0 || eu > ps {
			return fmt.Errorf("retention.energy_usage must be set and not exceed retention.point_series")
		}
	}
	for i, n := range c.Notifications {
		switch n.Type {
		case "ntfy":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for ntfy", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for ntfy", i)
			}
		case "webhook":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for webhook", i)
			}
		default:
			return fmt.Errorf("notifications[%d]: unknown type %q (expected ntfy or webhook)", i, n.Type)
		}
		for _, s := range n.On {
			if !validStatuses[s] {
				return fmt.Errorf("notifications[%d]: unknown status %q in on", i, s)
			}
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Listen:    ":3900",
		DBPath:    "/data/voltline.db",
		LogLevel:  "info",
		LogFormat: "text",
		Remote: RemoteConfig{
			Timeout:     Duration{30 * time.Second},
			PageSize:    50,
			MaxPages:    100,
			MaxAttempts: 3,
			RetryDelay:  Duration{time.Second},
		},
		Sync: SyncConfig{
			Interval:   Duration{15 * time.Minute},
			Autostart:  true,
			PowerUnits: []string{"Watt", "Watts", "W"},
		},
		Lock: LockConfig{
			Key: "voltline:sync:lock",
			TTL: Duration{30 * time.Minute},
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables become empty.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1])
		return []byte(os.Getenv(key))
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOLTLINE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("VOLTLINE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("VOLTLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VOLTLINE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("VOLTLINE_REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv("VOLTLINE_REMOTE_TOKEN"); v != "" {
		cfg.Remote.Token = v
	}
	if v := os.Getenv("VOLTLINE_TEST_BUILDING_ID"); v != "" {
		cfg.Remote.TestBuildingID = v
	}
	if v := os.Getenv("VOLTLINE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = Duration{d}
		}
	}
	if v := os.Getenv("VOLTLINE_SYNC_AUTOSTART"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sync.Autostart = b
		}
	}
	if v := os.Getenv("VOLTLINE_POWER_UNITS"); v != "" {
		cfg.Sync.PowerUnits = splitList(v)
	}
	if v := os.Getenv("VOLTLINE_REDIS_ADDR"); v != "" {
		cfg.Lock.RedisAddr = v
	}
	if v := os.Getenv("VOLTLINE_REDIS_PASSWORD"); v != "" {
		cfg.Lock.RedisPassword = v
	}

	// Single ntfy target from env vars (only if no YAML notifications configured).
	if len(cfg.Notifications) == 0 {
		if ntfyURL := os.Getenv("VOLTLINE_NTFY_URL"); ntfyURL != "" {
			topic := os.Getenv("VOLTLINE_NTFY_TOPIC")
			if topic == "" {
				topic = "voltline"
			}
			cfg.Notifications = append(cfg.Notifications, NotificationConfig{
				Type:  "ntfy",
				URL:   ntfyURL,
				Topic: topic,
			})
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
