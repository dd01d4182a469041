package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "voltline.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VOLTLINE_LISTEN", "VOLTLINE_DB_PATH", "VOLTLINE_LOG_LEVEL", "VOLTLINE_LOG_FORMAT",
		"VOLTLINE_REMOTE_URL", "VOLTLINE_REMOTE_TOKEN", "VOLTLINE_TEST_BUILDING_ID",
		"VOLTLINE_SYNC_INTERVAL", "VOLTLINE_SYNC_AUTOSTART", "VOLTLINE_POWER_UNITS",
		"VOLTLINE_REDIS_ADDR", "VOLTLINE_REDIS_PASSWORD",
		"VOLTLINE_NTFY_URL", "VOLTLINE_NTFY_TOPIC",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

const minimalYAML = `
remote:
  url: "https://graph.example.com/graphql"
  token: "secret"
`

const fullYAML = `
listen: ":9090"
db_path: "/tmp/test.db"
log_level: "debug"
log_format: "json"

remote:
  url: "https://graph.example.com/graphql"
  token: "tok-123"
  timeout: "10s"
  page_size: 25
  max_pages: 40
  max_attempts: 5
  retry_delay: "250ms"
  requests_per_second: 4
  test_building_id: "B1"

sync:
  interval: "5m"
  autostart: false
  power_units: ["kW", "W"]

lock:
  redis_addr: "127.0.0.1:6379"
  redis_password: "hunter2"
  key: "sites:lock"
  ttl: "10m"

retention:
  point_series: "8760h"
  energy_usage: "720h"

notifications:
  - type: ntfy
    url: "http://10.100.1.104:8080"
    topic: "energy"
  - type: webhook
    url: "https://hooks.example.com/voltline"
    method: "PUT"
    headers:
      Authorization: "Bearer xxx"
    on: ["success", "failed"]
`

func TestLoad_FromYAML(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeYAML(t, fullYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	r := cfg.Remote
	assert.Equal(t, "https://graph.example.com/graphql", r.URL)
	assert.Equal(t, "tok-123", r.Token)
	assert.Equal(t, 10*time.Second, r.Timeout.Duration)
	assert.Equal(t, 25, r.PageSize)
	assert.Equal(t, 40, r.MaxPages)
	assert.Equal(t, 5, r.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, r.RetryDelay.Duration)
	assert.Equal(t, 4.0, r.RequestsPerSecond)
	assert.Equal(t, "B1", r.TestBuildingID)

	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval.Duration)
	assert.False(t, cfg.Sync.Autostart)
	assert.Equal(t, []string{"kW", "W"}, cfg.Sync.PowerUnits)

	assert.True(t, cfg.Lock.Enabled())
	assert.Equal(t, "sites:lock", cfg.Lock.Key)
	assert.Equal(t, 10*time.Minute, cfg.Lock.TTL.Duration)

	assert.Equal(t, 8760*time.Hour, cfg.Retention.PointSeries.Duration)
	assert.Equal(t, 720*time.Hour, cfg.Retention.EnergyUsage.Duration)

	require.Len(t, cfg.Notifications, 2)
	assert.Equal(t, "energy", cfg.Notifications[0].Topic)
	assert.Empty(t, cfg.Notifications[0].On)
	assert.Equal(t, "PUT", cfg.Notifications[1].Method)
	assert.Equal(t, "Bearer xxx", cfg.Notifications[1].Headers["Authorization"])
	assert.Equal(t, []string{"success", "failed"}, cfg.Notifications[1].On)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeYAML(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":3900", cfg.Listen)
	assert.Equal(t, "/data/voltline.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout.Duration)
	assert.Equal(t, 50, cfg.Remote.PageSize)
	assert.Equal(t, 100, cfg.Remote.MaxPages)
	assert.Equal(t, 3, cfg.Remote.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval.Duration)
	assert.True(t, cfg.Sync.Autostart)
	assert.Equal(t, []string{"Watt", "Watts", "W"}, cfg.Sync.PowerUnits)
	assert.False(t, cfg.Lock.Enabled())
	assert.Zero(t, cfg.Retention.PointSeries.Duration)
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	_, err := Load("/nonexistent/path/voltline.yml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_EmptyFileUsesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOLTLINE_REMOTE_URL", "http://localhost:4000/graphql")

	cfg, err := Load(writeYAML(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000/graphql", cfg.Remote.URL)
}

func TestLoad_NoPathFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOLTLINE_REMOTE_URL", "https://graph.example.com/graphql")
	t.Setenv("VOLTLINE_REMOTE_TOKEN", "envtok")
	t.Setenv("VOLTLINE_LISTEN", ":4000")
	t.Setenv("VOLTLINE_DB_PATH", "/tmp/env.db")
	t.Setenv("VOLTLINE_LOG_LEVEL", "warn")
	t.Setenv("VOLTLINE_LOG_FORMAT", "json")
	t.Setenv("VOLTLINE_TEST_BUILDING_ID", "B9")
	t.Setenv("VOLTLINE_SYNC_INTERVAL", "90s")
	t.Setenv("VOLTLINE_SYNC_AUTOSTART", "false")
	t.Setenv("VOLTLINE_POWER_UNITS", "W, kW ,")
	t.Setenv("VOLTLINE_REDIS_ADDR", "redis:6379")
	t.Setenv("VOLTLINE_REDIS_PASSWORD", "pw")
	t.Setenv("VOLTLINE_NTFY_URL", "http://ntfy.local")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "envtok", cfg.Remote.Token)
	assert.Equal(t, ":4000", cfg.Listen)
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "B9", cfg.Remote.TestBuildingID)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval.Duration)
	assert.False(t, cfg.Sync.Autostart)
	assert.Equal(t, []string{"W", "kW"}, cfg.Sync.PowerUnits)
	assert.Equal(t, "redis:6379", cfg.Lock.RedisAddr)
	assert.Equal(t, "pw", cfg.Lock.RedisPassword)

	require.Len(t, cfg.Notifications, 1)
	assert.Equal(t, "ntfy", cfg.Notifications[0].Type)
	assert.Equal(t, "voltline", cfg.Notifications[0].Topic)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOLTLINE_REMOTE_URL", "https://override.example.com/graphql")

	cfg, err := Load(writeYAML(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com/graphql", cfg.Remote.URL)
	assert.Equal(t, "secret", cfg.Remote.Token)
}

func TestLoad_EnvNtfyIgnoredWhenYAMLHasTargets(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOLTLINE_NTFY_URL", "http://ntfy.local")

	cfg, err := Load(writeYAML(t, fullYAML))
	require.NoError(t, err)
	assert.Len(t, cfg.Notifications, 2)
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOLTLINE_SYNC_INTERVAL", "soon")
	t.Setenv("VOLTLINE_SYNC_AUTOSTART", "maybe")

	cfg, err := Load(writeYAML(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval.Duration)
	assert.True(t, cfg.Sync.Autostart)
}

func TestLoad_EnvVarSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRAPH_TOKEN", "from-env")

	cfg, err := Load(writeYAML(t, `
remote:
  url: "https://graph.example.com/graphql"
  token: "${GRAPH_TOKEN}"
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.Token)
}

func TestLoad_EnvVarSubstitution_Unset(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeYAML(t, `
remote:
  url: "${GRAPH_URL_THAT_IS_NOT_SET}"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.url is required")
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeYAML(t, "remote: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeYAML(t, minimalYAML+"sync:\n  interval: \"every so often\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func validConfig() *Config {
	cfg := defaults()
	cfg.Remote.URL = "https://graph.example.com/graphql"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.Remote.URL = "" }, "remote.url is required"},
		{"relative url", func(c *Config) { c.Remote.URL = "/graphql" }, "absolute http(s) URL"},
		{"ftp url", func(c *Config) { c.Remote.URL = "ftp://host/graphql" }, "absolute http(s) URL"},
		{"page size", func(c *Config) { c.Remote.PageSize = 0 }, "remote.page_size"},
		{"max pages", func(c *Config) { c.Remote.MaxPages = 0 }, "remote.max_pages"},
		{"max attempts", func(c *Config) { c.Remote.MaxAttempts = 0 }, "remote.max_attempts"},
		{"timeout", func(c *Config) { c.Remote.Timeout = Duration{} }, "remote.timeout"},
		{"negative rps", func(c *Config) { c.Remote.RequestsPerSecond = -1 }, "requests_per_second"},
		{"short interval", func(c *Config) { c.Sync.Interval = Duration{500 * time.Millisecond} }, "sync.interval"},
		{"no power units", func(c *Config) { c.Sync.PowerUnits = nil }, "sync.power_units"},
		{"lock ttl", func(c *Config) { c.Lock.RedisAddr = "r:6379"; c.Lock.TTL = Duration{} }, "lock.ttl"},
		{"negative retention", func(c *Config) { c.Retention.EnergyUsage = Duration{-time.Hour} }, "retention"},
		{"energy retention only", func(c *Config) { c.Retention.EnergyUsage = Duration{720 * time.Hour} }, ""},
		{"equal retention", func(c *Config) {
			c.Retention = RetentionConfig{PointSeries: Duration{720 * time.Hour}, EnergyUsage: Duration{720 * time.Hour}}
		}, ""},
		{"energy outlives series", func(c *Config) {
			c.Retention = RetentionConfig{PointSeries: Duration{720 * time.Hour}, EnergyUsage: Duration{8760 * time.Hour}}
		}, "retention.energy_usage must be set and not exceed retention.point_series"},
		{"energy kept forever over pruned series", func(c *Config) {
			c.Retention.PointSeries = Duration{720 * time.Hour}
		}, "retention.energy_usage must be set and not exceed retention.point_series"},
		{"ntfy without url", func(c *Config) {
			c.Notifications = []NotificationConfig{{Type: "ntfy", Topic: "t"}}
		}, "url is required for ntfy"},
		{"ntfy without topic", func(c *Config) {
			c.Notifications = []NotificationConfig{{Type: "ntfy", URL: "http://n"}}
		}, "topic is required"},
		{"webhook without url", func(c *Config) {
			c.Notifications = []NotificationConfig{{Type: "webhook"}}
		}, "url is required for webhook"},
		{"unknown type", func(c *Config) {
			c.Notifications = []NotificationConfig{{Type: "email", URL: "x"}}
		}, `unknown type "email"`},
		{"unknown status", func(c *Config) {
			c.Notifications = []NotificationConfig{{Type: "webhook", URL: "http://w", On: []string{"aborted"}}}
		}, `unknown status "aborted"`},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := yaml.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte(`[1, 2]`), &d))
}

func FuzzExpandEnvVars(f *testing.F) {
	f.Add([]byte("remote:\n  token: ${GRAPH_TOKEN}\n"))
	f.Add([]byte("${}"))
	f.Add([]byte("${A}${B}${"))
	f.Add([]byte("no placeholders"))

	f.Fuzz(func(t *testing.T, data []byte) {
		out := expandEnvVars(data)
		if !envVarPattern.Match(data) && string(out) != string(data) {
			t.Fatalf("input without placeholders changed: %q -> %q", data, out)
		}
	})
}
