package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Dispatcher.Window)
	assert.Equal(t, 4, cfg.Dispatcher.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Dispatcher.ClaimTTL)
	assert.Equal(t, 10*time.Minute, cfg.Reminder.LeadTime)
	assert.Equal(t, "* * * * *", cfg.Cron.Schedule)
	assert.Equal(t, "reminders.outcomes", cfg.Redis.Channel)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	yaml := []byte("database:\n  driver: sqlite\ndispatcher:\n  window: 2m\n  concurrency: 2\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("QH_DISPATCHER_CONCURRENCY", "8")
	t.Setenv("QH_CRON_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Dispatcher.Window)
	assert.Equal(t, 8, cfg.Dispatcher.Concurrency)
	assert.Equal(t, "s3cret", cfg.Cron.Secret)
}

func TestLoadConfigFrom_ExplicitFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "trigger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cron:\n  schedule: \"*/5 * * * *\"\n"), 0o600))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", cfg.Cron.Schedule)

	_, err = LoadConfigFrom(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "memory"},
			Dispatcher: DispatcherConfig{
				Window:          5 * time.Minute,
				Concurrency:     4,
				DeliveryTimeout: 30 * time.Second,
				ClaimTTL:        10 * time.Minute,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"zero window", func(c *Config) { c.Dispatcher.Window = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Dispatcher.Concurrency = 0 }, true},
		{"claim ttl below timeout", func(c *Config) { c.Dispatcher.ClaimTTL = time.Second }, true},
		{"claim ttl inside window plus timeout", func(c *Config) { c.Dispatcher.ClaimTTL = 5*time.Minute + 10*time.Second }, true},
		{"claim ttl equal to window plus timeout", func(c *Config) { c.Dispatcher.ClaimTTL = 5*time.Minute + 30*time.Second }, true},
		{"claim ttl just above window plus timeout", func(c *Config) { c.Dispatcher.ClaimTTL = 5*time.Minute + 31*time.Second }, false},
		{"negative lead time", func(c *Config) { c.Reminder.LeadTime = -time.Minute }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
