package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Reminder   ReminderConfig   `mapstructure:"reminder"`
	Cron       CronConfig       `mapstructure:"cron"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// RequestsPerSecond bounds API traffic per client IP. Zero disables the limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // postgres, sqlite or memory
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Name        string `mapstructure:"name"`
	SSLMode     string `mapstructure:"sslmode"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// SendsPerSecond throttles outbound mail. Zero means unlimited.
	SendsPerSecond float64 `mapstructure:"sends_per_second"`
}

type DispatcherConfig struct {
	Window          time.Duration `mapstructure:"window"`
	Concurrency     int           `mapstructure:"concurrency"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	ClaimTTL        time.Duration `mapstructure:"claim_ttl"`
}

type ReminderConfig struct {
	LeadTime time.Duration `mapstructure:"lead_time"`
}

type CronConfig struct {
	Secret   string `mapstructure:"secret"`
	Schedule string `mapstructure:"schedule"`
	APIURL   string `mapstructure:"api_url"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type IdentityConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("server.requests_per_second", 20)
	v.SetDefault("server.burst", 40)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "quiet_hours")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "quiet-hours.db")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "reminders.outcomes")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "reminders@quiet-hours.local")

	v.SetDefault("dispatcher.window", 5*time.Minute)
	v.SetDefault("dispatcher.concurrency", 4)
	v.SetDefault("dispatcher.delivery_timeout", 30*time.Second)
	v.SetDefault("dispatcher.claim_ttl", 10*time.Minute)

	v.SetDefault("reminder.lead_time", 10*time.Minute)

	v.SetDefault("cron.schedule", "* * * * *")
	v.SetDefault("cron.api_url", "http://localhost:8080/api/v1/cron/process-notifications")

	v.SetDefault("identity.cache_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads config.yaml when present and applies QH_* environment
// overrides, e.g. QH_DISPATCHER_CONCURRENCY=8.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom reads the given file instead of searching for config.yaml.
// Unlike the search, a missing explicit file is an error.
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix("QH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Dispatcher.Window <= 0 {
		return errors.New("dispatcher.window must be positive")
	}
	if c.Dispatcher.Concurrency < 1 {
		return errors.New("dispatcher.concurrency must be at least 1")
	}
	if c.Dispatcher.DeliveryTimeout <= 0 {
		return errors.New("dispatcher.delivery_timeout must be positive")
	}
	// a claim must outlive the look-ahead plus one send
	if c.Dispatcher.ClaimTTL <= c.Dispatcher.Window+c.Dispatcher.DeliveryTimeout {
		return fmt.Errorf("dispatcher.claim_ttl (%s) must exceed dispatcher.window + dispatcher.delivery_timeout (%s)",
			c.Dispatcher.ClaimTTL, c.Dispatcher.Window+c.Dispatcher.DeliveryTimeout)
	}
	if c.Reminder.LeadTime < 0 {
		return errors.New("reminder.lead_time must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}
