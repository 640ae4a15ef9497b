package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/pkg/messaging/redis"
	"github.com/jwalitptl/lab-api/pkg/worker"
)

// EnvPrefix prefixes every environment override, e.g. LAB_DATABASE_HOST.
const EnvPrefix = "LAB"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Email    EmailConfig    `mapstructure:"email"`
	Lab      LabConfig      `mapstructure:"lab"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	WorkerPort      int             `mapstructure:"worker_port" envconfig:"worker_port"`
	Environment     string          `mapstructure:"environment"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" envconfig:"write_timeout"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout" envconfig:"request_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" envconfig:"shutdown_timeout"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" envconfig:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"conn_max_lifetime"`
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl" envconfig:"token_ttl"`
}

type RedisConfig struct {
	URL             string        `mapstructure:"url"`
	Channel         string        `mapstructure:"channel"`
	MaxRetries      int           `mapstructure:"max_retries" envconfig:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" envconfig:"retry_backoff"`
	PoolSize        int           `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" envconfig:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" envconfig:"breaker_timeout"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
	MaxFailures   int           `mapstructure:"max_failures" envconfig:"max_failures"`

	// Processed events older than Retention are deleted every CleanupInterval.
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"cleanup_interval"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LabConfig struct {
	Timezone                  string        `mapstructure:"timezone"`
	SLA                       SLAConfig     `mapstructure:"sla"`
	CatalogCacheTTL           time.Duration `mapstructure:"catalog_cache_ttl" envconfig:"catalog_cache_ttl"`
	DashboardRefreshInterval  time.Duration `mapstructure:"dashboard_refresh_interval" envconfig:"dashboard_refresh_interval"`
	WorkloadReconcileInterval time.Duration `mapstructure:"workload_reconcile_interval" envconfig:"workload_reconcile_interval"`
	CriticalAlertRecipients   []string      `mapstructure:"critical_alert_recipients" envconfig:"critical_alert_recipients"`
	DefaultMaxConcurrentTests int           `mapstructure:"default_max_concurrent_tests" envconfig:"default_max_concurrent_tests"`
}

// SLAConfig holds the expected turnaround per priority, in hours.
type SLAConfig struct {
	StatHours   float64 `mapstructure:"stat_hours" envconfig:"stat_hours"`
	HighHours   float64 `mapstructure:"high_hours" envconfig:"high_hours"`
	NormalHours float64 `mapstructure:"normal_hours" envconfig:"normal_hours"`
	LowHours    float64 `mapstructure:"low_hours" envconfig:"low_hours"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_port", 8081)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests_per_second", 20)
	v.SetDefault("server.rate_limit.burst", 40)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "lab")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.token_ttl", "1h")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "lab.events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.breaker_failures", 5)
	v.SetDefault("redis.breaker_timeout", "30s")

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "500ms")
	v.SetDefault("outbox.max_failures", 10)
	v.SetDefault("outbox.retention", "168h")
	v.SetDefault("outbox.cleanup_interval", "1h")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.port", 587)

	v.SetDefault("lab.timezone", "UTC")
	v.SetDefault("lab.sla.stat_hours", 1)
	v.SetDefault("lab.sla.high_hours", 4)
	v.SetDefault("lab.sla.normal_hours", 24)
	v.SetDefault("lab.sla.low_hours", 72)
	v.SetDefault("lab.catalog_cache_ttl", "5m")
	v.SetDefault("lab.dashboard_refresh_interval", "15m")
	v.SetDefault("lab.workload_reconcile_interval", "10m")
	v.SetDefault("lab.default_max_concurrent_tests", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)
}

// LoadConfig reads config.yaml (or the file at path when set), then applies
// LAB_* environment overrides. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be positive")
	}
	if c.Database.MaxOpenConns <= 0 {
		problems = append(problems, "database.max_open_conns must be positive")
	}
	if c.Redis.PoolSize <= 0 {
		problems = append(problems, "redis.pool_size must be positive")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.RetryAttempts <= 0 || c.Outbox.RetryDelay <= 0 {
		problems = append(problems, "outbox batch_size, poll_interval, retry_attempts and retry_delay must be positive")
	}
	if c.Outbox.Retention <= 0 || c.Outbox.CleanupInterval <= 0 {
		problems = append(problems, "outbox retention and cleanup_interval must be positive")
	}
	if c.Lab.DashboardRefreshInterval <= 0 || c.Lab.WorkloadReconcileInterval <= 0 {
		problems = append(problems, "lab dashboard_refresh_interval and workload_reconcile_interval must be positive")
	}
	if _, err := time.LoadLocation(c.Lab.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("lab.timezone %q is not a known timezone", c.Lab.Timezone))
	}
	if c.Lab.DefaultMaxConcurrentTests <= 0 {
		problems = append(problems, "lab.default_max_concurrent_tests must be positive")
	}
	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		problems = append(problems, "email.host and email.from are required when email is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Location returns the lab's timezone, used for "today" on dashboards.
func (c *LabConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SLAs converts configured hours into a model.SLA. Unset priorities fall
// back to model.DefaultSLA.
func (c *LabConfig) SLAs() model.SLA {
	sla := model.SLA{}
	for p, d := range model.DefaultSLA {
		sla[p] = d
	}
	set := func(p model.Priority, hours float64) {
		if hours > 0 {
			sla[p] = time.Duration(hours * float64(time.Hour))
		}
	}
	set(model.PriorityStat, c.SLA.StatHours)
	set(model.PriorityHigh, c.SLA.HighHours)
	set(model.PriorityNormal, c.SLA.NormalHours)
	set(model.PriorityLow, c.SLA.LowHours)
	return sla
}

func (c *OutboxConfig) ToWorkerConfig(channel string) worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		Channel:       channel,
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		MaxFailures:   c.MaxFailures,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:             c.URL,
		MaxRetries:      c.MaxRetries,
		RetryBackoff:    c.RetryBackoff,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}
