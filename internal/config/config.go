package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// OUTREACH_DATABASE_URL or OUTREACH_ANALYSIS_RECENCY_WINDOW.
const EnvPrefix = "outreach"

// DefaultRecencyWindow is the production look-back for both the missed
// appointment and the notes.
const DefaultRecencyWindow = 90 * 24 * time.Hour

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" split_words:"true"`
	// HSTSMaxAge is in seconds; zero leaves TLS policy to the proxy.
	HSTSMaxAge int `mapstructure:"hsts_max_age" split_words:"true" validate:"gte=0"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Name            string        `mapstructure:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

// DSN returns URL with its database path replaced by Name, when set.
func (c DatabaseConfig) DSN() (string, error) {
	if c.URL == "" {
		return "", errors.New("database url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	if c.Name != "" {
		u.Path = "/" + c.Name
	}
	return u.String(), nil
}

type AnalysisConfig struct {
	Language      string        `mapstructure:"language" validate:"oneof=italian"`
	RecencyWindow time.Duration `mapstructure:"recency_window" split_words:"true" validate:"gt=0"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" split_words:"true" validate:"required_if=Enabled true"`
	Issuer    string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" split_words:"true" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	ClientTTL         time.Duration `mapstructure:"client_ttl" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type WorkerConfig struct {
	Interval   time.Duration `mapstructure:"interval" validate:"gt=0"`
	Channel    string        `mapstructure:"channel"`
	HealthPort int           `mapstructure:"health_port" split_words:"true" validate:"min=1,max=65535"`
	RunOnStart bool          `mapstructure:"run_on_start" split_words:"true"`
}

type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from" validate:"omitempty,email"`
	To       []string `mapstructure:"to" validate:"omitempty,dive,email"`
}

// Enabled reports whether digests can be sent.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && len(c.To) > 0
}

type LLMConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	APIKey             string        `mapstructure:"api_key" split_words:"true" validate:"required_if=Enabled true"`
	BaseURL            string        `mapstructure:"base_url" split_words:"true"`
	Model              string        `mapstructure:"model"`
	MaxTokens          int           `mapstructure:"max_tokens" split_words:"true"`
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures" split_words:"true"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout" split_words:"true"`
}

type TelemetryConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Headers        string `mapstructure:"headers"`
	ServiceName    string `mapstructure:"service_name" split_words:"true"`
	ServiceVersion string `mapstructure:"service_version" split_words:"true"`
}

func (c TelemetryConfig) Enabled() bool {
	return c.Endpoint != ""
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("analysis.language", "italian")
	v.SetDefault("analysis.recency_window", DefaultRecencyWindow)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 1.0)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("rate_limit.client_ttl", 10*time.Minute)

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	v.SetDefault("worker.interval", 24*time.Hour)
	v.SetDefault("worker.channel", "outreach.candidates")
	v.SetDefault("worker.health_port", 8081)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.max_tokens", 16)
	v.SetDefault("llm.breaker_max_failures", 3)
	v.SetDefault("llm.breaker_timeout", time.Minute)

	v.SetDefault("telemetry.service_name", "physio-outreach")
	v.SetDefault("telemetry.service_version", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configFile, or config.yml from the usual locations when
// configFile is empty, then applies OUTREACH_* environment overrides and
// validates the result. A missing config.yml is not an error: defaults and
// the environment are enough to run.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}
