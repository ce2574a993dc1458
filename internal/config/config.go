package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Queue          QueueConfig          `yaml:"queue" mapstructure:"queue"`
	Worker         WorkerConfig         `yaml:"worker" mapstructure:"worker"`
	Places         PlacesConfig         `yaml:"places" mapstructure:"places"`
	CompaniesHouse CompaniesHouseConfig `yaml:"companies_house" mapstructure:"companies_house"`
	Anthropic      AnthropicConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	Credentials    CredentialsConfig    `yaml:"credentials" mapstructure:"credentials"`
	Events         EventsConfig         `yaml:"events" mapstructure:"events"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// QueueConfig configures the execution job queue. The postgres queue
// shares the store's connection pool.
type QueueConfig struct {
	Driver           string `yaml:"driver" mapstructure:"driver"` // "postgres" or "memory"
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// WorkerConfig configures the campaign execution worker pool.
type WorkerConfig struct {
	// PoolSize bounds concurrent campaign executions across all tenants,
	// protecting shared provider rate limits.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size"`
	// MaxWallClockMins is the hard per-campaign ceiling; a run exceeding
	// it is forced to failed.
	MaxWallClockMins int `yaml:"max_wall_clock_mins" mapstructure:"max_wall_clock_mins"`
}

// PlacesConfig holds the geocoding/places provider settings.
type PlacesConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxPageSize   int     `yaml:"max_page_size" mapstructure:"max_page_size"`
	RetryMaxTries int     `yaml:"retry_max_tries" mapstructure:"retry_max_tries"`
}

// CompaniesHouseConfig holds the company-registry provider settings.
type CompaniesHouseConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RetryMaxTries int     `yaml:"retry_max_tries" mapstructure:"retry_max_tries"`
}

// AnthropicConfig holds the AI discovery provider settings. Discovery is
// materially slower than the other providers and gets a longer budget.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	Model         string `yaml:"model" mapstructure:"model"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens     int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	RetryMaxTries int    `yaml:"retry_max_tries" mapstructure:"retry_max_tries"`
}

// CredentialsConfig points at the per-tenant credential overrides file.
type CredentialsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// EventsConfig configures the push channel.
type EventsConfig struct {
	// WebhookURL receives every campaign event when set (headless
	// workers forward events here).
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// BufferSize is the per-subscriber channel depth before events are
	// dropped.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// ServerConfig configures the control API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CAMPAIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("queue.driver", "postgres")
	v.SetDefault("queue.poll_interval_secs", 2)
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.max_wall_clock_mins", 30)
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.timeout_secs", 15)
	v.SetDefault("places.rate_per_sec", 5)
	v.SetDefault("places.max_page_size", 20)
	v.SetDefault("places.retry_max_tries", 3)
	v.SetDefault("companies_house.base_url", "https://api.company-information.service.gov.uk")
	v.SetDefault("companies_house.timeout_secs", 30)
	v.SetDefault("companies_house.rate_per_sec", 2)
	v.SetDefault("companies_house.retry_max_tries", 3)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.retry_max_tries", 2)
	v.SetDefault("events.buffer_size", 64)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
