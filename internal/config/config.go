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
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SlowRequest     time.Duration `mapstructure:"slow_request"`
}

type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"` // memory, sqlite or postgres
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type LogConfig struct {
	Level           string `mapstructure:"level"`
	ErrorSampleRate int    `mapstructure:"error_sample_rate"`
	OTEL            bool   `mapstructure:"otel"`
	ServiceName     string `mapstructure:"service_name"`
}

type EvaluationConfig struct {
	BatchConcurrency int `mapstructure:"batch_concurrency"`
	MaxBatch         int `mapstructure:"max_batch"`
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. Environment variables use
// the RULES_ prefix with dots replaced by underscores, e.g.
// RULES_DATABASE_DRIVER. DATABASE_URL and PORT are honoured as well.
//
// An empty path looks for rules.yaml in the working directory and tolerates
// its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.slow_request", 500*time.Millisecond)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.error_sample_rate", 1)
	v.SetDefault("log.otel", false)
	v.SetDefault("log.service_name", "eligibility-rules")
	v.SetDefault("evaluation.batch_concurrency", 8)
	v.SetDefault("evaluation.max_batch", 1000)

	v.SetEnvPrefix("RULES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "RULES_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("server.port", "RULES_SERVER_PORT", "PORT")
	_ = v.BindEnv("log.level", "RULES_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("log.otel", "RULES_LOG_OTEL", "OTEL_ENABLED")
	_ = v.BindEnv("log.service_name", "RULES_LOG_SERVICE_NAME", "OTEL_SERVICE_NAME")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rules")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q (use memory, sqlite or postgres)", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Evaluation.BatchConcurrency < 1 {
		return fmt.Errorf("evaluation.batch_concurrency must be positive, got %d", c.Evaluation.BatchConcurrency)
	}
	if c.Evaluation.MaxBatch < 1 {
		return fmt.Errorf("evaluation.max_batch must be positive, got %d", c.Evaluation.MaxBatch)
	}
	return nil
}
