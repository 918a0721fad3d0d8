// Package config loads service configuration from diligence.yaml with
// DILIGENCE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	AdminPort int    `mapstructure:"admin_port"`
	AuthToken string `mapstructure:"auth_token"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig holds the retrieval cache settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// TemporalConfig holds the workflow engine connection settings.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
}

// LLMConfig holds the inference service settings.
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProviderConfig describes one evidence capability service.
type ProviderConfig struct {
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	Path              string        `mapstructure:"path"`
	Types             []string      `mapstructure:"types"`
	CredibilityPrior  float64       `mapstructure:"credibility_prior"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// CollectorConfig tunes the evidence gathering loop.
type CollectorConfig struct {
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BaseBackoff         time.Duration `mapstructure:"base_backoff"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
}

// ReflectionConfig tunes claim evaluation.
type ReflectionConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	PartialFloor  float64 `mapstructure:"partial_floor"`
}

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Reflection ReflectionConfig `mapstructure:"reflection"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.admin_port", 9091)
	v.SetDefault("database.host", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "diligence")
	v.SetDefault("database.database", "diligence")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.idle_connections", 5)
	v.SetDefault("database.max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.cache_ttl", 6*time.Hour)
	v.SetDefault("temporal.host_port", "temporal:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("llm.base_url", "http://llm-service:8000")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("collector.max_concurrent", 4)
	v.SetDefault("collector.max_attempts", 3)
	v.SetDefault("collector.base_backoff", 500*time.Millisecond)
	v.SetDefault("collector.similarity_threshold", 0.9)
	v.SetDefault("reflection.max_iterations", 3)
	v.SetDefault("reflection.partial_floor", 0.0)
}

// Load reads config from CONFIG_PATH (default ./config/diligence.yaml) and
// applies DILIGENCE_* environment overrides. A missing file is not an error;
// defaults plus environment cover container deployments.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DILIGENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/diligence.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Reflection.MaxIterations < 1 {
		return fmt.Errorf("reflection max_iterations must be at least 1, got %d", c.Reflection.MaxIterations)
	}
	for _, p := range c.Providers {
		if p.Name == "" || p.BaseURL == "" {
			return fmt.Errorf("provider entries need name and base_url, got %+v", p)
		}
	}
	return nil
}
