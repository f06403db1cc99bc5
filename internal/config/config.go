package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dialect identifies an upstream worker's wire protocol family.
type Dialect string

const (
	DialectOpenAI  Dialect = "openai-style"
	DialectNative  Dialect = "native-style"
	DialectCluster Dialect = "cluster-style"
)

// WorkerSpec describes one upstream inference server as read from config.
type WorkerSpec struct {
	ID                    string  `mapstructure:"id"`
	Host                  string  `mapstructure:"host"`
	Port                  int     `mapstructure:"port"`
	Dialect               Dialect `mapstructure:"dialect"`
	Model                 string  `mapstructure:"model"`
	MaxConcurrentRequests int     `mapstructure:"max_concurrent_requests"`
}

// Config holds all configuration for inferlb's core pool and its admin
// HTTP surface.
type Config struct {
	Workers                []WorkerSpec  `mapstructure:"workers"`
	HealthCheckInterval    time.Duration `mapstructure:"health_check_interval"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout"`
	MaxRetries             int           `mapstructure:"max_retries"`
	MaxConcurrentBatch     int           `mapstructure:"max_concurrent_batch"`
	EnableMetrics          bool          `mapstructure:"enable_metrics"`
	ServerPort             int           `mapstructure:"server_port"`
	AllowedOrigins         []string      `mapstructure:"allowed_origins"`
	MaxRequestSizeMB       int           `mapstructure:"max_request_size_mb"`
	ShutdownDrainSeconds   int           `mapstructure:"shutdown_drain_seconds"`
	ShutdownTimeoutSeconds int           `mapstructure:"shutdown_timeout_seconds"`
}

// Load reads configuration from a TOML file plus INFERLB_-prefixed
// environment variable overrides, then validates and normalizes it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/inferlb")
	}

	v.SetEnvPrefix("INFERLB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// duration fields sourced from TOML ints are bare second counts, which
	// decode as nanoseconds; scale them to seconds
	cfg.HealthCheckInterval *= time.Second
	cfg.RequestTimeout *= time.Second

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	log.Printf("INFO:  configuration loaded from %s", v.ConfigFileUsed())
	log.Printf("INFO:    workers: %d", len(cfg.Workers))
	log.Printf("INFO:    health_check_interval: %v", cfg.HealthCheckInterval)
	log.Printf("INFO:    request_timeout: %v", cfg.RequestTimeout)
	log.Printf("INFO:    max_retries: %d", cfg.MaxRetries)
	log.Printf("INFO:    max_concurrent_batch: %d", cfg.MaxConcurrentBatch)
	log.Printf("INFO:    enable_metrics: %v", cfg.EnableMetrics)
	log.Printf("INFO:    server_port: %d", cfg.ServerPort)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("health_check_interval", 30)
	v.SetDefault("request_timeout", 300)
	v.SetDefault("max_retries", 3)
	v.SetDefault("max_concurrent_batch", 50)
	v.SetDefault("enable_metrics", true)
	v.SetDefault("server_port", 8080)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("max_request_size_mb", 4)
	v.SetDefault("shutdown_drain_seconds", 2)
	v.SetDefault("shutdown_timeout_seconds", 10)
}

// Validate applies the defaulting rules spec.md §6 requires of resolved
// configuration, independent of where it was sourced from. A max_retries
// of 0 is kept (no retries); only a negative value is replaced by 3.
func Validate(cfg *Config) error {
	if len(cfg.Workers) == 0 {
		return fmt.Errorf("at least one worker must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Workers))
	for i := range cfg.Workers {
		w := &cfg.Workers[i]
		if w.ID == "" {
			return fmt.Errorf("worker[%d]: id is required", i)
		}
		if _, dup := seen[w.ID]; dup {
			return fmt.Errorf("worker[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = struct{}{}
		switch w.Dialect {
		case DialectOpenAI, DialectNative, DialectCluster:
		default:
			return fmt.Errorf("worker %q: unknown dialect %q", w.ID, w.Dialect)
		}
		if w.MaxConcurrentRequests <= 0 {
			w.MaxConcurrentRequests = 5
		}
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxConcurrentBatch <= 0 {
		cfg.MaxConcurrentBatch = 50
	}
	return nil
}
