// Package config loads, validates and watches the acquirer configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/colosseo-ops/acquirer/server/api"
	"github.com/colosseo-ops/acquirer/x/control"
	"github.com/colosseo-ops/acquirer/x/store"
)

// Config holds the complete application configuration
type Config struct {
	API     api.Config     `mapstructure:"api"     yaml:"api"`
	Redis   store.Config   `mapstructure:"redis"   yaml:"redis"`
	Monitor control.Config `mapstructure:"monitor" yaml:"monitor"`
	Metrics MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig      `mapstructure:"log"     yaml:"log"`

	mu sync.Mutex
	v  *viper.Viper
}

// MetricsConfig holds metrics exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fallback env aliases for the coordination store
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
			cfg.Redis.Addr = addr
		}
	}
	if strings.TrimSpace(cfg.Redis.Password) == "" {
		if pw := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); pw != "" {
			cfg.Redis.Password = pw
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults; write_timeout stays 0 because the monitoring and
	// metrics endpoints hold long-lived streamed responses.
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "0s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", store.DefaultPrefix)
	v.SetDefault("redis.max_alert_queue", 1000)

	v.SetDefault("monitor.poll_interval", "5s")
	v.SetDefault("monitor.metrics_cadence", "5s")
	v.SetDefault("monitor.stream_buffer", 100)
	v.SetDefault("monitor.claim_ttl", "15m")
	v.SetDefault("monitor.detection_threshold", 0.75)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	return c.validateMonitor()
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.ListenAddr) == "" {
		return fmt.Errorf("api.listen_addr must not be empty")
	}
	if c.API.ReadTimeout < 0 || c.API.WriteTimeout < 0 {
		return fmt.Errorf("api timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr must not be empty")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB)
	}
	if c.Redis.MaxAlertQueue <= 0 {
		return fmt.Errorf("redis.max_alert_queue must be positive, got %d", c.Redis.MaxAlertQueue)
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.ClaimTTL <= 0 {
		return fmt.Errorf("monitor.claim_ttl must be positive")
	}
	if c.Monitor.DetectionThreshold <= 0 || c.Monitor.DetectionThreshold > 1 {
		return fmt.Errorf("monitor.detection_threshold must be in (0, 1], got %f",
			c.Monitor.DetectionThreshold)
	}
	if c.Monitor.StreamBuffer <= 0 {
		return fmt.Errorf("monitor.stream_buffer must be positive")
	}
	return nil
}

// Watch re-reads the file on change and invokes onChange with the fresh
// monitor section when it validates. Only the monitor tuning is hot;
// listener and store changes need a restart.
func (c *Config) Watch(onChange func(control.Config)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(fsnotify.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		var fresh Config
		if err := c.v.Unmarshal(&fresh); err != nil {
			return
		}
		if err := fresh.validateMonitor(); err != nil {
			return
		}
		c.Monitor = fresh.Monitor
		onChange(fresh.Monitor)
	})
	c.v.WatchConfig()
}

// PollInterval returns the current monitor poll interval; safe under
// concurrent Watch updates.
func (c *Config) PollInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Monitor.PollInterval
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API:     api.DefaultConfig(),
		Redis:   store.DefaultConfig(),
		Monitor: control.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
