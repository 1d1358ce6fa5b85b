package store

import "time"

// Retention and durability bounds. Every record carries a TTL so a crashed
// worker cannot leave stale locks or state alive indefinitely.
const (
	StateTTL      = time.Hour
	MetricWindow  = 24 * time.Hour
	ProxyWindow   = 24 * time.Hour
	DefaultPrefix = "colosseo:"
)

// Config holds connection parameters for the coordination store.
type Config struct {
	Addr          string `mapstructure:"addr"            yaml:"addr"`
	Password      string `mapstructure:"password"        yaml:"password"`
	DB            int    `mapstructure:"db"              yaml:"db"`
	KeyPrefix     string `mapstructure:"key_prefix"      yaml:"key_prefix"`
	MaxAlertQueue int64  `mapstructure:"max_alert_queue" yaml:"max_alert_queue"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          "localhost:6379",
		KeyPrefix:     DefaultPrefix,
		MaxAlertQueue: 1000,
	}
}
