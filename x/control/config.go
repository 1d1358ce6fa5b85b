package control

import "time"

// Config tunes the control-plane behavior.
type Config struct {
	// PollInterval is the monitor task cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"     yaml:"poll_interval"`
	// MetricsCadence is the StreamMetrics snapshot interval.
	MetricsCadence time.Duration `mapstructure:"metrics_cadence" yaml:"metrics_cadence"`
	// StreamBuffer bounds each stream's event channel; a slow consumer
	// suspends the producer instead of growing memory.
	StreamBuffer int `mapstructure:"stream_buffer"               yaml:"stream_buffer"`
	// ClaimTTL bounds a cart claim.
	ClaimTTL time.Duration `mapstructure:"claim_ttl"             yaml:"claim_ttl"`
	// DetectionThreshold is the confidence needed to leave Monitoring.
	DetectionThreshold float64 `mapstructure:"detection_threshold" yaml:"detection_threshold"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:       5 * time.Second,
		MetricsCadence:     5 * time.Second,
		StreamBuffer:       100,
		ClaimTTL:           15 * time.Minute,
		DetectionThreshold: 0.75,
	}
}
