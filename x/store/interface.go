// Package store is the client of the coordination service (Redis): claims,
// durable lifecycle snapshots, sessions, time-series metrics, the alert
// queue and proxy health. It is the system's only distributed
// mutual-exclusion mechanism; no client-side locking is layered on top.
package store

import (
	"context"
	"time"

	"github.com/colosseo-ops/acquirer/x/lifecycle"
)

// Store is the coordination surface shared by all workers.
type Store interface {
	// TryClaim atomically creates the claim record for resourceID if it is
	// absent, bounded by ttl. It reports whether this caller won.
	TryClaim(ctx context.Context, resourceID, token string, ttl time.Duration) (bool, error)

	// Release deletes the claim only if token still owns it. It reports
	// whether a record was removed.
	Release(ctx context.Context, resourceID, token string) (bool, error)

	// ClaimHolder returns the current claim token, or ErrNotFound.
	ClaimHolder(ctx context.Context, resourceID string) (string, error)

	// SaveState persists a lifecycle snapshot under the state TTL.
	SaveState(ctx context.Context, targetID string, state lifecycle.State) error

	// LoadState returns the persisted snapshot, or ErrNotFound after TTL
	// expiry.
	LoadState(ctx context.Context, targetID string) (lifecycle.State, error)

	// SaveSession stores an opaque session blob with a caller-chosen TTL.
	SaveSession(ctx context.Context, sessionID, blob string, ttl time.Duration) error

	// LoadSession returns the session blob, or ErrNotFound.
	LoadSession(ctx context.Context, sessionID string) (string, error)

	// RecordMetric appends a timestamped sample and prunes the series to
	// the retention window.
	RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) error

	// GetMetrics returns samples with timestamp >= since, ascending.
	GetMetrics(ctx context.Context, name string, labels map[string]string, since time.Time) ([]MetricSample, error)

	// QueueAlert pushes an alert for downstream notification workers. The
	// queue is capped; the oldest entries are dropped past the cap.
	QueueAlert(ctx context.Context, alert Alert) error

	// DequeueAlert pops the oldest alert, or returns nil on an empty queue.
	DequeueAlert(ctx context.Context) (*Alert, error)

	// UpdateProxyHealth records one request outcome for a proxy.
	UpdateProxyHealth(ctx context.Context, proxyURL string, success bool, latencyMS int64) error

	// GetProxyHealth returns the aggregated record; a proxy with zero
	// observations scores 1.0.
	GetProxyHealth(ctx context.Context, proxyURL string) (ProxyHealth, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// MetricSample is one point of a time series.
type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// AlertLevel orders alerts by severity.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is queued for downstream delivery (Telegram, webhook workers).
type Alert struct {
	Level      AlertLevel     `json:"level"`
	Timestamp  time.Time      `json:"timestamp"`
	Target     string         `json:"target"`
	Status     string         `json:"status"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ProxyHealth aggregates request outcomes per proxy over the rolling
// window.
type ProxyHealth struct {
	ProxyURL      string    `json:"proxy_url"`
	HealthScore   float64   `json:"health_score"`
	SuccessCount  int64     `json:"success_count"`
	ErrorCount    int64     `json:"error_count"`
	LastLatencyMS int64     `json:"last_latency_ms"`
	LastUsed      time.Time `json:"last_used,omitzero"`
}
