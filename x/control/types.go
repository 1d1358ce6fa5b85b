package control

import (
	"github.com/colosseo-ops/acquirer/x/lifecycle"
)

// StartMonitoringRequest begins a lifecycle for one target.
type StartMonitoringRequest struct {
	TargetDate string              `json:"target_date"`
	TicketType lifecycle.TicketType `json:"ticket_type"`
}

// AvailabilityEvent is one streamed monitoring observation.
type AvailabilityEvent struct {
	TargetID    string                      `json:"target_id"`
	TimestampMS int64                       `json:"timestamp_ms"`
	Status      Availability                `json:"status"`
	Confidence  float64                     `json:"confidence"`
	Signals     []lifecycle.DetectionSignal `json:"signals,omitempty"`
	Phase       lifecycle.Phase             `json:"phase,omitempty"`
	Proxy       string                      `json:"proxy,omitempty"`
	LatencyMS   int64                       `json:"latency_ms,omitempty"`
}

// StopResponse acknowledges a StopMonitoring call.
type StopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TargetStatus summarizes one tracked target.
type TargetStatus struct {
	TargetID        string          `json:"target_id"`
	Phase           lifecycle.Phase `json:"phase"`
	ChecksTotal     uint64          `json:"checks_total"`
	DetectionsTotal uint64          `json:"detections_total"`
	LastCheckMS     int64           `json:"last_check_ms"`
	CurrentProxy    string          `json:"current_proxy,omitempty"`
	HealthScore     float64         `json:"health_score"`
}

// StatusResponse lists target summaries.
type StatusResponse struct {
	Targets []TargetStatus `json:"targets"`
}

// MetricsSnapshot is one streamed aggregate sample.
type MetricsSnapshot struct {
	TimestampMS       int64              `json:"timestamp_ms"`
	RequestsPerSecond float64            `json:"requests_per_second"`
	AvgLatencyMS      float64            `json:"avg_latency_ms"`
	ErrorRate         float64            `json:"error_rate"`
	ProxyHealth       map[string]float64 `json:"proxy_health"`
}

// AcquisitionRequest races for the cart of one event.
type AcquisitionRequest struct {
	EventID string `json:"event_id"`
}

// PaymentOption describes one payment rail offered for a secured cart.
type PaymentOption struct {
	Kind        lifecycle.PaymentKind `json:"kind"`
	DisplayName string                `json:"display_name"`
	Requires3DS bool                  `json:"requires_3ds"`
}

// AcquisitionResponse reports the claim outcome. An already-claimed cart
// is a structured negative result, not an RPC error.
type AcquisitionResponse struct {
	Success       bool            `json:"success"`
	CartID        string          `json:"cart_id,omitempty"`
	HoldExpiresMS int64           `json:"hold_expires_ms,omitempty"`
	PaymentOpts   []PaymentOption `json:"payment_options,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}

// CartState classifies the true claim content for a cart id.
type CartState string

const (
	CartActive   CartState = "active"
	CartReleased CartState = "released"
	CartLost     CartState = "lost"
)

// CartStatusResponse reflects the claim record and, when known, the
// persisted lifecycle phase of the owning target.
type CartStatusResponse struct {
	CartID string          `json:"cart_id"`
	State  CartState       `json:"state"`
	Phase  lifecycle.Phase `json:"phase,omitempty"`
}

// PaymentRequest completes payment for a secured cart.
type PaymentRequest struct {
	EventID      string                  `json:"event_id"`
	TargetID     string                  `json:"target_id"`
	PaymentToken string                  `json:"payment_token"`
	Method       lifecycle.PaymentMethod `json:"method"`
}

// PaymentResponse reports the payment outcome.
type PaymentResponse struct {
	Success          bool            `json:"success"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	Phase            lifecycle.Phase `json:"phase"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	TimestampMS      int64           `json:"timestamp_ms"`
}

// ReleaseRequest gives a cart back.
type ReleaseRequest struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// ReleaseResponse acknowledges a release.
type ReleaseResponse struct {
	Success bool `json:"success"`
}
