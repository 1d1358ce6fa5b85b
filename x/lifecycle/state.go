// Package lifecycle models the ticket acquisition lifecycle as a validated
// state machine. It is a pure value package: no I/O, no clocks of its own.
package lifecycle

import "time"

// Phase identifies a lifecycle variant.
type Phase string

const (
	PhaseMonitoring Phase = "monitoring"
	PhaseDetected   Phase = "detected"
	PhaseCarting    Phase = "carting"
	PhaseHolding    Phase = "holding"
	PhasePaying     Phase = "paying"
	PhaseConfirmed  Phase = "confirmed"
	PhaseFailed     Phase = "failed"
)

func (p Phase) String() string { return string(p) }

// State is one variant of the acquisition lifecycle. Exactly one State is
// tracked per target id.
type State interface {
	Phase() Phase
}

// Monitoring is the initial phase: polling a target for availability.
type Monitoring struct {
	StartedAt  time.Time  `json:"started_at"`
	LastCheck  time.Time  `json:"last_check"`
	CheckCount uint64     `json:"check_count"`
	TargetDate string     `json:"target_date"`
	TicketType TicketType `json:"ticket_type"`
}

// Detected means availability was observed with some confidence.
type Detected struct {
	DetectedAt time.Time         `json:"detected_at"`
	Confidence float64           `json:"confidence"`
	Signals    []DetectionSignal `json:"signals"`
	TargetDate string            `json:"target_date"`
	TicketType TicketType        `json:"ticket_type"`
}

// Carting is the cart-injection attempt window.
type Carting struct {
	StartedAt  time.Time  `json:"started_at"`
	SessionID  string     `json:"session_id"`
	CartID     string     `json:"cart_id,omitempty"`
	TargetDate string     `json:"target_date"`
	TicketType TicketType `json:"ticket_type"`
}

// Holding means a cart is secured and must be kept alive until payment.
type Holding struct {
	CartID       string     `json:"cart_id"`
	ExpiresAt    time.Time  `json:"expires_at"`
	HeartbeatDue time.Time  `json:"heartbeat_due"`
	TargetDate   string     `json:"target_date"`
	TicketType   TicketType `json:"ticket_type"`
}

// Paying is the payment processing window.
type Paying struct {
	StartedAt    time.Time     `json:"started_at"`
	PaymentToken string        `json:"payment_token"`
	Method       PaymentMethod `json:"method"`
	CartID       string        `json:"cart_id"`
}

// Confirmed is terminal: the purchase completed.
type Confirmed struct {
	ConfirmedAt      time.Time      `json:"confirmed_at"`
	ConfirmationCode string         `json:"confirmation_code"`
	Tickets          []TicketDetail `json:"tickets"`
}

// Failed is terminal unless RetryEligible permits re-entry.
type Failed struct {
	FailedAt      time.Time     `json:"failed_at"`
	Reason        FailureReason `json:"reason"`
	RetryEligible bool          `json:"retry_eligible"`
}

func (Monitoring) Phase() Phase { return PhaseMonitoring }
func (Detected) Phase() Phase   { return PhaseDetected }
func (Carting) Phase() Phase    { return PhaseCarting }
func (Holding) Phase() Phase    { return PhaseHolding }
func (Paying) Phase() Phase     { return PhasePaying }
func (Confirmed) Phase() Phase  { return PhaseConfirmed }
func (Failed) Phase() Phase     { return PhaseFailed }

// IsTerminal reports whether the state has no outgoing transitions at all.
// A retry-eligible Failed state is not terminal.
func IsTerminal(s State) bool {
	switch v := s.(type) {
	case Confirmed:
		return true
	case Failed:
		return !v.RetryEligible
	default:
		return false
	}
}

// IsSettled reports whether the state belongs to the terminal family
// (Confirmed or Failed) regardless of retry eligibility. The registry sweep
// removes settled entries.
func IsSettled(s State) bool {
	switch s.(type) {
	case Confirmed, Failed:
		return true
	default:
		return false
	}
}

// TicketTypeOf returns the ticket type carried by the state, if any.
func TicketTypeOf(s State) (TicketType, bool) {
	switch v := s.(type) {
	case Monitoring:
		return v.TicketType, true
	case Detected:
		return v.TicketType, true
	case Carting:
		return v.TicketType, true
	case Holding:
		return v.TicketType, true
	default:
		return "", false
	}
}

// TargetDateOf returns the target date carried by the state, if any.
func TargetDateOf(s State) (string, bool) {
	switch v := s.(type) {
	case Monitoring:
		return v.TargetDate, true
	case Detected:
		return v.TargetDate, true
	case Carting:
		return v.TargetDate, true
	case Holding:
		return v.TargetDate, true
	default:
		return "", false
	}
}

// CartIDOf returns the cart id carried by the state, if any.
func CartIDOf(s State) (string, bool) {
	switch v := s.(type) {
	case Carting:
		return v.CartID, v.CartID != ""
	case Holding:
		return v.CartID, true
	case Paying:
		return v.CartID, true
	default:
		return "", false
	}
}
