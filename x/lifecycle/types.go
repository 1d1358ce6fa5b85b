package lifecycle

import "time"

// TicketType enumerates the sale configurations offered by the venue.
type TicketType string

const (
	TicketOrdinario                 TicketType = "ordinario"
	TicketFullExperienceArena       TicketType = "full_experience_arena"
	TicketFullExperienceUnderground TicketType = "full_experience_underground"
	TicketForumPassSuper            TicketType = "forum_pass_super"
)

// String returns the display name used in operator-facing output.
func (t TicketType) String() string {
	switch t {
	case TicketOrdinario:
		return "Ordinario"
	case TicketFullExperienceArena:
		return "Full Experience Arena"
	case TicketFullExperienceUnderground:
		return "Full Experience Underground"
	case TicketForumPassSuper:
		return "Forum Pass Super"
	default:
		return string(t)
	}
}

// PaymentKind enumerates supported payment rails.
type PaymentKind string

const (
	PaymentUniCreditCard PaymentKind = "unicredit_card"
	PaymentPayPal        PaymentKind = "paypal"
	PaymentBankTransfer  PaymentKind = "bank_transfer"
	PaymentVirtualCard   PaymentKind = "virtual_card"
)

// PaymentMethod carries the rail plus the provider for virtual cards.
type PaymentMethod struct {
	Kind     PaymentKind `json:"kind"`
	Provider string      `json:"provider,omitempty"`
}

// SignalSource tags where a detection signal originated.
type SignalSource string

const (
	SourceAPIResponse  SignalSource = "api-response"
	SourceDOMMutation  SignalSource = "dom-mutation"
	SourceVisual       SignalSource = "visual"
	SourceTiming       SignalSource = "timing"
	SourceCrossSession SignalSource = "cross-session"
)

// DetectionSignal is one confidence-scored availability observation.
type DetectionSignal struct {
	Source     SignalSource   `json:"source"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PriceTier enumerates venue pricing bands.
type PriceTier string

const (
	TierIntero   PriceTier = "intero"
	TierRidotto  PriceTier = "ridotto"
	TierGratuito PriceTier = "gratuito"
)

// TicketDetail describes one confirmed ticket.
type TicketDetail struct {
	TicketID    string     `json:"ticket_id"`
	VisitorName string     `json:"visitor_name"`
	Date        string     `json:"date"`
	TimeSlot    string     `json:"time_slot"`
	TicketType  TicketType `json:"ticket_type"`
	PriceTier   PriceTier  `json:"price_tier"`
}

// FailureReason classifies why an acquisition attempt failed.
type FailureReason string

const (
	ReasonCartHoldExpired FailureReason = "cart_hold_expired"
	ReasonPaymentDeclined FailureReason = "payment_declined"
	ReasonSessionInvalid  FailureReason = "session_invalid"
	ReasonQueueItDetected FailureReason = "queue_it_detected"
	ReasonRateLimited     FailureReason = "rate_limited"
	ReasonNetworkError    FailureReason = "network_error"
	ReasonValidationFail  FailureReason = "validation_failed"
	ReasonInventoryGone   FailureReason = "inventory_gone"
	ReasonTimeout         FailureReason = "timeout"
	ReasonStopped         FailureReason = "stopped"
)

// DefaultRetryEligible maps each failure reason to whether a fresh attempt
// makes sense by default. Transient conditions retry; deterministic
// rejections and bot-detection outcomes do not.
func DefaultRetryEligible(reason FailureReason) bool {
	switch reason {
	case ReasonCartHoldExpired, ReasonSessionInvalid, ReasonRateLimited,
		ReasonNetworkError, ReasonTimeout, ReasonStopped:
		return true
	case ReasonPaymentDeclined, ReasonQueueItDetected, ReasonValidationFail,
		ReasonInventoryGone:
		return false
	default:
		return false
	}
}
