// Package control exposes the streaming control plane that lets an
// external orchestrator drive and observe many acquisition lifecycles
// concurrently. It composes the registry (local lifecycle truth) and the
// coordination store (durable, shared truth) and owns every background
// task in the core.
package control

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/colosseo-ops/acquirer/x/lifecycle"
)

// Availability classifies one detector observation.
type Availability string

const (
	AvailabilityUnknown     Availability = "unknown"
	AvailabilityAvailable   Availability = "available"
	AvailabilitySoldOut     Availability = "sold_out"
	AvailabilityNotReleased Availability = "not_yet_released"
)

// CheckResult is one availability probe outcome. Proxy and latency are
// opaque transport facts recorded back into proxy health.
type CheckResult struct {
	Status     Availability
	Confidence float64
	Signals    []lifecycle.DetectionSignal
	Proxy      string
	Latency    time.Duration
	// SessionBlob, when set, is an opaque detector session to persist so a
	// restarted worker resumes with warm cookies.
	SessionBlob string
}

// Detector is the external availability-detection collaborator. The
// control plane consumes its confidence-scored results; how they are
// produced (HTML parsing, consensus scoring) lives outside this core.
type Detector interface {
	Check(ctx context.Context, targetID, targetDate string, ticketType lifecycle.TicketType) (CheckResult, error)
}

// Processor is the external payment collaborator. Charge returns a
// confirmation code on success; an error is treated as a decline.
type Processor interface {
	Charge(ctx context.Context, cartID, paymentToken string, method lifecycle.PaymentMethod) (string, error)
}

// NopDetector reports unknown availability on every check. It stands in
// until a real detector service is attached.
type NopDetector struct{}

func (NopDetector) Check(context.Context, string, string, lifecycle.TicketType) (CheckResult, error) {
	return CheckResult{Status: AvailabilityUnknown}, nil
}

// AutoApproveProcessor confirms every charge with a fresh code. It stands
// in until a real payment gateway integration is attached.
type AutoApproveProcessor struct{}

func (AutoApproveProcessor) Charge(context.Context, string, string, lifecycle.PaymentMethod) (string, error) {
	return uuid.NewString()[:8], nil
}
