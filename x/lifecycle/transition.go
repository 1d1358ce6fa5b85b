package lifecycle

import (
	"fmt"
	"time"
)

// InvalidTransitionError reports a rejected transition. It carries phase
// names only; state payloads hold tokens that must not leak into errors.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// adjacency is the fixed transition table. Failed is handled separately
// because its outgoing edges depend on retry eligibility.
var adjacency = map[Phase][]Phase{
	PhaseMonitoring: {PhaseDetected},
	PhaseDetected:   {PhaseCarting},
	PhaseCarting:    {PhaseHolding, PhaseFailed},
	PhaseHolding:    {PhasePaying, PhaseFailed},
	PhasePaying:     {PhaseConfirmed, PhaseFailed},
	PhaseFailed:     {PhaseMonitoring, PhaseCarting},
}

// CanTransition reports whether the edge current→proposed is in the table.
func CanTransition(current, proposed State) bool {
	if f, ok := current.(Failed); ok && !f.RetryEligible {
		return false
	}
	if _, ok := current.(Confirmed); ok {
		return false
	}
	for _, p := range adjacency[current.Phase()] {
		if p == proposed.Phase() {
			return true
		}
	}
	return false
}

// Transition validates the edge and returns the proposed state unchanged.
// On a rejected edge the caller's stored state must be kept as-is.
func Transition(current, proposed State) (State, error) {
	if !CanTransition(current, proposed) {
		return nil, &InvalidTransitionError{From: current.Phase(), To: proposed.Phase()}
	}
	return proposed, nil
}

// Phase budgets. Holding has no fixed budget; its deadline is the hold's
// own expiry.
const (
	monitoringBudget = 24 * time.Hour
	detectedBudget   = 5 * time.Second
	cartingBudget    = 10 * time.Second
	payingBudget     = 60 * time.Second
)

// Remaining returns the time left before the phase expires, evaluated
// against the supplied clock. The second return is false for terminal
// states, which never expire.
func Remaining(s State, now time.Time) (time.Duration, bool) {
	switch v := s.(type) {
	case Monitoring:
		return monitoringBudget - now.Sub(v.StartedAt), true
	case Detected:
		return detectedBudget - now.Sub(v.DetectedAt), true
	case Carting:
		return cartingBudget - now.Sub(v.StartedAt), true
	case Holding:
		return v.ExpiresAt.Sub(now), true
	case Paying:
		return payingBudget - now.Sub(v.StartedAt), true
	default:
		return 0, false
	}
}

// IsTimedOut reports whether the phase deadline has passed. Detection is
// pull-based: a driving loop polls this and proposes Failed{Timeout} on
// expiry. The state machine itself runs no timers.
func IsTimedOut(s State, now time.Time) bool {
	remaining, ok := Remaining(s, now)
	return ok && remaining <= 0
}
