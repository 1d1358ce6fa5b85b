package lifecycle

import (
	"encoding/json"
	"fmt"
)

// envelope is the persisted wire form: a phase tag plus exactly one
// populated payload. Timestamps serialize as RFC3339 wall-clock values so a
// reloaded state stays comparable to "now" on any host.
type envelope struct {
	Phase      Phase       `json:"phase"`
	Monitoring *Monitoring `json:"monitoring,omitempty"`
	Detected   *Detected   `json:"detected,omitempty"`
	Carting    *Carting    `json:"carting,omitempty"`
	Holding    *Holding    `json:"holding,omitempty"`
	Paying     *Paying     `json:"paying,omitempty"`
	Confirmed  *Confirmed  `json:"confirmed,omitempty"`
	Failed     *Failed     `json:"failed,omitempty"`
}

// Marshal serializes a state to its envelope form.
func Marshal(s State) ([]byte, error) {
	env := envelope{Phase: s.Phase()}
	switch v := s.(type) {
	case Monitoring:
		env.Monitoring = &v
	case Detected:
		env.Detected = &v
	case Carting:
		env.Carting = &v
	case Holding:
		env.Holding = &v
	case Paying:
		env.Paying = &v
	case Confirmed:
		env.Confirmed = &v
	case Failed:
		env.Failed = &v
	default:
		return nil, fmt.Errorf("marshal: unknown state type %T", s)
	}
	return json.Marshal(env)
}

// Unmarshal parses an envelope back into a state. A missing or unknown
// phase tag, or a tag without its payload, is a hard error: it indicates
// corrupt or incompatible stored data.
func Unmarshal(data []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}

	switch env.Phase {
	case PhaseMonitoring:
		if env.Monitoring != nil {
			return *env.Monitoring, nil
		}
	case PhaseDetected:
		if env.Detected != nil {
			return *env.Detected, nil
		}
	case PhaseCarting:
		if env.Carting != nil {
			return *env.Carting, nil
		}
	case PhaseHolding:
		if env.Holding != nil {
			return *env.Holding, nil
		}
	case PhasePaying:
		if env.Paying != nil {
			return *env.Paying, nil
		}
	case PhaseConfirmed:
		if env.Confirmed != nil {
			return *env.Confirmed, nil
		}
	case PhaseFailed:
		if env.Failed != nil {
			return *env.Failed, nil
		}
	default:
		return nil, fmt.Errorf("unmarshal state: unknown phase %q", env.Phase)
	}
	return nil, fmt.Errorf("unmarshal state: phase %q missing payload", env.Phase)
}
