package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()

	states := []State{
		Monitoring{StartedAt: now, LastCheck: now.Add(5 * time.Second), CheckCount: 42, TargetDate: "2026-09-01", TicketType: TicketFullExperienceArena},
		Detected{
			DetectedAt: now,
			Confidence: 0.87,
			Signals: []DetectionSignal{
				{Source: SourceAPIResponse, Confidence: 0.9, Timestamp: now},
				{Source: SourceDOMMutation, Confidence: 0.8, Timestamp: now, Metadata: map[string]any{"selector": ".slot-open"}},
			},
			TargetDate: "2026-09-01",
			TicketType: TicketOrdinario,
		},
		Carting{StartedAt: now, SessionID: "sess-7", CartID: "cart-7", TargetDate: "2026-09-01", TicketType: TicketOrdinario},
		Holding{CartID: "cart-7", ExpiresAt: now.Add(15 * time.Minute), HeartbeatDue: now.Add(time.Minute), TargetDate: "2026-09-01", TicketType: TicketOrdinario},
		Paying{StartedAt: now, PaymentToken: "tok", Method: PaymentMethod{Kind: PaymentVirtualCard, Provider: "revolut"}, CartID: "cart-7"},
		Confirmed{ConfirmedAt: now, ConfirmationCode: "XY99", Tickets: []TicketDetail{
			{TicketID: "t-1", VisitorName: "Ada", Date: "2026-09-01", TimeSlot: "10:30", TicketType: TicketOrdinario, PriceTier: TierIntero},
		}},
		Failed{FailedAt: now, Reason: ReasonRateLimited, RetryEligible: true},
	}

	for _, s := range states {
		data, err := Marshal(s)
		require.NoError(t, err)

		back, err := Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, s.Phase(), back.Phase())
		require.Equal(t, s, back)
	}
}

func TestUnmarshalRejectsUnknownPhase(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte(`{"phase":"levitating"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown phase")
}

func TestUnmarshalRejectsMissingPayload(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte(`{"phase":"holding"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing payload")
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte(`{broken`))
	require.Error(t, err)
}
