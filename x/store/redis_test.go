package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/colosseo-ops/acquirer/x/lifecycle"
)

func newTestStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewWithClient(client, Config{KeyPrefix: "colosseo:", MaxAlertQueue: 5}, zerolog.Nop())
	return s, mr
}

func TestTryClaimExactlyOneWinner(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		token := fmt.Sprintf("worker-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.TryClaim(ctx, "E1", token, 15*time.Minute)
			require.NoError(t, err)
			if won {
				wins <- token
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one concurrent claimant may win")

	holder, err := s.ClaimHolder(ctx, "E1")
	require.NoError(t, err)
	require.Equal(t, winners[0], holder)
}

func TestClaimBlocksUntilReleaseOrExpiry(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()

	won, err := s.TryClaim(ctx, "E2", "tok-a", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	won, err = s.TryClaim(ctx, "E2", "tok-b", time.Minute)
	require.NoError(t, err)
	require.False(t, won)

	// Release with the wrong token must leave the claim standing.
	released, err := s.Release(ctx, "E2", "tok-b")
	require.NoError(t, err)
	require.False(t, released)

	_, err = s.ClaimHolder(ctx, "E2")
	require.NoError(t, err)

	// The owner can release; the resource becomes claimable again.
	released, err = s.Release(ctx, "E2", "tok-a")
	require.NoError(t, err)
	require.True(t, released)

	won, err = s.TryClaim(ctx, "E2", "tok-b", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	// TTL expiry alone also frees the resource.
	mr.FastForward(2 * time.Minute)
	won, err = s.TryClaim(ctx, "E2", "tok-c", time.Minute)
	require.NoError(t, err)
	require.True(t, won)
}

func TestStateRoundTripAndTTL(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	state := lifecycle.Detected{
		DetectedAt: now,
		Confidence: 0.9,
		Signals:    []lifecycle.DetectionSignal{{Source: lifecycle.SourceAPIResponse, Confidence: 0.9, Timestamp: now}},
		TargetDate: "2026-09-01",
		TicketType: lifecycle.TicketOrdinario,
	}
	require.NoError(t, s.SaveState(ctx, "colosseo-01", state))

	got, err := s.LoadState(ctx, "colosseo-01")
	require.NoError(t, err)
	require.Equal(t, lifecycle.State(state), got)

	mr.FastForward(StateTTL + time.Minute)
	_, err = s.LoadState(ctx, "colosseo-01")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadStateCorruptPayload(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("colosseo:state:bad", `{"phase":"levitating"}`))

	_, err := s.LoadState(context.Background(), "bad")
	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	require.False(t, serr.Retryable())
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "sess-1", "cookie-jar", 30*time.Minute))
	blob, err := s.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "cookie-jar", blob)

	mr.FastForward(time.Hour)
	_, err = s.LoadSession(ctx, "sess-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMetricsWindowAndOrdering(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	labels := map[string]string{"target": "colosseo-01", "proxy": "it-1"}

	record := func(at time.Time, v float64) {
		s.now = func() time.Time { return at }
		require.NoError(t, s.RecordMetric(ctx, "latency_ms", v, labels))
	}

	record(base.Add(-25*time.Hour), 999) // outside the 24h window
	record(base.Add(-time.Hour), 120)
	record(base.Add(-30*time.Minute), 80)
	record(base, 100)

	samples, err := s.GetMetrics(ctx, "latency_ms", labels, base.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 3, "samples older than the window never appear")
	require.Equal(t, []float64{120, 80, 100}, []float64{samples[0].Value, samples[1].Value, samples[2].Value})
	require.True(t, samples[0].Timestamp.Before(samples[1].Timestamp))
	require.True(t, samples[1].Timestamp.Before(samples[2].Timestamp))

	// since filters inclusively on timestamp.
	samples, err = s.GetMetrics(ctx, "latency_ms", labels, base.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, 80.0, samples[0].Value)
}

func TestMetricsLabelOrderInsensitive(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()
	s.now = func() time.Time { return at }

	require.NoError(t, s.RecordMetric(ctx, "checks", 1, map[string]string{"a": "1", "b": "2"}))

	samples, err := s.GetMetrics(ctx, "checks", map[string]string{"b": "2", "a": "1"}, at.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 1)
}

func TestMetricsSeparatorBytesKeepSeriesDistinct(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()
	s.now = func() time.Time { return at }

	// A value embedding the pair separators must not alias the label set
	// it spells out.
	require.NoError(t, s.RecordMetric(ctx, "lat", 1, map[string]string{"a": "1,b=2"}))
	require.NoError(t, s.RecordMetric(ctx, "lat", 2, map[string]string{"a": "1", "b": "2"}))

	// A name carrying the key namespace separator must not alias a label.
	require.NoError(t, s.RecordMetric(ctx, "lat:a=1", 3, nil))

	since := at.Add(-time.Minute)

	samples, err := s.GetMetrics(ctx, "lat", map[string]string{"a": "1,b=2"}, since)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, 1.0, samples[0].Value)

	samples, err = s.GetMetrics(ctx, "lat", map[string]string{"a": "1", "b": "2"}, since)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, 2.0, samples[0].Value)

	samples, err = s.GetMetrics(ctx, "lat:a=1", nil, since)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, 3.0, samples[0].Value)
}

func TestDuplicateValuesSameSeries(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		s.now = func() time.Time { return at }
		require.NoError(t, s.RecordMetric(ctx, "rps", 50, nil))
	}

	samples, err := s.GetMetrics(ctx, "rps", nil, base)
	require.NoError(t, err)
	require.Len(t, samples, 3, "equal values at distinct instants are distinct samples")
}

func TestAlertQueueFIFOAndCap(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t) // cap is 5 in the test config
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.QueueAlert(ctx, Alert{
			Level:     AlertInfo,
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Target:    fmt.Sprintf("target-%d", i),
			Status:    "available",
		}))
	}

	// Oldest two were dropped by the cap; FIFO order among survivors.
	for i := 2; i < 7; i++ {
		alert, err := s.DequeueAlert(ctx)
		require.NoError(t, err)
		require.NotNil(t, alert)
		require.Equal(t, fmt.Sprintf("target-%d", i), alert.Target)
	}

	alert, err := s.DequeueAlert(ctx)
	require.NoError(t, err)
	require.Nil(t, alert, "empty queue pops nil, not an error")
}

func TestProxyHealth(t *testing.T) {
	t.Parallel()

	s, mr := newTestStore(t)
	ctx := context.Background()

	// Zero observations default to a perfect score.
	h, err := s.GetProxyHealth(ctx, "proxy-X")
	require.NoError(t, err)
	require.Equal(t, 1.0, h.HealthScore)
	require.Zero(t, h.SuccessCount)
	require.Zero(t, h.ErrorCount)

	require.NoError(t, s.UpdateProxyHealth(ctx, "proxy-A", true, 120))
	require.NoError(t, s.UpdateProxyHealth(ctx, "proxy-A", false, 300))

	h, err = s.GetProxyHealth(ctx, "proxy-A")
	require.NoError(t, err)
	require.Equal(t, int64(1), h.SuccessCount)
	require.Equal(t, int64(1), h.ErrorCount)
	require.Equal(t, 0.5, h.HealthScore)
	require.Equal(t, int64(300), h.LastLatencyMS)
	require.False(t, h.LastUsed.IsZero())

	// Health records roll off after the window.
	mr.FastForward(ProxyWindow + time.Minute)
	h, err = s.GetProxyHealth(ctx, "proxy-A")
	require.NoError(t, err)
	require.Equal(t, 1.0, h.HealthScore)
	require.Zero(t, h.SuccessCount)
}

func TestHealthScoreFraction(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.UpdateProxyHealth(ctx, "proxy-B", true, 100))
	}
	require.NoError(t, s.UpdateProxyHealth(ctx, "proxy-B", false, 250))

	h, err := s.GetProxyHealth(ctx, "proxy-B")
	require.NoError(t, err)
	require.Equal(t, 0.75, h.HealthScore)
}
