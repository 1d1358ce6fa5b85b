package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/colosseo-ops/acquirer/x/lifecycle"
	"github.com/colosseo-ops/acquirer/x/store"
)

type fakePersister struct {
	mu     sync.Mutex
	states map[string]lifecycle.State
	saves  int
	fail   bool
}

func newFakePersister() *fakePersister {
	return &fakePersister{states: make(map[string]lifecycle.State)}
}

func (f *fakePersister) SaveState(_ context.Context, id string, s lifecycle.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	f.states[id] = s
	f.saves++
	return nil
}

func (f *fakePersister) LoadState(_ context.Context, id string) (lifecycle.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, &store.TransportError{Op: "load_state", Err: errors.New("connection refused")}
	}
	s, ok := f.states[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func monitoring(at time.Time) lifecycle.Monitoring {
	return lifecycle.Monitoring{
		StartedAt:  at,
		LastCheck:  at,
		TargetDate: "2026-09-01",
		TicketType: lifecycle.TicketOrdinario,
	}
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()

	r := New(zerolog.Nop(), nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	_, err := r.Get(ctx, "colosseo-01")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Insert(ctx, "colosseo-01", monitoring(now)))
	got, err := r.Get(ctx, "colosseo-01")
	require.NoError(t, err)
	require.Equal(t, lifecycle.PhaseMonitoring, got.Phase())
	require.Equal(t, 1, r.Len())
}

func TestFailedTransitionKeepsPriorState(t *testing.T) {
	t.Parallel()

	r := New(zerolog.Nop(), nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, r.Insert(ctx, "colosseo-01", monitoring(now)))

	detected := lifecycle.Detected{
		DetectedAt: now.Add(time.Minute),
		Confidence: 0.9,
		TargetDate: "2026-09-01",
		TicketType: lifecycle.TicketOrdinario,
	}
	_, err := r.Update(ctx, "colosseo-01", detected)
	require.NoError(t, err)

	before, err := r.Get(ctx, "colosseo-01")
	require.NoError(t, err)

	// Detected -> Confirmed is not an edge; the stored state must survive.
	_, err = r.Update(ctx, "colosseo-01", lifecycle.Confirmed{ConfirmedAt: now, ConfirmationCode: "NOPE"})
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	after, err := r.Get(ctx, "colosseo-01")
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, lifecycle.PhaseDetected, after.Phase())
}

func TestUpdateUnknownTarget(t *testing.T) {
	t.Parallel()

	r := New(zerolog.Nop(), nil)
	_, err := r.Update(context.Background(), "ghost", monitoring(time.Now()))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetDistinguishesAbsenceFromStoreFault(t *testing.T) {
	t.Parallel()

	p := newFakePersister()
	r := New(zerolog.Nop(), p)
	ctx := context.Background()

	// A genuinely absent id is NotFound.
	_, err := r.Get(ctx, "absent")
	require.ErrorIs(t, err, ErrNotFound)

	// A store outage on the reload path must stay recoverable: not
	// NotFound, and the transport error remains in the chain.
	p.mu.Lock()
	p.fail = true
	p.mu.Unlock()

	_, err = r.Get(ctx, "absent")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)

	var transport *store.TransportError
	require.ErrorAs(t, err, &transport)
	require.True(t, transport.Retryable())
}

func TestWriteThroughAndCacheMissReload(t *testing.T) {
	t.Parallel()

	p := newFakePersister()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	writer := New(zerolog.Nop(), p)
	require.NoError(t, writer.Insert(ctx, "colosseo-02", monitoring(now)))
	require.Equal(t, 1, p.saves)

	// A second instance sharing the store sees the lifecycle on miss.
	reader := New(zerolog.Nop(), p)
	got, err := reader.Get(ctx, "colosseo-02")
	require.NoError(t, err)
	require.Equal(t, lifecycle.PhaseMonitoring, got.Phase())
	require.Equal(t, 1, reader.Len())
}

func TestPersistFailureDoesNotBlockUpdate(t *testing.T) {
	t.Parallel()

	p := newFakePersister()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	r := New(zerolog.Nop(), p)
	require.NoError(t, r.Insert(ctx, "colosseo-03", monitoring(now)))

	p.mu.Lock()
	p.fail = true
	p.mu.Unlock()

	detected := lifecycle.Detected{DetectedAt: now, Confidence: 0.8, TargetDate: "2026-09-01", TicketType: lifecycle.TicketOrdinario}
	got, err := r.Update(ctx, "colosseo-03", detected)
	require.NoError(t, err)
	require.Equal(t, lifecycle.PhaseDetected, got.Phase())
}

func TestCleanupTerminal(t *testing.T) {
	t.Parallel()

	r := New(zerolog.Nop(), nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, r.Insert(ctx, "active", monitoring(now)))
	require.NoError(t, r.Insert(ctx, "done", lifecycle.Confirmed{ConfirmedAt: now, ConfirmationCode: "OK"}))
	require.NoError(t, r.Insert(ctx, "dead", lifecycle.Failed{FailedAt: now, Reason: ReasonForTest(), RetryEligible: true}))

	removed := r.CleanupTerminal()
	require.ElementsMatch(t, []string{"done", "dead"}, removed)
	require.Equal(t, 1, r.Len())

	_, err := r.Get(ctx, "active")
	require.NoError(t, err)
}

// ReasonForTest avoids sprinkling a specific failure cause through sweep
// assertions.
func ReasonForTest() lifecycle.FailureReason { return lifecycle.ReasonInventoryGone }

func TestRefreshKeepsPhase(t *testing.T) {
	t.Parallel()

	p := newFakePersister()
	r := New(zerolog.Nop(), p)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, r.Insert(ctx, "colosseo-05", monitoring(now)))

	got, err := r.Refresh(ctx, "colosseo-05", func(cur lifecycle.State) lifecycle.State {
		m := cur.(lifecycle.Monitoring)
		m.CheckCount++
		m.LastCheck = now.Add(5 * time.Second)
		return m
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.(lifecycle.Monitoring).CheckCount)
	require.Equal(t, 2, p.saves)

	// A mutation that swaps the phase is rejected and leaves the entry.
	_, err = r.Refresh(ctx, "colosseo-05", func(lifecycle.State) lifecycle.State {
		return lifecycle.Detected{DetectedAt: now}
	})
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	after, err := r.Get(ctx, "colosseo-05")
	require.NoError(t, err)
	require.Equal(t, uint64(1), after.(lifecycle.Monitoring).CheckCount)

	_, err = r.Refresh(ctx, "ghost", func(cur lifecycle.State) lifecycle.State { return cur })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelBinding(t *testing.T) {
	t.Parallel()

	r := New(zerolog.Nop(), nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, r.Insert(ctx, "colosseo-04", monitoring(now)))

	taskCtx, cancel := context.WithCancel(context.Background())
	r.BindCancel("colosseo-04", cancel)

	require.True(t, r.Cancel("colosseo-04"))
	select {
	case <-taskCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound task context was not cancelled")
	}

	// Handle is consumed; a second stop is a no-op.
	require.False(t, r.Cancel("colosseo-04"))
	require.False(t, r.Cancel("unknown"))
}

func TestConcurrentUpdatesSameID(t *testing.T) {
	t.Parallel()

	r := New(zerolog.Nop(), nil)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, r.Insert(ctx, "race", monitoring(now)))

	detected := lifecycle.Detected{DetectedAt: now, Confidence: 0.9, TargetDate: "2026-09-01", TicketType: lifecycle.TicketOrdinario}

	const n = 32
	var wg sync.WaitGroup
	successes := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Update(ctx, "race", detected); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	// Only the first update can win Monitoring -> Detected; the rest see
	// Detected -> Detected which is not an edge.
	var wins int
	for range successes {
		wins++
	}
	require.Equal(t, 1, wins)

	got, err := r.Get(ctx, "race")
	require.NoError(t, err)
	require.Equal(t, lifecycle.PhaseDetected, got.Phase())
}
