// Package registry tracks one acquisition lifecycle per target id. It is a
// write-through cache: the coordination store stays the durable source of
// truth, and a cache miss falls back to a store load.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/colosseo-ops/acquirer/x/lifecycle"
	"github.com/colosseo-ops/acquirer/x/store"
)

// ErrNotFound is returned when no lifecycle exists for a target id.
var ErrNotFound = errors.New("registry: target not found")

// Persister is the durable backing for lifecycle snapshots. Satisfied by
// the coordination store; nil disables write-through. LoadState reports a
// missing snapshot with store.ErrNotFound; any other failure is a store
// fault, not absence.
type Persister interface {
	SaveState(ctx context.Context, targetID string, state lifecycle.State) error
	LoadState(ctx context.Context, targetID string) (lifecycle.State, error)
}

type entry struct {
	mu     sync.Mutex
	state  lifecycle.State
	cancel context.CancelFunc
}

// Registry holds per-target lifecycle entries. Updates for the same id are
// serialized; different ids proceed independently.
type Registry struct {
	log       zerolog.Logger
	persister Persister

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a registry. persister may be nil for purely in-memory use.
func New(log zerolog.Logger, persister Persister) *Registry {
	return &Registry{
		log:       log.With().Str("component", "registry").Logger(),
		persister: persister,
		entries:   make(map[string]*entry),
	}
}

// Get returns the current state for id. On a local miss it consults the
// persister so another instance's lifecycle becomes visible here.
func (r *Registry) Get(ctx context.Context, id string) (lifecycle.State, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if ok {
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		return state, nil
	}

	if r.persister == nil {
		return nil, ErrNotFound
	}

	state, err := r.persister.LoadState(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		// A store fault is not absence; callers must be able to retry
		// instead of abandoning a live lifecycle.
		return nil, fmt.Errorf("load state for %s: %w", id, err)
	}

	r.mu.Lock()
	if existing, raced := r.entries[id]; raced {
		r.mu.Unlock()
		existing.mu.Lock()
		state = existing.state
		existing.mu.Unlock()
		return state, nil
	}
	r.entries[id] = &entry{state: state}
	r.mu.Unlock()

	r.log.Debug().Str("target_id", id).Msg("lifecycle reloaded from store")
	return state, nil
}

// Insert establishes a new tracked lifecycle, replacing any prior entry for
// the id, and persists the snapshot.
func (r *Registry) Insert(ctx context.Context, id string, state lifecycle.State) error {
	r.mu.Lock()
	if prev, ok := r.entries[id]; ok && prev.cancel != nil {
		prev.cancel()
	}
	r.entries[id] = &entry{state: state}
	r.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.SaveState(ctx, id, state); err != nil {
			return fmt.Errorf("persist state for %s: %w", id, err)
		}
	}
	return nil
}

// Update validates the proposed transition and stores the result. A
// rejected transition leaves the prior entry retrievable; the operation is
// atomic per id.
func (r *Registry) Update(ctx context.Context, id string, proposed lifecycle.State) (lifecycle.State, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := lifecycle.Transition(e.state, proposed)
	if err != nil {
		return nil, err
	}

	prev := e.state
	e.state = next

	if r.persister != nil {
		if perr := r.persister.SaveState(ctx, id, next); perr != nil {
			// Keep the in-memory truth; durable snapshot will be rewritten
			// on the next successful update.
			r.log.Warn().Err(perr).Str("target_id", id).Msg("state persist failed")
		}
	}

	r.log.Info().
		Str("target_id", id).
		Str("from", string(prev.Phase())).
		Str("to", string(next.Phase())).
		Msg("state transition")

	return next, nil
}

// Refresh replaces the entry's payload without changing its phase, for
// in-phase bookkeeping like check counters. A mutation that changes the
// phase is rejected; phase changes must go through Update.
func (r *Registry) Refresh(ctx context.Context, id string, mutate func(lifecycle.State) lifecycle.State) (lifecycle.State, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := mutate(e.state)
	if next == nil || next.Phase() != e.state.Phase() {
		return nil, &lifecycle.InvalidTransitionError{From: e.state.Phase(), To: phaseOf(next)}
	}
	e.state = next

	if r.persister != nil {
		if perr := r.persister.SaveState(ctx, id, next); perr != nil {
			r.log.Warn().Err(perr).Str("target_id", id).Msg("state persist failed")
		}
	}
	return next, nil
}

func phaseOf(s lifecycle.State) lifecycle.Phase {
	if s == nil {
		return ""
	}
	return s.Phase()
}

// BindCancel attaches the cancellation handle of the target's background
// task so StopMonitoring can reach it.
func (r *Registry) BindCancel(id string, cancel context.CancelFunc) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
}

// Cancel signals the target's background task, if one is bound. It reports
// whether a handle was present.
func (r *Registry) Cancel(id string) bool {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Remove drops the entry for id, cancelling any bound task. The durable
// snapshot is untouched; it expires on its own TTL.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok && e.cancel != nil {
		e.cancel()
	}
}

// CleanupTerminal removes every settled entry (Confirmed or Failed) and
// returns the removed ids. The caller controls the sweep cadence.
func (r *Registry) CleanupTerminal() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, e := range r.entries {
		e.mu.Lock()
		settled := lifecycle.IsSettled(e.state)
		cancel := e.cancel
		e.mu.Unlock()
		if settled {
			delete(r.entries, id)
			removed = append(removed, id)
			if cancel != nil {
				cancel()
			}
		}
	}

	if len(removed) > 0 {
		r.log.Debug().Strs("target_ids", removed).Msg("terminal entries swept")
	}
	return removed
}

// Targets returns the ids currently tracked.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of tracked lifecycles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
