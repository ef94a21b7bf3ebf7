package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/backtest-service/internal/model"
)

type registryEntry struct {
	exec     model.BacktestExecution
	result   *model.BacktestResult
	released bool
	cancel   context.CancelFunc
	done     chan struct{}

	// recordMu orders saves of this execution; recorded is the rank of the last one saved
	recordMu sync.Mutex
	recorded int
}

// executionRegistry maps execution id to its state. Every read returns a copy.
type executionRegistry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

func newExecutionRegistry() *executionRegistry {
	return &executionRegistry{entries: make(map[string]*registryEntry)}
}

func (r *executionRegistry) add(exec model.BacktestExecution, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[exec.ID] = &registryEntry{exec: exec.Clone(), cancel: cancel, done: make(chan struct{})}
}

func (r *executionRegistry) get(id string) (model.BacktestExecution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return model.BacktestExecution{}, false
	}
	return e.exec.Clone(), true
}

// result returns the retained result of id, its status and whether the result was released
func (r *executionRegistry) result(id string) (*model.BacktestResult, model.ExecutionStatus, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, "", false, false
	}
	return e.result, e.exec.Status, e.released, true
}

// releaseResult drops the result of a terminal execution. The execution itself stays readable.
func (r *executionRegistry) releaseResult(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.exec.Status.Terminal() && e.result != nil {
		e.result = nil
		e.released = true
	}
}

// prune forgets terminal executions that finished before cutoff
func (r *executionRegistry) prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if e.exec.Status.Terminal() && e.exec.CompletedAt != nil && e.exec.CompletedAt.Before(cutoff) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// ordered runs save for a snapshot of exec unless a later status of the same execution has
// already been saved. Saves of one execution never overlap.
func (r *executionRegistry) ordered(exec model.BacktestExecution, save func()) {
	r.mu.RLock()
	e, ok := r.entries[exec.ID]
	r.mu.RUnlock()
	if !ok {
		save()
		return
	}

	e.recordMu.Lock()
	defer e.recordMu.Unlock()
	rank := statusRank(exec.Status)
	if rank <= e.recorded {
		return
	}
	save()
	e.recorded = rank
}

func statusRank(s model.ExecutionStatus) int {
	switch {
	case s.Terminal():
		return 3
	case s == model.StatusRunning:
		return 2
	default:
		return 1
	}
}

func (r *executionRegistry) doneChan(id string) (<-chan struct{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.done, true
}

// transition moves id to next if the state machine allows it. On a terminal status the
// result is attached, the context is released and waiters are woken, all under one lock.
func (r *executionRegistry) transition(id string, next model.ExecutionStatus, errMsg string, failures []model.SymbolFailure, result *model.BacktestResult) (model.BacktestExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return model.BacktestExecution{}, model.ErrExecutionNotFound
	}
	if !e.exec.Status.CanTransitionTo(next) {
		return e.exec.Clone(), fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, e.exec.Status, next)
	}

	now := time.Now().UTC()
	e.exec.Status = next
	if next == model.StatusRunning {
		e.exec.StartedAt = &now
	}
	if errMsg != "" {
		e.exec.Error = errMsg
	}
	if failures != nil {
		e.exec.Failures = append([]model.SymbolFailure(nil), failures...)
	}
	if next.Terminal() {
		e.exec.CompletedAt = &now
		e.result = result
		if e.cancel != nil {
			e.cancel()
		}
		close(e.done)
	}
	return e.exec.Clone(), nil
}

func (r *executionRegistry) list(filter model.ExecutionFilter) []model.BacktestSummary {
	r.mu.RLock()
	out := make([]model.BacktestSummary, 0, len(r.entries))
	for _, e := range r.entries {
		if filter.Status != "" && e.exec.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && e.exec.Kind != filter.Kind {
			continue
		}
		out = append(out, e.exec.Summary())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// active returns the ids of non-terminal executions
func (r *executionRegistry) active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, e := range r.entries {
		if !e.exec.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}
