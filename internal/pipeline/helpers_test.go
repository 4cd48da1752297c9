package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nouslabs/nous/internal/domain"
)

// memStore is an in-memory ActionStore with the same guarded-transition
// semantics as the Postgres implementation.
type memStore struct {
	mu      sync.Mutex
	actions map[string]domain.Action
}

func newMemStore() *memStore {
	return &memStore{actions: make(map[string]domain.Action)}
}

func (m *memStore) Create(_ context.Context, a domain.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[a.ID]; ok {
		return fmt.Errorf("memstore: duplicate id %s", a.ID)
	}
	m.actions[a.ID] = a
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return domain.Action{}, domain.ErrNotFound
	}
	return a, nil
}

func (m *memStore) ListByStatus(_ context.Context, status domain.ActionStatus) ([]domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Action
	for _, a := range m.actions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	// Same ordering as the Postgres store: execute time, then reference
	// price.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecuteTime.Equal(out[j].ExecuteTime) {
			return out[i].ExecuteTime.Before(out[j].ExecuteTime)
		}
		return out[i].PredSpread.CurrPrice < out[j].PredSpread.CurrPrice
	})
	return out, nil
}

func (m *memStore) ActiveSymbols(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{})
	for _, a := range m.actions {
		if !a.Status.Terminal() {
			out[a.Symbol] = struct{}{}
		}
	}
	return out, nil
}

func (m *memStore) guardedUpdate(id string, expected domain.ActionStatus, apply func(*domain.Action)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok || a.Status != expected {
		return domain.ErrStaleTransition
	}
	apply(&a)
	m.actions[id] = a
	return nil
}

func (m *memStore) SetAnalysis(_ context.Context, id string, analysis domain.Analysis, spread domain.PredSpread, status domain.ActionStatus) error {
	return m.guardedUpdate(id, domain.StatusCreated, func(a *domain.Action) {
		a.Analysis = &analysis
		a.PredSpread = spread
		a.Status = status
	})
}

func (m *memStore) Cancel(_ context.Context, id string, status domain.ActionStatus, sources []string) error {
	return m.guardedUpdate(id, domain.StatusCreated, func(a *domain.Action) {
		a.Analysis = &domain.Analysis{Sources: sources}
		a.Status = status
	})
}

func (m *memStore) MarkScheduled(_ context.Context, id string) error {
	return m.guardedUpdate(id, domain.StatusOrderCreated, func(a *domain.Action) {
		a.Status = domain.StatusScheduled
	})
}

func (m *memStore) SetExecution(_ context.Context, id string, spread domain.ExecSpread, assoc domain.AssociatedAction) error {
	return m.guardedUpdate(id, domain.StatusScheduled, func(a *domain.Action) {
		a.ExecSpread = &spread
		a.Associated = &assoc
		a.Status = domain.StatusExecuted
	})
}

func (m *memStore) SetExecutionInfo(_ context.Context, id string, info domain.ExecutionInfo, followupPostID string) error {
	return m.guardedUpdate(id, domain.StatusExecuted, func(a *domain.Action) {
		a.ExecutionInfo = &info
		a.FollowupPostID = followupPostID
		a.Status = domain.StatusComplete
	})
}

func (m *memStore) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Action
	for _, a := range m.actions {
		if a.Status.Terminal() && a.CreatedAt.Before(before) {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ domain.ActionStore = (*memStore)(nil)

// memQueue records enqueued tasks.
type memQueue struct {
	mu    sync.Mutex
	tasks []domain.Task
	ats   []time.Time
	err   error
}

func (q *memQueue) EnqueueAt(_ context.Context, task domain.Task, at time.Time) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	q.ats = append(q.ats, at)
	return nil
}

// openLimiter always allows.
type openLimiter struct{}

func (openLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (openLimiter) Wait(context.Context, string) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
