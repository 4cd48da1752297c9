package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nouslabs/nous/internal/analysis"
	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/newsapi"
)

type stubNews struct {
	// failSymbols makes Search error when the query contains the symbol.
	failSymbols map[string]bool
}

func (s *stubNews) Search(_ context.Context, query string, _ time.Time) ([]newsapi.Article, error) {
	if s.failSymbols[query] {
		return nil, errors.New("news down")
	}
	return []newsapi.Article{{Title: "headline", URL: "https://example.com/a"}}, nil
}

type stubGen struct{}

func (stubGen) Generate(context.Context, string) (string, error) {
	return `{"summary":"s","stance":"bullish","defense":"d"}`, nil
}

func seedCreated(t *testing.T, store *memStore, n int) []domain.Action {
	t.Helper()
	var out []domain.Action
	base := time.Now().UTC().Add(time.Hour)
	for i := 0; i < n; i++ {
		a := domain.Action{
			ID:          fmt.Sprintf("a%02d", i),
			Symbol:      fmt.Sprintf("SYM%02d", i),
			Name:        fmt.Sprintf("SYM%02d", i),
			Status:      domain.StatusCreated,
			ExecuteTime: base.Add(time.Duration(i) * time.Minute),
			PredSpread:  domain.PredSpread{CurrPrice: 100},
		}
		require.NoError(t, store.Create(context.Background(), a))
		out = append(out, a)
	}
	return out
}

func newTestScheduler(store *memStore, news analysis.NewsSearcher, queue *memQueue, cfg SchedulerConfig) *Scheduler {
	cfg.AnalysisRate = rate.Inf
	gate := analysis.NewGate(news, stubGen{}, store, 0, discardLogger())
	return NewScheduler(store, gate, queue, cfg, discardLogger())
}

func TestSchedulerCapsPerRun(t *testing.T) {
	store := newMemStore()
	seedCreated(t, store, 12)
	queue := &memQueue{}

	s := newTestScheduler(store, &stubNews{}, queue, SchedulerConfig{RunCap: 5, OrderQty: 2, SafetyMargin: 0.01})
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, queue.tasks, 5)

	scheduled, err := store.ListByStatus(context.Background(), domain.StatusScheduled)
	require.NoError(t, err)
	require.Len(t, scheduled, 5)

	remaining, err := store.ListByStatus(context.Background(), domain.StatusCreated)
	require.NoError(t, err)
	require.Len(t, remaining, 7)
}

func TestSchedulerTaskCarriesBandMultipliers(t *testing.T) {
	store := newMemStore()
	actions := seedCreated(t, store, 1)
	queue := &memQueue{}

	s := newTestScheduler(store, &stubNews{}, queue, SchedulerConfig{OrderQty: 3, SafetyMargin: 0.02})
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, queue.tasks, 1)
	task := queue.tasks[0]
	require.Equal(t, actions[0].ID, task.ID)
	require.Equal(t, actions[0].Symbol, task.Symbol)
	require.Equal(t, 3, task.Amount)
	require.Equal(t, 1.10, task.Upper)
	require.Equal(t, 0.90, task.Lower)
	require.InDelta(t, 0.88, task.LowerSafety, 1e-9)
	require.Equal(t, actions[0].ExecuteTime, queue.ats[0])
}

func TestSchedulerProcessesCheapestFirstOnTies(t *testing.T) {
	store := newMemStore()
	at := time.Now().UTC().Add(time.Hour)
	for i, price := range []float64{300, 100, 200} {
		require.NoError(t, store.Create(context.Background(), domain.Action{
			ID:          fmt.Sprintf("a%02d", i),
			Symbol:      fmt.Sprintf("SYM%02d", i),
			Name:        fmt.Sprintf("SYM%02d", i),
			Status:      domain.StatusCreated,
			ExecuteTime: at,
			PredSpread:  domain.PredSpread{CurrPrice: price},
		}))
	}
	queue := &memQueue{}

	// Equal execute times: the reference price breaks the tie, so the cap
	// admits the two cheapest actions.
	s := newTestScheduler(store, &stubNews{}, queue, SchedulerConfig{RunCap: 2})
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, queue.tasks, 2)
	require.Equal(t, "SYM01", queue.tasks[0].Symbol)
	require.Equal(t, "SYM02", queue.tasks[1].Symbol)
}

func TestSchedulerIsolatesFailures(t *testing.T) {
	store := newMemStore()
	seedCreated(t, store, 4)
	queue := &memQueue{}

	// The gate queries by action name.
	news := &stubNews{failSymbols: map[string]bool{"SYM01": true}}
	s := newTestScheduler(store, news, queue, SchedulerConfig{RunCap: 10})
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, queue.tasks, 3)

	// The failed action stays created for the next run.
	remaining, err := store.ListByStatus(context.Background(), domain.StatusCreated)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "SYM01", remaining[0].Symbol)
}

func TestSchedulerEnqueueFailureLeavesOrderCreated(t *testing.T) {
	store := newMemStore()
	seedCreated(t, store, 1)
	queue := &memQueue{err: errors.New("redis down")}

	s := newTestScheduler(store, &stubNews{}, queue, SchedulerConfig{})
	require.NoError(t, s.Run(context.Background()))

	// Analysis passed but scheduling failed, so the action sits at
	// order_created and is never marked scheduled.
	orderCreated, err := store.ListByStatus(context.Background(), domain.StatusOrderCreated)
	require.NoError(t, err)
	require.Len(t, orderCreated, 1)

	scheduled, err := store.ListByStatus(context.Background(), domain.StatusScheduled)
	require.NoError(t, err)
	require.Empty(t, scheduled)
}
