package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/alpaca"
)

type fakeBroker struct {
	mu sync.Mutex

	price    float64
	priceErr error

	placed   []alpaca.BracketOrder
	placeErr error
	orderID  string

	order    alpaca.APIOrder
	orderErr error
}

func (f *fakeBroker) LatestPrice(context.Context, string) (float64, error) {
	return f.price, f.priceErr
}

func (f *fakeBroker) PlaceBracketOrder(_ context.Context, order alpaca.BracketOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, order)
	return f.orderID, nil
}

func (f *fakeBroker) GetOrder(context.Context, string, bool) (alpaca.APIOrder, error) {
	return f.order, f.orderErr
}

func scheduledAction(t *testing.T, store *memStore) domain.Action {
	t.Helper()
	a := domain.Action{
		ID:     "act1",
		Symbol: "AAPL",
		Status: domain.StatusScheduled,
		Analysis: &domain.Analysis{
			Stance: domain.StanceBullish,
		},
		PredSpread: domain.PredSpread{CurrPrice: 100, Upper: 110, Lower: 90},
	}
	require.NoError(t, store.Create(context.Background(), a))
	return a
}

func bracketTask() domain.Task {
	return domain.Task{
		ID:          "act1",
		Symbol:      "AAPL",
		Amount:      2,
		Upper:       1.10,
		Lower:       0.90,
		LowerSafety: 0.88,
	}
}

func TestHandleTaskPlacesBracketOrder(t *testing.T) {
	store := newMemStore()
	scheduledAction(t, store)
	broker := &fakeBroker{price: 187.23, orderID: "ord-1"}

	ex := NewExecutor(store, broker, openLimiter{}, ExecutorConfig{}, discardLogger())
	require.NoError(t, ex.HandleTask(context.Background(), bracketTask()))

	require.Len(t, broker.placed, 1)
	order := broker.placed[0]
	require.Equal(t, "AAPL", order.Symbol)
	require.Equal(t, 2, order.Qty)
	require.Equal(t, "buy", order.Side)
	require.Equal(t, "market", order.Type)
	require.Equal(t, "bracket", order.OrderClass)
	require.Equal(t, 205.95, order.TakeProfit.LimitPrice)
	require.Equal(t, 168.51, order.StopLoss.StopPrice)
	require.Equal(t, 164.76, order.StopLoss.LimitPrice)

	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExecuted, a.Status)
	require.NotNil(t, a.ExecSpread)
	require.Equal(t, 187.23, a.ExecSpread.ExecPrice)
	require.Equal(t, 205.95, a.ExecSpread.Upper)
	require.Equal(t, 168.51, a.ExecSpread.Lower)
	require.Equal(t, 164.76, a.ExecSpread.LowerSafety)
	require.NotNil(t, a.Associated)
	require.Equal(t, "ord-1", a.Associated.BrokerOrderID)
}

func TestHandleTaskRedeliveryPlacesNoSecondOrder(t *testing.T) {
	store := newMemStore()
	scheduledAction(t, store)
	broker := &fakeBroker{price: 187.23, orderID: "ord-1"}

	ex := NewExecutor(store, broker, openLimiter{}, ExecutorConfig{}, discardLogger())
	require.NoError(t, ex.HandleTask(context.Background(), bracketTask()))
	require.NoError(t, ex.HandleTask(context.Background(), bracketTask()))

	require.Len(t, broker.placed, 1)

	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExecuted, a.Status)
}

func TestHandleTaskRepairsStuckOrderCreated(t *testing.T) {
	store := newMemStore()
	a := domain.Action{
		ID:       "act1",
		Symbol:   "AAPL",
		Status:   domain.StatusOrderCreated,
		Analysis: &domain.Analysis{Stance: domain.StanceBullish},
	}
	require.NoError(t, store.Create(context.Background(), a))
	broker := &fakeBroker{price: 100, orderID: "ord-1"}

	// The enqueued task survived a crash before MarkScheduled ran. The
	// executor advances the action itself and places the order.
	ex := NewExecutor(store, broker, openLimiter{}, ExecutorConfig{}, discardLogger())
	require.NoError(t, ex.HandleTask(context.Background(), bracketTask()))
	require.Len(t, broker.placed, 1)

	got, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExecuted, got.Status)
}

func TestHandleTaskUnknownActionDropped(t *testing.T) {
	store := newMemStore()
	broker := &fakeBroker{price: 100, orderID: "ord-1"}

	ex := NewExecutor(store, broker, openLimiter{}, ExecutorConfig{}, discardLogger())
	require.NoError(t, ex.HandleTask(context.Background(), bracketTask()))
	require.Empty(t, broker.placed)
}

func TestHandleTaskTransientErrorsRetryable(t *testing.T) {
	store := newMemStore()
	scheduledAction(t, store)

	broker := &fakeBroker{priceErr: errors.New("data api 503")}
	ex := NewExecutor(store, broker, openLimiter{}, ExecutorConfig{}, discardLogger())
	require.Error(t, ex.HandleTask(context.Background(), bracketTask()))

	// Still scheduled: the redelivery will retry from the top.
	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusScheduled, a.Status)

	broker = &fakeBroker{price: 100, placeErr: errors.New("trading api 500")}
	ex = NewExecutor(store, broker, openLimiter{}, ExecutorConfig{}, discardLogger())
	require.Error(t, ex.HandleTask(context.Background(), bracketTask()))
}
