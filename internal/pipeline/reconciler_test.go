package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/alpaca"
)

type fakePoster struct {
	texts []string
	err   error
}

func (f *fakePoster) Post(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.texts = append(f.texts, text)
	return "post-123", nil
}

func executedAction(t *testing.T, store *memStore) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), domain.Action{
		ID:     "act1",
		Symbol: "AAPL",
		Status: domain.StatusExecuted,
		Associated: &domain.AssociatedAction{
			Type:          "order",
			Action:        "buy_bracket",
			BrokerOrderID: "ord-1",
		},
	}))
}

func filledRoundTrip() alpaca.APIOrder {
	return alpaca.APIOrder{
		ID:             "ord-1",
		Status:         "filled",
		FilledAvgPrice: "100",
		FilledQty:      "10",
		Legs: []alpaca.APIOrder{
			{ID: "leg-stop", Status: "canceled"},
			{ID: "leg-tp", Status: "filled", FilledAvgPrice: "110", FilledQty: "10"},
		},
	}
}

func TestReconcileCompletesClosedRoundTrip(t *testing.T) {
	store := newMemStore()
	executedAction(t, store)
	broker := &fakeBroker{order: filledRoundTrip()}
	poster := &fakePoster{}

	r := NewReconciler(store, broker, poster, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusComplete, a.Status)
	require.NotNil(t, a.ExecutionInfo)
	require.Equal(t, 100.0, a.ExecutionInfo.PLAbs)
	require.Equal(t, 10.0, a.ExecutionInfo.PLRel)
	require.Equal(t, "post-123", a.FollowupPostID)
	require.Len(t, poster.texts, 1)
	require.Contains(t, poster.texts[0], "AAPL")
}

func TestReconcileSkipsOpenRoundTrip(t *testing.T) {
	store := newMemStore()
	executedAction(t, store)

	// Entry filled, but no exit leg filled yet.
	order := filledRoundTrip()
	order.Legs = []alpaca.APIOrder{{ID: "leg-tp", Status: "new"}}
	broker := &fakeBroker{order: order}

	r := NewReconciler(store, broker, &fakePoster{}, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExecuted, a.Status)
	require.Nil(t, a.ExecutionInfo)
}

func TestReconcileSkipsOnBrokerError(t *testing.T) {
	store := newMemStore()
	executedAction(t, store)
	broker := &fakeBroker{orderErr: errors.New("api down")}

	r := NewReconciler(store, broker, &fakePoster{}, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExecuted, a.Status)
}

func TestReconcilePostFailureRecordsFailed(t *testing.T) {
	store := newMemStore()
	executedAction(t, store)
	broker := &fakeBroker{order: filledRoundTrip()}
	poster := &fakePoster{err: errors.New("rate limited")}

	r := NewReconciler(store, broker, poster, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusComplete, a.Status)
	require.Equal(t, "failed", a.FollowupPostID)
}

func TestReconcileNilPosterRecordsFailed(t *testing.T) {
	store := newMemStore()
	executedAction(t, store)
	broker := &fakeBroker{order: filledRoundTrip()}

	r := NewReconciler(store, broker, nil, discardLogger())
	require.NoError(t, r.Run(context.Background()))

	a, err := store.GetByID(context.Background(), "act1")
	require.NoError(t, err)
	require.Equal(t, "failed", a.FollowupPostID)
}
