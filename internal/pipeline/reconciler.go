package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nouslabs/nous/internal/domain"
)

// Poster publishes a short status update and returns the post id.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// Reconciler closes the loop on executed actions: once both the entry order
// and an exit leg have filled, it records the realized result and publishes a
// completion post. A broker fetch failure skips the action until the next
// run.
type Reconciler struct {
	store  domain.ActionStore
	broker Broker
	poster Poster
	logger *slog.Logger
}

// NewReconciler wires the reconciler's collaborators. poster may be nil, in
// which case completions are recorded with a "failed" post id.
func NewReconciler(store domain.ActionStore, broker Broker, poster Poster, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		broker: broker,
		poster: poster,
		logger: logger.With(slog.String("component", "reconciler")),
	}
}

// Run scans executed actions and completes those whose round trip has closed.
func (r *Reconciler) Run(ctx context.Context) error {
	executed, err := r.store.ListByStatus(ctx, domain.StatusExecuted)
	if err != nil {
		return fmt.Errorf("pipeline: list executed actions: %w", err)
	}

	completed := 0
	for _, a := range executed {
		done, err := r.reconcile(ctx, a)
		if err != nil {
			r.logger.Error("reconcile failed",
				slog.String("action_id", a.ID),
				slog.String("symbol", a.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		if done {
			completed++
		}
	}

	r.logger.Info("reconcile run complete",
		slog.Int("examined", len(executed)),
		slog.Int("completed", completed))
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, a domain.Action) (bool, error) {
	if a.Associated == nil || a.Associated.BrokerOrderID == "" {
		return false, fmt.Errorf("pipeline: action %s has no broker order", a.ID)
	}

	order, err := r.broker.GetOrder(ctx, a.Associated.BrokerOrderID, true)
	if err != nil {
		return false, fmt.Errorf("pipeline: fetch order %s: %w", a.Associated.BrokerOrderID, err)
	}

	if !order.Filled() {
		return false, nil
	}
	buyPrice, ok := order.FillPrice()
	if !ok {
		return false, nil
	}
	buyQty, ok := order.FillQty()
	if !ok {
		return false, nil
	}

	// The round trip is closed once any exit leg has filled.
	var sellPrice, sellQty float64
	closed := false
	for _, leg := range order.Legs {
		if !leg.Filled() {
			continue
		}
		p, pok := leg.FillPrice()
		q, qok := leg.FillQty()
		if !pok || !qok {
			continue
		}
		sellPrice, sellQty = p, q
		closed = true
		break
	}
	if !closed {
		return false, nil
	}

	plAbs, plRel := domain.ComputePnL(buyPrice, buyQty, sellPrice, sellQty)
	info := domain.ExecutionInfo{
		BuyFillPrice:  buyPrice,
		BuyQuantity:   buyQty,
		SellFillPrice: sellPrice,
		SellQuantity:  sellQty,
		PLAbs:         plAbs,
		PLRel:         plRel,
		Timestamp:     time.Now().UTC(),
	}

	postID := r.publish(ctx, a, info)

	if err := r.store.SetExecutionInfo(ctx, a.ID, info, postID); err != nil {
		return false, err
	}

	r.logger.Info("action complete",
		slog.String("action_id", a.ID),
		slog.String("symbol", a.Symbol),
		slog.Float64("pl_abs", plAbs),
		slog.Float64("pl_rel", plRel))
	return true, nil
}

// publish posts the completion update. Posting is best effort: a failure is
// recorded as "failed" and never blocks completion.
func (r *Reconciler) publish(ctx context.Context, a domain.Action, info domain.ExecutionInfo) string {
	if r.poster == nil {
		return "failed"
	}

	text := fmt.Sprintf("Closed %s: bought %.0f @ %.2f, sold %.0f @ %.2f. P/L %+.2f (%+.2f%%).",
		a.Symbol, info.BuyQuantity, info.BuyFillPrice,
		info.SellQuantity, info.SellFillPrice,
		info.PLAbs, info.PLRel)

	postID, err := r.poster.Post(ctx, text)
	if err != nil {
		r.logger.Warn("completion post failed",
			slog.String("action_id", a.ID),
			slog.String("error", err.Error()))
		return "failed"
	}
	return postID
}
