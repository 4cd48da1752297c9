package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/alpaca"
)

// Broker places and inspects brokerage orders.
type Broker interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	PlaceBracketOrder(ctx context.Context, order alpaca.BracketOrder) (string, error)
	GetOrder(ctx context.Context, id string, nested bool) (alpaca.APIOrder, error)
}

// brokerRateKey throttles all outbound brokerage calls under one window.
const brokerRateKey = "alpaca"

// ExecutorConfig tunes outbound brokerage throttling.
type ExecutorConfig struct {
	BrokerRateLimit  int
	BrokerRateWindow time.Duration
}

// Executor handles fired queue tasks: it re-quotes the symbol, derives
// absolute bracket prices from the task's band multipliers, and places the
// order. Redelivered tasks are dropped by the status guard before any
// brokerage call is made.
type Executor struct {
	store   domain.ActionStore
	broker  Broker
	limiter domain.RateLimiter
	cfg     ExecutorConfig
	logger  *slog.Logger
}

// NewExecutor wires the executor's collaborators.
func NewExecutor(store domain.ActionStore, broker Broker, limiter domain.RateLimiter, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.BrokerRateLimit <= 0 {
		cfg.BrokerRateLimit = 3
	}
	if cfg.BrokerRateWindow <= 0 {
		cfg.BrokerRateWindow = time.Second
	}
	return &Executor{
		store:   store,
		broker:  broker,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// HandleTask processes one fired task. It returns nil for conditions that
// must not be retried (missing or already-advanced actions) and an error for
// transient failures the queue should redeliver.
func (e *Executor) HandleTask(ctx context.Context, task domain.Task) error {
	log := e.logger.With(
		slog.String("action_id", task.ID),
		slog.String("symbol", task.Symbol))

	a, err := e.store.GetByID(ctx, task.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("task references unknown action, dropping")
			return nil
		}
		return err
	}

	// A fired task for an order_created action means the scheduler crashed
	// between enqueue and mark. The task itself proves the enqueue happened,
	// so repair the status and carry on.
	if a.Status == domain.StatusOrderCreated {
		if err := e.store.MarkScheduled(ctx, task.ID); err != nil {
			return fmt.Errorf("pipeline: repair stuck action %s: %w", task.ID, err)
		}
		log.Warn("repaired action stuck at order_created")
		a.Status = domain.StatusScheduled
	}

	// Redelivery guard: only a scheduled action may place an order.
	if a.Status != domain.StatusScheduled {
		log.Info("action already advanced, dropping task",
			slog.String("status", string(a.Status)))
		return nil
	}

	if err := e.waitBrokerSlot(ctx); err != nil {
		return err
	}

	price, err := e.broker.LatestPrice(ctx, task.Symbol)
	if err != nil {
		return fmt.Errorf("pipeline: quote %s at fire time: %w", task.Symbol, err)
	}

	takeProfit := domain.RoundPrice(price * task.Upper)
	stopPrice := domain.RoundPrice(price * task.Lower)
	stopLimit := domain.RoundPrice(price * task.LowerSafety)

	order := alpaca.BracketOrder{
		Symbol:      task.Symbol,
		Qty:         task.Amount,
		Side:        "buy",
		Type:        "market",
		TimeInForce: "day",
		OrderClass:  "bracket",
		TakeProfit:  alpaca.TakeProfit{LimitPrice: takeProfit},
		StopLoss: alpaca.StopLoss{
			StopPrice:  stopPrice,
			LimitPrice: stopLimit,
		},
	}

	if err := e.waitBrokerSlot(ctx); err != nil {
		return err
	}

	orderID, err := e.broker.PlaceBracketOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("pipeline: place bracket order for %s: %w", task.Symbol, err)
	}

	spread := domain.ExecSpread{
		Upper:       takeProfit,
		ExecPrice:   price,
		Lower:       stopPrice,
		LowerSafety: stopLimit,
	}
	assoc := domain.AssociatedAction{
		Type:          "order",
		Action:        "buy_bracket",
		BrokerOrderID: orderID,
		Timestamp:     time.Now().UTC(),
	}

	err = e.store.SetExecution(ctx, task.ID, spread, assoc)
	if errors.Is(err, domain.ErrStaleTransition) {
		// The order was placed but another delivery won the race. Do not
		// retry; a retry would place a second order.
		log.Error("execution recorded elsewhere, order may be duplicated",
			slog.String("broker_order_id", orderID))
		return nil
	}
	if err != nil {
		log.Error("record execution failed, order placed",
			slog.String("broker_order_id", orderID),
			slog.String("error", err.Error()))
		return nil
	}

	log.Info("bracket order placed",
		slog.String("broker_order_id", orderID),
		slog.Float64("exec_price", price),
		slog.Float64("take_profit", takeProfit),
		slog.Float64("stop_price", stopPrice))
	return nil
}

func (e *Executor) waitBrokerSlot(ctx context.Context) error {
	for {
		allowed, err := e.limiter.Allow(ctx, brokerRateKey, e.cfg.BrokerRateLimit, e.cfg.BrokerRateWindow)
		if err != nil {
			return fmt.Errorf("pipeline: broker rate limit: %w", err)
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(100 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
