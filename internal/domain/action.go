package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionStatus is the lifecycle state of an action. Transitions only move
// forward; see CanTransition.
type ActionStatus string

const (
	StatusCreated          ActionStatus = "created"
	StatusOrderCreated     ActionStatus = "order_created"
	StatusScheduled        ActionStatus = "scheduled"
	StatusExecuted         ActionStatus = "executed"
	StatusComplete         ActionStatus = "complete"
	StatusCanceledNoNews   ActionStatus = "canceled_insufficient_news"
	StatusCanceledAnalysis ActionStatus = "canceled_analysis_failed"
)

// Terminal reports whether no further transitions are possible.
func (s ActionStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusCanceledNoNews, StatusCanceledAnalysis:
		return true
	}
	return false
}

// ActiveStatuses are the non-terminal statuses. An action in one of these
// states blocks its symbol from being picked up again.
var ActiveStatuses = []ActionStatus{
	StatusCreated,
	StatusOrderCreated,
	StatusScheduled,
	StatusExecuted,
}

var statusRank = map[ActionStatus]int{
	StatusCreated:      0,
	StatusOrderCreated: 1,
	StatusScheduled:    2,
	StatusExecuted:     3,
	StatusComplete:     4,
}

// CanTransition reports whether from may advance to to. Cancellations are
// allowed only out of created; every other move must be one forward step.
func CanTransition(from, to ActionStatus) bool {
	if to == StatusCanceledNoNews || to == StatusCanceledAnalysis {
		return from == StatusCreated
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr == fr+1
}

// Stance is the directional verdict the analysis step produces.
type Stance string

const (
	StanceBullish Stance = "bullish"
	StanceBearish Stance = "bearish"
	StanceNeutral Stance = "neutral"
)

// BandsForStance returns the take-profit and stop-loss multipliers for a
// stance. Unknown stances fall back to the neutral band.
func BandsForStance(s Stance) (upper, lower float64) {
	switch s {
	case StanceBullish:
		return 1.10, 0.90
	case StanceBearish:
		return 1.05, 0.95
	}
	return 1.02, 0.98
}

// Analysis is the recorded verdict of the AI gate.
type Analysis struct {
	Stance   Stance   `json:"stance"`
	Overview string   `json:"overview"`
	Defense  string   `json:"defense"`
	Sources  []string `json:"sources"`
}

// PredSpread is the predicted price band at order creation time, relative to
// the reference price.
type PredSpread struct {
	CurrPrice float64 `json:"curr_price"`
	Upper     float64 `json:"upper"`
	Lower     float64 `json:"lower"`
}

// ExecSpread is the absolute price band the bracket order was placed with.
// All three bracket targets are recorded: the take-profit limit, the stop
// trigger, and the stop-limit floor.
type ExecSpread struct {
	Upper       float64 `json:"upper"`
	ExecPrice   float64 `json:"exec_price"`
	Lower       float64 `json:"lower"`
	LowerSafety float64 `json:"lower_safety"`
}

// AssociatedAction links an action to the brokerage order it produced.
type AssociatedAction struct {
	Type          string    `json:"type"`
	Action        string    `json:"action"`
	BrokerOrderID string    `json:"alpaca_order_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// ExecutionInfo is the realized outcome of a completed round trip.
type ExecutionInfo struct {
	BuyFillPrice  float64   `json:"buy_fill_price"`
	BuyQuantity   float64   `json:"buy_quantity"`
	SellFillPrice float64   `json:"sell_fill_price"`
	SellQuantity  float64   `json:"sell_quantity"`
	PLAbs         float64   `json:"pl_abs"`
	PLRel         float64   `json:"pl_rel"`
	Timestamp     time.Time `json:"timestamp"`
}

// Action is one tracked trade from candidate promotion through completion.
type Action struct {
	ID          string        `json:"id"`
	Symbol      string        `json:"symbol"`
	Name        string        `json:"name"`
	Kind        CandidateKind `json:"type"`
	Status      ActionStatus  `json:"status"`
	ExecuteTime time.Time     `json:"execute_time"`
	CreatedAt   time.Time     `json:"timestamp"`

	PredSpread PredSpread `json:"pred_spread"`

	Analysis       *Analysis         `json:"analysis,omitempty"`
	ExecSpread     *ExecSpread       `json:"exec_spread,omitempty"`
	Associated     *AssociatedAction `json:"associated_action,omitempty"`
	ExecutionInfo  *ExecutionInfo    `json:"execution_info,omitempty"`
	FollowupPostID string            `json:"associated_tweet_followup_id,omitempty"`
}

// NewAction promotes a candidate to a created action. The execute time is the
// buy time shifted five minutes early plus the configured market offset.
func NewAction(c Candidate, displayName string, referencePrice float64, marketOffset time.Duration, now time.Time) Action {
	name := displayName
	if name == "" {
		name = c.Name
	}
	return Action{
		ID:          uuid.New().String(),
		Symbol:      c.Symbol,
		Name:        name,
		Kind:        c.Kind,
		Status:      StatusCreated,
		ExecuteTime: c.BuyTime.Add(-5 * time.Minute).Add(marketOffset),
		CreatedAt:   now.UTC(),
		PredSpread:  PredSpread{CurrPrice: referencePrice},
	}
}

// RoundPrice rounds a price to two decimal places, half away from zero.
func RoundPrice(p float64) float64 {
	f, _ := decimal.NewFromFloat(p).Round(2).Float64()
	return f
}

// ComputePnL returns the absolute and relative profit of a completed round
// trip. The relative figure is a percentage of the entry cost.
func ComputePnL(buyFillPrice, buyQty, sellFillPrice, sellQty float64) (plAbs, plRel float64) {
	cost := decimal.NewFromFloat(buyFillPrice).Mul(decimal.NewFromFloat(buyQty))
	proceeds := decimal.NewFromFloat(sellFillPrice).Mul(decimal.NewFromFloat(sellQty))
	abs := proceeds.Sub(cost)

	plAbs, _ = abs.Round(2).Float64()
	if cost.IsZero() {
		return plAbs, 0
	}
	plRel, _ = abs.Div(cost).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return plAbs, plRel
}
