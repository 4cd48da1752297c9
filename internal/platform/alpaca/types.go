package alpaca

import "strconv"

// APISnapshot is the slice of the snapshot response the pipeline needs: the
// daily bar's volume-weighted average price.
type APISnapshot struct {
	DailyBar *struct {
		VW float64 `json:"vw"`
	} `json:"dailyBar"`
}

// BracketOrder is the request body for placing a market entry with attached
// take-profit and stop-loss-with-limit exit legs.
type BracketOrder struct {
	Symbol      string      `json:"symbol"`
	Qty         int         `json:"qty"`
	Side        string      `json:"side"`
	Type        string      `json:"type"`
	TimeInForce string      `json:"time_in_force"`
	OrderClass  string      `json:"order_class"`
	TakeProfit  TakeProfit  `json:"take_profit"`
	StopLoss    StopLoss    `json:"stop_loss"`
}

// TakeProfit is the attached take-profit exit leg.
type TakeProfit struct {
	LimitPrice float64 `json:"limit_price"`
}

// StopLoss is the attached stop-loss exit leg with a safety limit.
type StopLoss struct {
	StopPrice  float64 `json:"stop_price"`
	LimitPrice float64 `json:"limit_price"`
}

// APIOrder is a brokerage order, optionally with its nested bracket legs.
// Numeric fill fields arrive as JSON strings and are parsed on access.
type APIOrder struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	Status         string     `json:"status"`
	FilledAvgPrice string     `json:"filled_avg_price"`
	FilledQty      string     `json:"filled_qty"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
	Legs           []APIOrder `json:"legs"`
}

// Filled reports whether this order (or leg) has status "filled".
func (o APIOrder) Filled() bool {
	return o.Status == "filled"
}

// FillPrice returns the parsed average fill price, or ok=false when the
// order has no fill yet.
func (o APIOrder) FillPrice() (float64, bool) {
	return parseFloat(o.FilledAvgPrice)
}

// FillQty returns the parsed filled quantity, or ok=false when the order has
// no fill yet.
func (o APIOrder) FillQty() (float64, bool) {
	return parseFloat(o.FilledQty)
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
