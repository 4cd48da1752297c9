package finnhub

// APIEarnings is one record of the earnings-calendar response. Estimate
// fields are pointers because the API omits them for thinly covered symbols.
type APIEarnings struct {
	Symbol          string   `json:"symbol"`
	Date            string   `json:"date"`
	Hour            string   `json:"hour"`
	RevenueEstimate *float64 `json:"revenueEstimate"`
	EPSEstimate     *float64 `json:"epsEstimate"`
}

// Revenue returns the revenue estimate, or zero when absent.
func (e APIEarnings) Revenue() float64 {
	if e.RevenueEstimate == nil {
		return 0
	}
	return *e.RevenueEstimate
}

// EPS returns the EPS estimate, or zero when absent.
func (e APIEarnings) EPS() float64 {
	if e.EPSEstimate == nil {
		return 0
	}
	return *e.EPSEstimate
}

// APIIPO is one record of the IPO-calendar response. Price may be a single
// value or a quoted "low-high" range.
type APIIPO struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Date   string `json:"date"`
	Price  string `json:"price"`
}

// APIProfile is the company profile response; only the display name is used.
type APIProfile struct {
	Name string `json:"name"`
}

type earningsCalendarResponse struct {
	EarningsCalendar []APIEarnings `json:"earningsCalendar"`
}

type ipoCalendarResponse struct {
	IPOCalendar []APIIPO `json:"ipoCalendar"`
}
