package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/finnhub"
)

type fakeCalendar struct {
	earnings []finnhub.APIEarnings
	ipos     []finnhub.APIIPO
	names    map[string]string
}

func (f *fakeCalendar) EarningsCalendar(context.Context, string, string) ([]finnhub.APIEarnings, error) {
	return f.earnings, nil
}

func (f *fakeCalendar) IPOCalendar(context.Context, string, string) ([]finnhub.APIIPO, error) {
	return f.ipos, nil
}

func (f *fakeCalendar) CompanyName(_ context.Context, symbol string) (string, error) {
	if n, ok := f.names[symbol]; ok {
		return n, nil
	}
	return "", nil
}

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) LatestPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("prices: %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return p, nil
}

func futureDate() string {
	return time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02")
}

func fptr(v float64) *float64 { return &v }

func TestFormulateOrdersSkipsActiveSymbols(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Create(context.Background(), domain.Action{
		ID: "existing", Symbol: "AAPL", Status: domain.StatusScheduled,
	}))

	cal := &fakeCalendar{
		earnings: []finnhub.APIEarnings{
			{Symbol: "AAPL", Date: futureDate(), Hour: "bmo", RevenueEstimate: fptr(1e9), EPSEstimate: fptr(1.5)},
			{Symbol: "MSFT", Date: futureDate(), Hour: "bmo", RevenueEstimate: fptr(2e9), EPSEstimate: fptr(2.5)},
		},
	}
	prices := &fakePrices{prices: map[string]float64{"AAPL": 180, "MSFT": 400}}

	ag := NewAggregator(cal, prices, store, AggregatorConfig{}, discardLogger())
	actions, err := ag.FormulateOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "MSFT", actions[0].Symbol)
	require.Equal(t, domain.StatusCreated, actions[0].Status)
}

func TestFormulateOrdersDropsUnpricedEarnings(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{
		earnings: []finnhub.APIEarnings{
			{Symbol: "NOPX", Date: futureDate(), Hour: "bmo", EPSEstimate: fptr(1.0)},
			{Symbol: "MSFT", Date: futureDate(), Hour: "bmo", EPSEstimate: fptr(2.5)},
		},
	}
	prices := &fakePrices{prices: map[string]float64{"MSFT": 400}}

	ag := NewAggregator(cal, prices, store, AggregatorConfig{}, discardLogger())
	actions, err := ag.FormulateOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "MSFT", actions[0].Symbol)
}

func TestFormulateOrdersIncludesIPOs(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{
		ipos: []finnhub.APIIPO{
			{Symbol: "RDDT", Name: "Reddit Inc", Date: futureDate(), Price: "31.00-34.00"},
			{Symbol: "", Name: "No Symbol Yet", Date: futureDate(), Price: "10"},
			{Symbol: "NOPRICE", Name: "No Price", Date: futureDate(), Price: ""},
		},
	}
	prices := &fakePrices{}

	ag := NewAggregator(cal, prices, store, AggregatorConfig{}, discardLogger())
	actions, err := ag.FormulateOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "RDDT", actions[0].Symbol)
	require.Equal(t, "Reddit Inc", actions[0].Name)
	require.InDelta(t, 32.5, actions[0].PredSpread.CurrPrice, 1e-9)
}

func TestFormulateOrdersTruncatesCandidates(t *testing.T) {
	store := newMemStore()
	var entries []finnhub.APIEarnings
	prices := map[string]float64{}
	for i := 0; i < 10; i++ {
		sym := fmt.Sprintf("SYM%02d", i)
		entries = append(entries, finnhub.APIEarnings{
			Symbol:          sym,
			Date:            futureDate(),
			Hour:            "bmo",
			RevenueEstimate: fptr(float64(i)),
			EPSEstimate:     fptr(1.0),
		})
		prices[sym] = 100
	}
	cal := &fakeCalendar{earnings: entries}

	ag := NewAggregator(cal, &fakePrices{prices: prices}, store, AggregatorConfig{CandidateLimit: 3}, discardLogger())
	actions, err := ag.FormulateOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 3)
}

func TestFormulateOrdersActiveSymbolConsumesWindowSlot(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Create(context.Background(), domain.Action{
		ID: "existing", Symbol: "SYM00", Status: domain.StatusScheduled,
	}))

	var entries []finnhub.APIEarnings
	prices := map[string]float64{}
	for i := 0; i < 3; i++ {
		sym := fmt.Sprintf("SYM%02d", i)
		entries = append(entries, finnhub.APIEarnings{
			Symbol:          sym,
			Date:            futureDate(),
			Hour:            "bmo",
			RevenueEstimate: fptr(float64(i)),
			EPSEstimate:     fptr(1.0),
		})
		prices[sym] = 100
	}
	cal := &fakeCalendar{earnings: entries}

	// SYM00 sorts first and is already active. It still occupies a slot of
	// the two-candidate window, so SYM02 is not admitted.
	ag := NewAggregator(cal, &fakePrices{prices: prices}, store, AggregatorConfig{CandidateLimit: 2}, discardLogger())
	actions, err := ag.FormulateOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "SYM01", actions[0].Symbol)
}

func TestFormulateOrdersLooksUpCompanyName(t *testing.T) {
	store := newMemStore()
	cal := &fakeCalendar{
		earnings: []finnhub.APIEarnings{
			{Symbol: "AAPL", Date: futureDate(), Hour: "bmo", EPSEstimate: fptr(1.5)},
			{Symbol: "ZZZZ", Date: futureDate(), Hour: "bmo", EPSEstimate: fptr(1.0)},
		},
		names: map[string]string{"AAPL": "Apple Inc"},
	}
	prices := &fakePrices{prices: map[string]float64{"AAPL": 180, "ZZZZ": 5}}

	ag := NewAggregator(cal, prices, store, AggregatorConfig{}, discardLogger())
	actions, err := ag.FormulateOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 2)

	nameBySymbol := map[string]string{}
	for _, a := range actions {
		nameBySymbol[a.Symbol] = a.Name
	}
	require.Equal(t, "Apple Inc", nameBySymbol["AAPL"])
	// Missing profile falls back to the symbol.
	require.Equal(t, "ZZZZ", nameBySymbol["ZZZZ"])
}
