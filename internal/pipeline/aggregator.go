// Package pipeline contains the order lifecycle stages: candidate
// aggregation, analysis scheduling, order execution, result reconciliation,
// and cold-storage archival.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/finnhub"
)

// CalendarSource provides upcoming catalyst calendars and company metadata.
type CalendarSource interface {
	EarningsCalendar(ctx context.Context, from, to string) ([]finnhub.APIEarnings, error)
	IPOCalendar(ctx context.Context, from, to string) ([]finnhub.APIIPO, error)
	CompanyName(ctx context.Context, symbol string) (string, error)
}

// PriceSource quotes a current reference price for a symbol.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// AggregatorConfig tunes candidate collection.
type AggregatorConfig struct {
	LookaheadDays  int
	CandidateLimit int
	MarketOffset   time.Duration
}

// Aggregator turns calendar entries into created actions. Symbols that
// already have an active action are skipped, as are earnings entries with no
// obtainable reference price.
type Aggregator struct {
	calendar CalendarSource
	prices   PriceSource
	store    domain.ActionStore
	cfg      AggregatorConfig
	logger   *slog.Logger
}

// NewAggregator wires the aggregator's collaborators.
func NewAggregator(calendar CalendarSource, prices PriceSource, store domain.ActionStore, cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = 7
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 50
	}
	return &Aggregator{
		calendar: calendar,
		prices:   prices,
		store:    store,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// FormulateOrders collects eligible candidates from both calendars, promotes
// them to created actions, persists each, and returns them ordered by execute
// time then reference price.
func (ag *Aggregator) FormulateOrders(ctx context.Context) ([]domain.Action, error) {
	now := time.Now().UTC()
	from := now.Format("2006-01-02")
	to := now.AddDate(0, 0, ag.cfg.LookaheadDays).Format("2006-01-02")

	active, err := ag.store.ActiveSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load active symbols: %w", err)
	}

	earnings, err := ag.collectEarnings(ctx, from, to, now, active)
	if err != nil {
		return nil, err
	}
	ipos, err := ag.collectIPOs(ctx, from, to, now, active)
	if err != nil {
		return nil, err
	}

	var actions []domain.Action
	for _, c := range earnings {
		a, ok := ag.promoteEarnings(ctx, c, now)
		if !ok {
			continue
		}
		actions = append(actions, a)
	}
	for _, c := range ipos {
		a := domain.NewAction(c, c.Name, c.ExpectedPrice, ag.cfg.MarketOffset, now)
		if err := ag.store.Create(ctx, a); err != nil {
			ag.logger.Error("persist ipo action",
				slog.String("symbol", c.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		actions = append(actions, a)
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if !actions[i].ExecuteTime.Equal(actions[j].ExecuteTime) {
			return actions[i].ExecuteTime.Before(actions[j].ExecuteTime)
		}
		return actions[i].PredSpread.CurrPrice < actions[j].PredSpread.CurrPrice
	})

	ag.logger.Info("formulated orders",
		slog.Int("earnings", len(earnings)),
		slog.Int("ipos", len(ipos)),
		slog.Int("actions", len(actions)))
	return actions, nil
}

func (ag *Aggregator) collectEarnings(ctx context.Context, from, to string, now time.Time, active map[string]struct{}) ([]domain.Candidate, error) {
	entries, err := ag.calendar.EarningsCalendar(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch earnings calendar: %w", err)
	}

	var candidates []domain.Candidate
	for _, e := range entries {
		c, err := domain.NewEarningsCandidate(e.Symbol, e.Date, e.Hour, e.Revenue(), e.EPS(), now)
		if err != nil {
			ag.logger.Debug("skip malformed earnings entry",
				slog.String("symbol", e.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		if !c.Eligible {
			continue
		}
		candidates = append(candidates, c)
	}

	// Truncation happens before the active-symbol filter: an already-active
	// symbol inside the window consumes a slot rather than admitting a
	// candidate from beyond it.
	domain.SortEarningsCandidates(candidates)
	if len(candidates) > ag.cfg.CandidateLimit {
		candidates = candidates[:ag.cfg.CandidateLimit]
	}
	return dedupe(candidates, active), nil
}

// dedupe drops candidates whose symbol is already active or already present
// earlier in the list.
func dedupe(candidates []domain.Candidate, active map[string]struct{}) []domain.Candidate {
	seen := make(map[string]struct{})
	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := active[c.Symbol]; ok {
			continue
		}
		if _, ok := seen[c.Symbol]; ok {
			continue
		}
		seen[c.Symbol] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (ag *Aggregator) collectIPOs(ctx context.Context, from, to string, now time.Time, active map[string]struct{}) ([]domain.Candidate, error) {
	entries, err := ag.calendar.IPOCalendar(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch ipo calendar: %w", err)
	}

	var candidates []domain.Candidate
	for _, e := range entries {
		if e.Symbol == "" || e.Price == "" {
			continue
		}
		c, err := domain.NewIPOCandidate(e.Symbol, e.Name, e.Date, e.Price, now)
		if err != nil {
			ag.logger.Debug("skip malformed ipo entry",
				slog.String("symbol", e.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		if !c.BuyTime.After(now) {
			continue
		}
		candidates = append(candidates, c)
	}

	domain.SortIPOCandidates(candidates)
	if len(candidates) > ag.cfg.CandidateLimit {
		candidates = candidates[:ag.cfg.CandidateLimit]
	}
	return dedupe(candidates, active), nil
}

// promoteEarnings quotes a reference price and persists the action. Candidates
// without an obtainable price are dropped without error.
func (ag *Aggregator) promoteEarnings(ctx context.Context, c domain.Candidate, now time.Time) (domain.Action, bool) {
	price, err := ag.prices.LatestPrice(ctx, c.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			ag.logger.Debug("no reference price, dropping candidate",
				slog.String("symbol", c.Symbol))
		} else {
			ag.logger.Error("quote reference price",
				slog.String("symbol", c.Symbol),
				slog.String("error", err.Error()))
		}
		return domain.Action{}, false
	}

	name, err := ag.calendar.CompanyName(ctx, c.Symbol)
	if err != nil || name == "" {
		name = c.Symbol
	}

	a := domain.NewAction(c, name, price, ag.cfg.MarketOffset, now)
	if err := ag.store.Create(ctx, a); err != nil {
		ag.logger.Error("persist earnings action",
			slog.String("symbol", c.Symbol),
			slog.String("error", err.Error()))
		return domain.Action{}, false
	}
	return a, true
}
