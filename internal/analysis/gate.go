// Package analysis implements the news-driven AI gate that decides whether a
// created action becomes an order.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/newsapi"
)

// NewsSearcher fetches recent headlines for a query.
type NewsSearcher interface {
	Search(ctx context.Context, query string, from time.Time) ([]newsapi.Article, error)
}

// Generator produces a free-text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Verdict is the parsed model response.
type Verdict struct {
	Summary string `json:"summary"`
	Stance  string `json:"stance"`
	Defense string `json:"defense"`
}

// Gate runs the analysis step for one action: fetch headlines, ask the model
// for a stance, and either promote the action to order_created with a price
// band or cancel it with a terminal status.
type Gate struct {
	news     NewsSearcher
	gen      Generator
	store    domain.ActionStore
	lookback time.Duration
	logger   *slog.Logger
}

// NewGate wires the gate's collaborators. lookback bounds how far back the
// news search reaches.
func NewGate(news NewsSearcher, gen Generator, store domain.ActionStore, lookback time.Duration, logger *slog.Logger) *Gate {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &Gate{
		news:     news,
		gen:      gen,
		store:    store,
		lookback: lookback,
		logger:   logger.With(slog.String("component", "analysis_gate")),
	}
}

// Evaluate runs the gate for a created action and returns the status it moved
// to. Cancellations are recorded in the store before returning; they are not
// errors.
func (g *Gate) Evaluate(ctx context.Context, a domain.Action) (domain.ActionStatus, error) {
	log := g.logger.With(slog.String("action_id", a.ID), slog.String("symbol", a.Symbol))

	query := a.Name
	if query == "" {
		query = a.Symbol
	}

	articles, err := g.news.Search(ctx, query, time.Now().Add(-g.lookback))
	if err != nil {
		return a.Status, fmt.Errorf("analysis: search news for %s: %w", a.Symbol, err)
	}
	if len(articles) == 0 {
		log.Info("no articles, canceling", slog.String("query", query))
		if err := g.store.Cancel(ctx, a.ID, domain.StatusCanceledNoNews, nil); err != nil {
			return a.Status, err
		}
		return domain.StatusCanceledNoNews, nil
	}

	sources := make([]string, 0, len(articles))
	for _, art := range articles {
		sources = append(sources, art.URL)
	}

	raw, err := g.gen.Generate(ctx, buildPrompt(a, articles))
	if err != nil {
		return a.Status, fmt.Errorf("analysis: generate verdict for %s: %w", a.Symbol, err)
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		log.Warn("unparseable verdict, canceling", slog.String("error", err.Error()))
		if cErr := g.store.Cancel(ctx, a.ID, domain.StatusCanceledAnalysis, sources); cErr != nil {
			return a.Status, cErr
		}
		return domain.StatusCanceledAnalysis, nil
	}

	stance := domain.Stance(strings.ToLower(strings.TrimSpace(verdict.Stance)))
	upperMult, lowerMult := domain.BandsForStance(stance)

	spread := domain.PredSpread{
		CurrPrice: a.PredSpread.CurrPrice,
		Upper:     domain.RoundPrice(a.PredSpread.CurrPrice * upperMult),
		Lower:     domain.RoundPrice(a.PredSpread.CurrPrice * lowerMult),
	}
	analysis := domain.Analysis{
		Stance:   stance,
		Overview: verdict.Summary,
		Defense:  verdict.Defense,
		Sources:  sources,
	}

	if err := g.store.SetAnalysis(ctx, a.ID, analysis, spread, domain.StatusOrderCreated); err != nil {
		return a.Status, err
	}

	log.Info("analysis complete",
		slog.String("stance", string(stance)),
		slog.Float64("upper", spread.Upper),
		slog.Float64("lower", spread.Lower))
	return domain.StatusOrderCreated, nil
}

func buildPrompt(a domain.Action, articles []newsapi.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a financial analyst. Based on the following recent headlines about %s (%s), ", a.Name, a.Symbol)
	b.WriteString("decide whether the short-term outlook for the stock is bullish, bearish, or neutral.\n\n")
	b.WriteString("Headlines:\n")
	for i, art := range articles {
		fmt.Fprintf(&b, "%d. %s", i+1, art.Title)
		if art.Description != "" {
			fmt.Fprintf(&b, ": %s", art.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with a single JSON object with exactly these keys: ")
	b.WriteString(`"summary" (one paragraph), "stance" (one of "bullish", "bearish", "neutral"), `)
	b.WriteString(`"defense" (why you chose that stance).`)
	return b.String()
}

// ParseVerdict extracts the span from the first "{" to the last "}" of a
// model response and decodes it. The model wraps its JSON in prose often
// enough that decoding the raw response directly is not reliable. Spanning to
// the last brace rather than the first tolerates nested objects in the
// verdict, at the cost of rejecting responses whose trailing prose contains a
// stray "}".
func ParseVerdict(raw string) (Verdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Verdict{}, fmt.Errorf("analysis: no JSON object in response: %w", domain.ErrBadAnalysis)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("analysis: decode verdict: %w", domain.ErrBadAnalysis)
	}
	if v.Summary == "" || v.Stance == "" || v.Defense == "" {
		return Verdict{}, fmt.Errorf("analysis: verdict missing required keys: %w", domain.ErrBadAnalysis)
	}
	return v, nil
}
