package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/platform/newsapi"
)

type fakeNews struct {
	articles []newsapi.Article
	err      error
}

func (f *fakeNews) Search(_ context.Context, _ string, _ time.Time) ([]newsapi.Article, error) {
	return f.articles, f.err
}

type fakeGen struct {
	response string
	err      error
}

func (f *fakeGen) Generate(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

type fakeStore struct {
	domain.ActionStore

	analysis       *domain.Analysis
	spread         domain.PredSpread
	analysisStatus domain.ActionStatus

	cancelStatus  domain.ActionStatus
	cancelSources []string
	canceled      bool
}

func (f *fakeStore) SetAnalysis(_ context.Context, _ string, a domain.Analysis, spread domain.PredSpread, status domain.ActionStatus) error {
	f.analysis = &a
	f.spread = spread
	f.analysisStatus = status
	return nil
}

func (f *fakeStore) Cancel(_ context.Context, _ string, status domain.ActionStatus, sources []string) error {
	f.canceled = true
	f.cancelStatus = status
	f.cancelSources = sources
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAction() domain.Action {
	return domain.Action{
		ID:         "a1",
		Symbol:     "AAPL",
		Name:       "Apple Inc",
		Status:     domain.StatusCreated,
		PredSpread: domain.PredSpread{CurrPrice: 100},
	}
}

func articles(urls ...string) []newsapi.Article {
	out := make([]newsapi.Article, len(urls))
	for i, u := range urls {
		out[i] = newsapi.Article{Title: "headline", URL: u}
	}
	return out
}

func TestEvaluateNoArticlesCancels(t *testing.T) {
	store := &fakeStore{}
	gate := NewGate(&fakeNews{}, &fakeGen{}, store, 0, discardLogger())

	status, err := gate.Evaluate(context.Background(), testAction())
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceledNoNews, status)
	require.True(t, store.canceled)
	require.Equal(t, domain.StatusCanceledNoNews, store.cancelStatus)
}

func TestEvaluateBullishVerdict(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGen{response: "Sure, here is my take:\n" +
		`{"summary":"strong quarter ahead","stance":"Bullish","defense":"supply chain checks"}` +
		"\nHope that helps."}
	gate := NewGate(&fakeNews{articles: articles("https://a", "https://b")}, gen, store, 0, discardLogger())

	status, err := gate.Evaluate(context.Background(), testAction())
	require.NoError(t, err)
	require.Equal(t, domain.StatusOrderCreated, status)
	require.NotNil(t, store.analysis)
	require.Equal(t, domain.StanceBullish, store.analysis.Stance)
	require.Equal(t, []string{"https://a", "https://b"}, store.analysis.Sources)
	require.Equal(t, 100.0, store.spread.CurrPrice)
	require.Equal(t, 110.0, store.spread.Upper)
	require.Equal(t, 90.0, store.spread.Lower)
}

func TestEvaluateUnparseableVerdictCancels(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json object", "the outlook is bullish"},
		{"invalid json", "{stance: bullish"},
		{"missing keys", `{"stance":"bullish"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			gate := NewGate(&fakeNews{articles: articles("https://a")}, &fakeGen{response: tt.response}, store, 0, discardLogger())

			status, err := gate.Evaluate(context.Background(), testAction())
			require.NoError(t, err)
			require.Equal(t, domain.StatusCanceledAnalysis, status)
			require.Equal(t, []string{"https://a"}, store.cancelSources)
		})
	}
}

func TestEvaluateCollaboratorErrorsPropagate(t *testing.T) {
	store := &fakeStore{}
	gate := NewGate(&fakeNews{err: errors.New("boom")}, &fakeGen{}, store, 0, discardLogger())
	_, err := gate.Evaluate(context.Background(), testAction())
	require.Error(t, err)
	require.False(t, store.canceled)

	store = &fakeStore{}
	gate = NewGate(&fakeNews{articles: articles("https://a")}, &fakeGen{err: errors.New("quota")}, store, 0, discardLogger())
	_, err = gate.Evaluate(context.Background(), testAction())
	require.Error(t, err)
	require.False(t, store.canceled)
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict(`prefix {"summary":"s","stance":"neutral","defense":"d"} suffix`)
	require.NoError(t, err)
	require.Equal(t, "neutral", v.Stance)

	_, err = ParseVerdict("no braces here")
	require.ErrorIs(t, err, domain.ErrBadAnalysis)
}
