// Package alpaca is the REST client for the Alpaca brokerage: quote
// snapshots from the market-data host, order placement and order status from
// the trading host.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nouslabs/nous/internal/domain"
)

// Client is an authenticated Alpaca API client. The market-data host and the
// trading host are separate services sharing one credential pair.
type Client struct {
	tradingURL string
	dataURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// New creates a new Alpaca client.
func New(tradingURL, dataURL, apiKey, apiSecret string) *Client {
	return &Client{
		tradingURL: tradingURL,
		dataURL:    dataURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LatestPrice returns the volume-weighted average price from the symbol's
// daily-bar snapshot. It returns domain.ErrPriceUnavailable when the market
// is closed or the symbol has no bar, so callers can distinguish "no price"
// from a transport failure.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	path := fmt.Sprintf("/v2/stocks/%s/snapshot", url.PathEscape(symbol))

	body, err := c.do(ctx, http.MethodGet, c.dataURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("alpaca: snapshot %s: %w", symbol, err)
	}

	var snap APISnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return 0, fmt.Errorf("alpaca: decode snapshot %s: %w", symbol, err)
	}
	if snap.DailyBar == nil || snap.DailyBar.VW <= 0 {
		return 0, fmt.Errorf("alpaca: snapshot %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return snap.DailyBar.VW, nil
}

// PlaceBracketOrder submits a bracket order and returns the brokerage-side
// order id.
func (c *Client) PlaceBracketOrder(ctx context.Context, order BracketOrder) (string, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("alpaca: marshal order: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.tradingURL+"/v2/orders", payload)
	if err != nil {
		return "", fmt.Errorf("alpaca: place order %s: %w", order.Symbol, err)
	}

	var placed APIOrder
	if err := json.Unmarshal(body, &placed); err != nil {
		return "", fmt.Errorf("alpaca: decode placed order: %w", err)
	}
	if placed.ID == "" {
		return "", fmt.Errorf("alpaca: place order %s: response missing id", order.Symbol)
	}
	return placed.ID, nil
}

// GetOrder fetches a brokerage order by id. With nested true the response
// includes the bracket exit legs.
func (c *Client) GetOrder(ctx context.Context, id string, nested bool) (APIOrder, error) {
	u := fmt.Sprintf("%s/v2/orders/%s", c.tradingURL, url.PathEscape(id))
	if nested {
		u += "?nested=true"
	}

	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return APIOrder{}, fmt.Errorf("alpaca: get order %s: %w", id, err)
	}

	var order APIOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return APIOrder{}, fmt.Errorf("alpaca: decode order %s: %w", id, err)
	}
	return order, nil
}

// do sends one authenticated request and returns the response body.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return body, nil
}
