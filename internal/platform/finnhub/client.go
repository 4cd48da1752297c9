// Package finnhub is the REST client for the Finnhub calendar feed, which
// provides upcoming earnings dates, upcoming IPOs, and company profiles.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is an authenticated Finnhub API client. The token rides as a query
// parameter on every request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new Finnhub client.
//
// baseURL is the API root, e.g. "https://finnhub.io".
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// EarningsCalendar returns the earnings-calendar records between the two
// dates (inclusive, "2006-01-02" format).
func (c *Client) EarningsCalendar(ctx context.Context, from, to string) ([]APIEarnings, error) {
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)

	body, err := c.doGet(ctx, "/api/v1/calendar/earnings", params)
	if err != nil {
		return nil, fmt.Errorf("finnhub: earnings calendar: %w", err)
	}

	var resp earningsCalendarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("finnhub: decode earnings calendar: %w", err)
	}
	return resp.EarningsCalendar, nil
}

// IPOCalendar returns the IPO-calendar records between the two dates
// (inclusive, "2006-01-02" format).
func (c *Client) IPOCalendar(ctx context.Context, from, to string) ([]APIIPO, error) {
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)

	body, err := c.doGet(ctx, "/api/v1/calendar/ipo", params)
	if err != nil {
		return nil, fmt.Errorf("finnhub: ipo calendar: %w", err)
	}

	var resp ipoCalendarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("finnhub: decode ipo calendar: %w", err)
	}
	return resp.IPOCalendar, nil
}

// CompanyName returns the display name for a symbol from the company profile
// endpoint.
func (c *Client) CompanyName(ctx context.Context, symbol string) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doGet(ctx, "/api/v1/stock/profile2", params)
	if err != nil {
		return "", fmt.Errorf("finnhub: company profile %s: %w", symbol, err)
	}

	var profile APIProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", fmt.Errorf("finnhub: decode company profile: %w", err)
	}
	if profile.Name == "" {
		return "", fmt.Errorf("finnhub: company profile %s: empty name", symbol)
	}
	return profile.Name, nil
}

// doGet sends a GET request with the API token attached.
func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	// Finnhub reports quota and auth errors as 200s with a message body.
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return nil, fmt.Errorf("api error: %s", apiErr.Message)
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
