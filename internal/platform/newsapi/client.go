// Package newsapi is the REST client for the news-search collaborator.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Article is one search hit. Title and description feed the analysis prompt;
// URL is kept as a source reference on the action record.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
	PublishedAt string `json:"publishedAt"`
}

type searchResponse struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Articles []Article `json:"articles"`
}

// Client is an authenticated news-search client.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// New creates a new news client. pageSize bounds how many articles one search
// returns.
func New(baseURL, apiKey string, pageSize int) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Search returns recent English articles whose title mentions the query,
// most relevant first. from bounds article age.
func (c *Client) Search(ctx context.Context, query string, from time.Time) ([]Article, error) {
	params := url.Values{}
	params.Set("searchIn", "title")
	params.Set("q", query)
	params.Set("apiKey", c.apiKey)
	params.Set("sortBy", "relevancy")
	params.Set("language", "en")
	params.Set("from", from.Format("2006-01-02"))
	params.Set("pageSize", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: search %q: %w", query, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("newsapi: read response: %w", err)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("newsapi: decode search response: %w", err)
	}
	if result.Status == "error" {
		return nil, fmt.Errorf("newsapi: search %q: api error: %s", query, result.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("newsapi: search %q: unexpected status %d", query, resp.StatusCode)
	}

	return result.Articles, nil
}
