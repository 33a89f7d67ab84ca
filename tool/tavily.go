package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/tools"
)

// TavilySearch is a web search Retriever backed by the Tavily API.
type TavilySearch struct {
	APIKey      string
	BaseURL     string
	MaxResults  int
	SearchDepth string
	HTTPClient  *http.Client
}

var (
	_ Retriever  = (*TavilySearch)(nil)
	_ tools.Tool = (*TavilySearch)(nil)
)

type TavilyOption func(*TavilySearch)

// WithTavilyBaseURL sets the search endpoint.
func WithTavilyBaseURL(baseURL string) TavilyOption {
	return func(t *TavilySearch) {
		t.BaseURL = baseURL
	}
}

// WithTavilyMaxResults sets the number of results per query.
func WithTavilyMaxResults(n int) TavilyOption {
	return func(t *TavilySearch) {
		t.MaxResults = max(1, n)
	}
}

// WithTavilySearchDepth selects "basic" or "advanced" search.
func WithTavilySearchDepth(depth string) TavilyOption {
	return func(t *TavilySearch) {
		t.SearchDepth = depth
	}
}

// WithTavilyHTTPClient sets the HTTP client.
func WithTavilyHTTPClient(c *http.Client) TavilyOption {
	return func(t *TavilySearch) {
		t.HTTPClient = c
	}
}

// NewTavilySearch creates a Tavily retriever. An empty apiKey falls back to TAVILY_API_KEY.
func NewTavilySearch(apiKey string, opts ...TavilyOption) (*TavilySearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY not set")
	}
	t := &TavilySearch{
		APIKey:      apiKey,
		BaseURL:     "https://api.tavily.com/search",
		MaxResults:  3,
		SearchDepth: "basic",
		HTTPClient:  defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the name of the tool.
func (t *TavilySearch) Name() string {
	return "Tavily_Search"
}

// Description returns the description of the tool.
func (t *TavilySearch) Description() string {
	return "A search engine optimized for comprehensive, accurate, and trusted results. " +
		"Input should be a search query."
}

// Search posts the query to Tavily and returns one Document per result.
func (t *TavilySearch) Search(ctx context.Context, query string) ([]Document, error) {
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"max_results":  t.MaxResults,
		"search_depth": t.SearchDepth,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	body, err := do(t.HTTPClient, req, "tavily api")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("tavily api: invalid JSON response")
	}

	results := gjson.GetBytes(body, "results").Array()
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, Document{
			Source:  r.Get("url").String(),
			Content: r.Get("content").String(),
		})
	}
	return docs, nil
}

// Call executes the search and formats the results as text.
func (t *TavilySearch) Call(ctx context.Context, input string) (string, error) {
	docs, err := t.Search(ctx, input)
	if err != nil {
		return "", err
	}
	return formatResults(docs), nil
}
