package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/tools"
)

// BraveSearch is a web search Retriever backed by the Brave Search API.
type BraveSearch struct {
	APIKey     string
	BaseURL    string
	Count      int
	Country    string
	Lang       string
	HTTPClient *http.Client
}

var (
	_ Retriever  = (*BraveSearch)(nil)
	_ tools.Tool = (*BraveSearch)(nil)
)

type BraveOption func(*BraveSearch)

// WithBraveBaseURL sets the base URL for the Brave Search API.
func WithBraveBaseURL(baseURL string) BraveOption {
	return func(b *BraveSearch) {
		b.BaseURL = baseURL
	}
}

// WithBraveCount sets the number of results to return (1-20).
func WithBraveCount(count int) BraveOption {
	return func(b *BraveSearch) {
		b.Count = max(1, min(count, 20))
	}
}

// WithBraveCountry sets the country code for search results (e.g., "US", "CN").
func WithBraveCountry(country string) BraveOption {
	return func(b *BraveSearch) {
		b.Country = country
	}
}

// WithBraveLang sets the language code for search results (e.g., "en", "zh").
func WithBraveLang(lang string) BraveOption {
	return func(b *BraveSearch) {
		b.Lang = lang
	}
}

// WithBraveHTTPClient sets the HTTP client.
func WithBraveHTTPClient(c *http.Client) BraveOption {
	return func(b *BraveSearch) {
		b.HTTPClient = c
	}
}

// NewBraveSearch creates a new BraveSearch tool.
// If apiKey is empty, it tries to read from BRAVE_API_KEY environment variable.
func NewBraveSearch(apiKey string, opts ...BraveOption) (*BraveSearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("BRAVE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("BRAVE_API_KEY not set")
	}

	b := &BraveSearch{
		APIKey:     apiKey,
		BaseURL:    "https://api.search.brave.com/res/v1/web/search",
		Count:      3,
		Country:    "US",
		Lang:       "en",
		HTTPClient: defaultHTTPClient(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Name returns the name of the tool.
func (b *BraveSearch) Name() string {
	return "Brave_Search"
}

// Description returns the description of the tool.
func (b *BraveSearch) Description() string {
	return "A privacy-focused search engine powered by Brave. " +
		"Useful for finding current information and answering questions. " +
		"Input should be a search query."
}

// Search queries Brave and returns one Document per web result.
func (b *BraveSearch) Search(ctx context.Context, query string) ([]Document, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(b.Count))
	if b.Country != "" {
		params.Set("country", b.Country)
	}
	if b.Lang != "" {
		params.Set("search_lang", b.Lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	body, err := do(b.HTTPClient, req, "brave api")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("brave api: invalid JSON response")
	}

	var docs []Document
	gjson.GetBytes(body, "web.results").ForEach(func(_, r gjson.Result) bool {
		content := r.Get("title").String()
		if desc := r.Get("description").String(); desc != "" {
			content += "\n" + desc
		}
		for _, snippet := range r.Get("extra_snippets").Array() {
			content += "\n" + snippet.String()
		}
		docs = append(docs, Document{Source: r.Get("url").String(), Content: strings.TrimSpace(content)})
		return true
	})
	return docs, nil
}

// Call executes the search and formats the results as text.
func (b *BraveSearch) Call(ctx context.Context, input string) (string, error) {
	docs, err := b.Search(ctx, input)
	if err != nil {
		return "", err
	}
	return formatResults(docs), nil
}
