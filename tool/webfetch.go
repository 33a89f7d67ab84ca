package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tmc/langchaingo/tools"
)

// ErrNoTextContent is returned when a fetched page has no readable text.
var ErrNoTextContent = errors.New("no text content found")

// WebFetch downloads pages and extracts their visible text.
type WebFetch struct {
	UserAgent  string
	HTTPClient *http.Client
}

var _ tools.Tool = (*WebFetch)(nil)

// NewWebFetch returns a fetcher with the package default timeout.
func NewWebFetch() *WebFetch {
	return &WebFetch{
		UserAgent:  "researchgraph-webfetch/1.0",
		HTTPClient: defaultHTTPClient(),
	}
}

// Name returns the name of the tool.
func (w *WebFetch) Name() string {
	return "Web_Fetch"
}

// Description returns the description of the tool.
func (w *WebFetch) Description() string {
	return "Fetches a web page and returns its text content. Input should be a URL."
}

// Fetch returns the page at rawURL as a Document.
func (w *WebFetch) Fetch(ctx context.Context, rawURL string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", w.UserAgent)

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	body, err := readBody(resp, "web page")
	if err != nil {
		return Document{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript, iframe, svg").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return Document{}, fmt.Errorf("%s: %w", rawURL, ErrNoTextContent)
	}
	return Document{Source: resp.Request.URL.String(), Content: strings.Join(lines, "\n")}, nil
}

// FetchAll fetches every URL and skips the ones that fail.
func (w *WebFetch) FetchAll(ctx context.Context, urls ...string) (Static, []error) {
	var docs Static
	var errs []error
	for _, u := range urls {
		d, err := w.Fetch(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, d)
	}
	return docs, errs
}

// Call fetches the URL given as input.
func (w *WebFetch) Call(ctx context.Context, input string) (string, error) {
	d, err := w.Fetch(ctx, strings.TrimSpace(input))
	if err != nil {
		return "", err
	}
	return d.Content, nil
}
