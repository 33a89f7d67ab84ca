package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/tools"
)

// Wikipedia is a knowledge-base Retriever over the MediaWiki API. Each Document
// holds the introduction of one article as Markdown.
type Wikipedia struct {
	// BaseURL is the api.php endpoint.
	BaseURL string
	// ArticleURL prefixes article titles to build Document sources.
	ArticleURL string
	MaxDocs    int
	UserAgent  string
	HTTPClient *http.Client
}

var (
	_ Retriever  = (*Wikipedia)(nil)
	_ tools.Tool = (*Wikipedia)(nil)
)

// WikipediaOption configures a Wikipedia retriever.
type WikipediaOption func(*Wikipedia)

// WithWikipediaLang selects the language edition, e.g. "en" or "zh".
func WithWikipediaLang(lang string) WikipediaOption {
	return func(w *Wikipedia) {
		w.BaseURL = "https://" + lang + ".wikipedia.org/w/api.php"
		w.ArticleURL = "https://" + lang + ".wikipedia.org/wiki/"
	}
}

// WithWikipediaBaseURL overrides the API endpoint.
func WithWikipediaBaseURL(baseURL string) WikipediaOption {
	return func(w *Wikipedia) {
		w.BaseURL = baseURL
	}
}

// WithWikipediaMaxDocs sets how many articles a search loads.
func WithWikipediaMaxDocs(n int) WikipediaOption {
	return func(w *Wikipedia) {
		w.MaxDocs = max(1, n)
	}
}

// WithWikipediaHTTPClient sets the HTTP client.
func WithWikipediaHTTPClient(c *http.Client) WikipediaOption {
	return func(w *Wikipedia) {
		w.HTTPClient = c
	}
}

// NewWikipedia returns an English Wikipedia retriever loading two articles per search.
func NewWikipedia(opts ...WikipediaOption) *Wikipedia {
	w := &Wikipedia{
		BaseURL:    "https://en.wikipedia.org/w/api.php",
		ArticleURL: "https://en.wikipedia.org/wiki/",
		MaxDocs:    2,
		UserAgent:  "researchgraph/1.0 (https://github.com/smallnest/researchgraph)",
		HTTPClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the name of the tool.
func (w *Wikipedia) Name() string {
	return "Wikipedia"
}

// Description returns the description of the tool.
func (w *Wikipedia) Description() string {
	return "Looks up encyclopedia articles. Useful for background knowledge about people, places, " +
		"organizations and concepts. Input should be a search query."
}

type wikiHit struct {
	id      int64
	title   string
	snippet string
}

// Search finds matching articles and loads their introductions.
func (w *Wikipedia) Search(ctx context.Context, query string) ([]Document, error) {
	hits, err := w.search(ctx, query)
	if err != nil || len(hits) == 0 {
		return nil, err
	}

	extracts, err := w.extracts(ctx, hits)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(hits))
	for _, h := range hits {
		content := extracts[h.id]
		if content == "" {
			content = snippetText(h.snippet)
		}
		docs = append(docs, Document{
			Source:  w.ArticleURL + url.PathEscape(strings.ReplaceAll(h.title, " ", "_")),
			Page:    h.title,
			Content: content,
		})
	}
	return docs, nil
}

func (w *Wikipedia) get(ctx context.Context, params url.Values) (gjson.Result, error) {
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", w.UserAgent)

	body, err := do(w.HTTPClient, req, "wikipedia api")
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("wikipedia api: invalid JSON response")
	}
	return gjson.ParseBytes(body), nil
}

func (w *Wikipedia) search(ctx context.Context, query string) ([]wikiHit, error) {
	res, err := w.get(ctx, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(w.MaxDocs)},
	})
	if err != nil {
		return nil, err
	}

	var hits []wikiHit
	for _, r := range res.Get("query.search").Array() {
		hits = append(hits, wikiHit{
			id:      r.Get("pageid").Int(),
			title:   r.Get("title").String(),
			snippet: r.Get("snippet").String(),
		})
	}
	return hits, nil
}

func (w *Wikipedia) extracts(ctx context.Context, hits []wikiHit) (map[int64]string, error) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, strconv.FormatInt(h.id, 10))
	}
	res, err := w.get(ctx, url.Values{
		"action":  {"query"},
		"prop":    {"extracts"},
		"exintro": {"1"},
		"pageids": {strings.Join(ids, "|")},
	})
	if err != nil {
		return nil, err
	}

	out := make(map[int64]string, len(hits))
	res.Get("query.pages").ForEach(func(_, page gjson.Result) bool {
		html := page.Get("extract").String()
		if html == "" {
			return true
		}
		md, err := htmltomarkdown.ConvertString(html)
		if err != nil {
			md = snippetText(html)
		}
		out[page.Get("pageid").Int()] = strings.TrimSpace(md)
		return true
	})
	return out, nil
}

// snippetText strips the highlight markup MediaWiki puts in search snippets.
func snippetText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}

// Call executes the search and formats the results as text.
func (w *Wikipedia) Call(ctx context.Context, input string) (string, error) {
	docs, err := w.Search(ctx, input)
	if err != nil {
		return "", err
	}
	return formatResults(docs), nil
}
