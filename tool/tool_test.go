package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDocuments(t *testing.T) {
	t.Parallel()

	out := FormatDocuments([]Document{
		{Source: "https://example.com/a", Content: "alpha"},
		{Source: "https://en.wikipedia.org/wiki/Go", Page: "Go", Content: "gopher"},
	})
	want := "<Document href=\"https://example.com/a\"/>\nalpha\n</Document>" +
		"\n\n---\n\n" +
		"<Document source=\"https://en.wikipedia.org/wiki/Go\" page=\"Go\"/>\ngopher\n</Document>"
	assert.Equal(t, want, out)
	assert.Empty(t, FormatDocuments(nil))
}

func TestStaticAndMulti(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a := Static{{Source: "a", Content: "1"}}
	b := Static{{Source: "b", Content: "2"}}
	docs, err := Multi(a, b).Search(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, []Document{{Source: "a", Content: "1"}, {Source: "b", Content: "2"}}, docs)

	// Callers may modify the returned slice.
	docs[0].Content = "changed"
	again, _ := a.Search(ctx, "")
	assert.Equal(t, "1", again[0].Content)

	boom := RetrieverFunc(func(context.Context, string) ([]Document, error) { return nil, errors.New("down") })
	_, err = Multi(a, boom).Search(ctx, "q")
	assert.ErrorContains(t, err, "down")
}

func TestBraveSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "graph agents", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web": {"results": [
			{"title": "Agents", "url": "https://a.example", "description": "About agents", "extra_snippets": ["more"]},
			{"title": "Graphs", "url": "https://g.example"}
		]}}`))
	}))
	defer srv.Close()

	b, err := NewBraveSearch("test-key", WithBraveBaseURL(srv.URL), WithBraveCount(5))
	require.NoError(t, err)

	docs, err := b.Search(context.Background(), "graph agents")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, Document{Source: "https://a.example", Content: "Agents\nAbout agents\nmore"}, docs[0])
	assert.Equal(t, "Graphs", docs[1].Content)

	text, err := b.Call(context.Background(), "graph agents")
	require.NoError(t, err)
	assert.Contains(t, text, "1. URL: https://a.example")
}

func TestBraveSearch_Errors(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "")
	_, err := NewBraveSearch("")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b, err := NewBraveSearch("k", WithBraveBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = b.Search(context.Background(), "q")
	assert.ErrorContains(t, err, "status code 429")
}

func TestWithBraveCountClamps(t *testing.T) {
	t.Parallel()

	b, err := NewBraveSearch("k", WithBraveCount(100))
	require.NoError(t, err)
	assert.Equal(t, 20, b.Count)
	b, err = NewBraveSearch("k", WithBraveCount(0))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count)
}

func TestTavilySearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llm evaluation", body["query"])
		assert.Equal(t, float64(3), body["max_results"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"title": "Eval", "url": "https://eval.example", "content": "How to evaluate", "score": 0.9}
		]}`))
	}))
	defer srv.Close()

	s, err := NewTavilySearch("tvly-test", WithTavilyBaseURL(srv.URL))
	require.NoError(t, err)

	docs, err := s.Search(context.Background(), "llm evaluation")
	require.NoError(t, err)
	assert.Equal(t, []Document{{Source: "https://eval.example", Content: "How to evaluate"}}, docs)
}

func TestTavilySearch_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer empty.Close()

	s, err := NewTavilySearch("k", WithTavilyBaseURL(empty.URL))
	require.NoError(t, err)
	docs, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, docs)

	text, err := s.Call(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "No results found", text)

	invalid := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{invalid json}`))
	}))
	defer invalid.Close()

	s, err = NewTavilySearch("k", WithTavilyBaseURL(invalid.URL))
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "q")
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestWikipediaSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/w/api.php" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("list") == "search":
			assert.Equal(t, "Go language", q.Get("srsearch"))
			assert.Equal(t, "2", q.Get("srlimit"))
			_, _ = w.Write([]byte(`{"query": {"search": [
				{"pageid": 1, "title": "Go (programming language)", "snippet": "<span class=\"searchmatch\">Go</span> is a language"},
				{"pageid": 2, "title": "Gopher", "snippet": "A <span class=\"searchmatch\">rodent</span>"}
			]}}`))
		case q.Get("prop") == "extracts":
			assert.Equal(t, "1|2", q.Get("pageids"))
			_, _ = w.Write([]byte(`{"query": {"pages": {
				"1": {"pageid": 1, "title": "Go (programming language)", "extract": "<p><b>Go</b> is a statically typed language.</p>"},
				"2": {"pageid": 2, "title": "Gopher"}
			}}}`))
		default:
			http.Error(w, "Bad request", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	wiki := NewWikipedia(WithWikipediaBaseURL(server.URL + "/w/api.php"))
	docs, err := wiki.Search(context.Background(), "Go language")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Go (programming language)", docs[0].Page)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Go_%28programming_language%29", docs[0].Source)
	assert.Equal(t, "**Go** is a statically typed language.", docs[0].Content)

	// No extract: fall back to the cleaned snippet.
	assert.Equal(t, "A rodent", docs[1].Content)
}

func TestWikipediaSearch_NoHits(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"query": {"search": []}}`))
	}))
	defer server.Close()

	docs, err := NewWikipedia(WithWikipediaBaseURL(server.URL)).Search(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestWikipediaSearchInvalidResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{invalid json}`))
	}))
	defer server.Close()

	_, err := NewWikipedia(WithWikipediaBaseURL(server.URL)).Search(context.Background(), "test")
	assert.Error(t, err)
}

func TestWebFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
	<title>Test Page</title>
	<script>console.log('test');</script>
	<style>body { color: blue; }</style>
</head>
<body>
	<h1>Test Content</h1>
	<p>This is a test paragraph.</p>
	<script>alert('test');</script>
</body>
</html>`))
	}))
	defer server.Close()

	fetcher := NewWebFetch()
	doc, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Test Content")
	assert.Contains(t, doc.Content, "This is a test paragraph")
	assert.NotContains(t, doc.Content, "console.log")
	assert.NotContains(t, doc.Content, "alert")
	assert.Equal(t, server.URL, strings.TrimSuffix(doc.Source, "/"))

	errorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer errorServer.Close()

	_, err = fetcher.Fetch(context.Background(), errorServer.URL)
	assert.ErrorContains(t, err, "status code 404")

	emptyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body></body></html>"))
	}))
	defer emptyServer.Close()

	_, err = fetcher.Fetch(context.Background(), emptyServer.URL)
	assert.ErrorIs(t, err, ErrNoTextContent)

	docs, errs := fetcher.FetchAll(context.Background(), server.URL, emptyServer.URL)
	assert.Len(t, docs, 1)
	assert.Len(t, errs, 1)
}

func TestWebFetchInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewWebFetch().Fetch(context.Background(), "invalid-url")
	require.Error(t, err)
	assert.True(t,
		strings.Contains(err.Error(), "failed to create request") ||
			strings.Contains(err.Error(), "failed to fetch URL"),
		"got: %v", err)
}
