package tool

import (
	"context"
	"fmt"
	"strings"
)

// Document is one retrieved passage.
type Document struct {
	// Source is the URL or identifier the content came from.
	Source string `json:"source"`
	// Page is set for knowledge-base documents (the page or article title).
	Page    string `json:"page,omitempty"`
	Content string `json:"content"`
}

// Retriever searches a document source. Implementations must be safe for
// concurrent use.
type Retriever interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string) ([]Document, error)

// Search implements Retriever.
func (f RetrieverFunc) Search(ctx context.Context, query string) ([]Document, error) {
	return f(ctx, query)
}

// Static always returns the same documents.
type Static []Document

// Search implements Retriever.
func (s Static) Search(context.Context, string) ([]Document, error) {
	return append([]Document(nil), s...), nil
}

const documentSeparator = "\n\n---\n\n"

// FormatDocuments renders documents as tagged blocks suitable for a prompt. Web
// results use an href attribute, knowledge-base results source and page.
func FormatDocuments(docs []Document) string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Page != "" {
			blocks = append(blocks, fmt.Sprintf("<Document source=%q page=%q/>\n%s\n</Document>", d.Source, d.Page, d.Content))
			continue
		}
		blocks = append(blocks, fmt.Sprintf("<Document href=%q/>\n%s\n</Document>", d.Source, d.Content))
	}
	return strings.Join(blocks, documentSeparator)
}

// formatResults is the plain text form used by the tools.Tool Call methods.
func formatResults(docs []Document) string {
	if len(docs) == 0 {
		return "No results found"
	}
	var sb strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&sb, "%d. URL: %s\n%s\n\n", i+1, d.Source, d.Content)
	}
	return sb.String()
}

// Multi queries every retriever in order and concatenates the results. The first
// error aborts the search.
func Multi(retrievers ...Retriever) Retriever {
	return RetrieverFunc(func(ctx context.Context, query string) ([]Document, error) {
		var out []Document
		for _, r := range retrievers {
			docs, err := r.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			out = append(out, docs...)
		}
		return out, nil
	})
}
