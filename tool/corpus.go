package tool

import (
	"context"
	"slices"
	"strings"
	"unicode"
)

// Corpus is an in-memory knowledge base over a fixed set of documents. The
// documents are split into chunks and every search returns the chunks that
// best match the query terms.
type Corpus struct {
	chunks    []Document
	lowered   []string
	maxDocs   int
	chunkSize int
}

var _ Retriever = (*Corpus)(nil)

// CorpusOption configures a Corpus.
type CorpusOption func(*Corpus)

// WithCorpusMaxDocs caps the chunks returned per search. Default 4.
func WithCorpusMaxDocs(n int) CorpusOption {
	return func(c *Corpus) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// WithCorpusChunkSize sets the target chunk length in bytes. Default 1500.
func WithCorpusChunkSize(n int) CorpusOption {
	return func(c *Corpus) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// NewCorpus chunks docs. Chunks keep the Source and Page of their document.
func NewCorpus(docs []Document, opts ...CorpusOption) *Corpus {
	c := &Corpus{maxDocs: 4, chunkSize: 1500}
	for _, opt := range opts {
		opt(c)
	}
	for _, d := range docs {
		for _, chunk := range SplitText(d.Content, c.chunkSize) {
			c.chunks = append(c.chunks, Document{Source: d.Source, Page: d.Page, Content: chunk})
			c.lowered = append(c.lowered, strings.ToLower(chunk))
		}
	}
	return c
}

// Len is the number of chunks.
func (c *Corpus) Len() int { return len(c.chunks) }

// Search ranks chunks by how often the query terms occur in them, relative to
// the chunk length. Chunks without any term are never returned.
func (c *Corpus) Search(_ context.Context, query string) ([]Document, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	type scored struct {
		index int
		score float64
	}
	var hits []scored
	for i, text := range c.lowered {
		var n int
		for _, t := range terms {
			n += strings.Count(text, t)
		}
		if n == 0 {
			continue
		}
		hits = append(hits, scored{index: i, score: float64(n) * 1000 / float64(len(text))})
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	if len(hits) > c.maxDocs {
		hits = hits[:c.maxDocs]
	}
	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = c.chunks[h.index]
	}
	return docs, nil
}

// queryTerms lowercases query and drops words too short to be meaningful.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 && !slices.Contains(terms, f) {
			terms = append(terms, f)
		}
	}
	return terms
}

var separators = []string{"\n\n", "\n", ". ", " "}

// SplitText splits text into chunks of at most size bytes, preferring paragraph,
// then line, then sentence, then word boundaries. Pieces are merged back
// together greedily up to size.
func SplitText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return mergeSplits(splitRecursive(text, size, separators), size)
}

func splitRecursive(text string, size int, seps []string) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(seps) == 0 {
		var out []string
		for len(text) > size {
			cut := size
			// Do not cut inside a UTF-8 sequence.
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
			out = append(out, text[:cut])
			text = text[cut:]
		}
		return append(out, text)
	}

	var out []string
	for _, part := range strings.Split(text, seps[0]) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) <= size {
			out = append(out, part)
			continue
		}
		out = append(out, splitRecursive(part, size, seps[1:])...)
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func mergeSplits(splits []string, size int) []string {
	var merged []string
	var current string
	for _, s := range splits {
		switch {
		case current == "":
			current = s
		case len(current)+1+len(s) <= size:
			current += " " + s
		default:
			merged = append(merged, current)
			current = s
		}
	}
	if current != "" {
		merged = append(merged, current)
	}
	return merged
}
