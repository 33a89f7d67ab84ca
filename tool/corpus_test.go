package tool

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{"short", "  one paragraph  ", 100, []string{"one paragraph"}},
		{"empty", " \n ", 10, nil},
		{"paragraphs merge", "aaa\n\nbbb\n\nccc", 7, []string{"aaa bbb", "ccc"}},
		{"falls back to words", "alpha beta gamma delta", 11, []string{"alpha beta", "gamma delta"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"keeps runes whole", "ééé", 3, []string{"é", "é", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.size)
			assert.Equal(t, tt.want, got)
			for _, c := range got {
				assert.LessOrEqual(t, len(c), tt.size)
			}
		})
	}
}

func TestCorpusSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := NewCorpus([]Document{
		{Source: "https://a.example", Content: "Checkpoints are saved after each step.\n\nThe scheduler is unrelated."},
		{Source: "https://b.example", Page: "B", Content: "Interrupts suspend a run. Checkpoints make resume possible."},
	}, WithCorpusChunkSize(45), WithCorpusMaxDocs(2))
	require.Equal(t, 4, c.Len())

	docs, err := c.Search(ctx, "How are checkpoints saved?")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://a.example", docs[0].Source)
	assert.True(t, strings.HasPrefix(docs[0].Content, "Checkpoints are saved"))
	assert.Equal(t, "B", docs[1].Page)

	docs, err = c.Search(ctx, "to of")
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = c.Search(ctx, "kubernetes")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
