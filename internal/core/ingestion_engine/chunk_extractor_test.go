package ingestion_engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// reconstruct rebuilds each page's text by dropping the overlap prefix of
// every chunk after the first on that page.
func reconstruct(chunks []Chunk, overlap int) map[int]string {
	out := map[int]string{}
	seen := map[int]bool{}
	for _, c := range chunks {
		r := []rune(c.Text)
		if seen[c.Page] {
			r = r[overlap:]
		}
		out[c.Page] += string(r)
		seen[c.Page] = true
	}
	return out
}

func TestChunker_ReconstructsPagesAndOverlapsExactly(t *testing.T) {
	pages := []core.PageText{
		{Page: 1, Text: strings.Repeat("abcdefghij", 25)},
		{Page: 2, Text: "short page"},
		{Page: 3, Text: strings.Repeat("héllo wörld ", 40)},
	}

	cases := []struct{ size, overlap int }{
		{50, 10},
		{64, 0},
		{7, 6},
		{1000, 200},
	}
	for _, tc := range cases {
		c, err := NewChunker(tc.size, tc.overlap, 20)
		require.NoError(t, err)

		chunks := c.Split(pages)
		require.NotEmpty(t, chunks)

		got := reconstruct(chunks, tc.overlap)
		for _, p := range pages {
			assert.Equal(t, p.Text, got[p.Page], "size=%d overlap=%d page=%d", tc.size, tc.overlap, p.Page)
		}

		for k, ch := range chunks {
			r := []rune(ch.Text)
			assert.LessOrEqual(t, len(r), tc.size)
			assert.Equal(t, k, ch.Index)

			if k+1 < len(chunks) && chunks[k+1].Page == ch.Page {
				next := []rune(chunks[k+1].Text)
				assert.Equal(t, string(r[len(r)-tc.overlap:]), string(next[:tc.overlap]))
			}
		}
	}
}

func TestChunker_PreviewIsPrefix(t *testing.T) {
	c, err := NewChunker(100, 10, 15)
	require.NoError(t, err)

	chunks := c.Split([]core.PageText{{Page: 4, Text: strings.Repeat("x", 30) + "tail"}})
	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].Page)
	assert.Equal(t, strings.Repeat("x", 15), chunks[0].Preview)

	short := c.Split([]core.PageText{{Page: 1, Text: "tiny"}})
	require.Len(t, short, 1)
	assert.Equal(t, "tiny", short[0].Preview)
}

func TestChunker_SkipsBlankPagesAndKeepsIndexGlobal(t *testing.T) {
	c, err := NewChunker(5, 1, 5)
	require.NoError(t, err)

	chunks := c.Split([]core.PageText{
		{Page: 1, Text: "abcdefgh"},
		{Page: 2, Text: "  \n\t "},
		{Page: 3, Text: "xyz"},
	})
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 1, 3}, []int{chunks[0].Page, chunks[1].Page, chunks[2].Page})
	assert.Equal(t, []int{0, 1, 2}, []int{chunks[0].Index, chunks[1].Index, chunks[2].Index})
	assert.Equal(t, "abcde", chunks[0].Text)
	assert.Equal(t, "efgh", chunks[1].Text)
}

func TestChunker_ReconstructsAllButWhitespacePages(t *testing.T) {
	c, err := NewChunker(6, 2, 5)
	require.NoError(t, err)

	pages := []core.PageText{
		{Page: 1, Text: "first page text"},
		{Page: 2, Text: "\n\n   \n"},
		{Page: 3, Text: "  padded third page  "},
		{Page: 4, Text: ""},
	}
	got := reconstruct(c.Split(pages), 2)

	assert.Equal(t, "first page text", got[1])
	assert.Equal(t, "  padded third page  ", got[3], "surrounding whitespace of a page with text is kept")
	assert.NotContains(t, got, 2)
	assert.NotContains(t, got, 4)
}

func TestChunker_Deterministic(t *testing.T) {
	c, err := NewChunker(40, 8, 10)
	require.NoError(t, err)
	pages := []core.PageText{{Page: 1, Text: strings.Repeat("lorem ipsum ", 30)}}
	assert.Equal(t, c.Split(pages), c.Split(pages))
}

func TestNewChunker_RejectsBadParameters(t *testing.T) {
	_, err := NewChunker(0, 0, 10)
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = NewChunker(10, 10, 10)
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = NewChunker(10, -1, 10)
	assert.True(t, errors.Is(err, core.ErrValidation))
}
