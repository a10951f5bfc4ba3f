package ingestion_engine

import (
	"strings"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// Chunk is one window of a page's text.
//
// Page:    1-based source page.
// Index:   zero-based position, unique within the document.
// Text:    the window itself.
// Preview: the first PreviewLen characters of Text.
type Chunk struct {
	Page    int
	Index   int
	Text    string
	Preview string
}

// Chunker splits page texts into fixed-size, overlapping character windows.
// Sizes count runes, not bytes.
type Chunker struct {
	size       int
	overlap    int
	previewLen int
}

func NewChunker(size, overlap, previewLen int) (*Chunker, error) {
	if size <= 0 {
		return nil, core.Invalidf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, core.Invalidf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	if previewLen < 0 {
		previewLen = 0
	}
	return &Chunker{size: size, overlap: overlap, previewLen: previewLen}, nil
}

// Split chunks every page in order. Within a page each chunk starts overlap
// runes before the previous one ended, so dropping the first overlap runes of
// every chunk but the first and concatenating gives back the page text.
//
// Pages holding only whitespace are the one exception: they produce no
// chunks, so they cannot be reconstructed from the output. Chunk indexes stay
// contiguous across the skipped page.
func (c *Chunker) Split(pages []core.PageText) []Chunk {
	var out []Chunk
	idx := 0

	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		runes := []rune(p.Text)

		for start := 0; ; {
			end := min(start+c.size, len(runes))
			text := string(runes[start:end])
			out = append(out, Chunk{
				Page:    p.Page,
				Index:   idx,
				Text:    text,
				Preview: preview(runes[start:end], c.previewLen),
			})
			idx++

			if end == len(runes) {
				break
			}
			start = end - c.overlap
		}
	}
	return out
}

func preview(r []rune, n int) string {
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
