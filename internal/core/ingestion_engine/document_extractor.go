package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

const pdfContentType = "application/pdf"

// DocconvExtractor implements core.DocumentExtractor. PDFs are read page by
// page with ledongthuc/pdf; everything else, and PDFs that parser rejects,
// goes through sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
	log            *slog.Logger
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool, log *slog.Logger) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability, log: log}
}

func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) ([]core.PageText, error) {
	if len(data) == 0 {
		return nil, core.Invalidf("empty document")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if isPDF(contentType, data) {
		pages, err := extractPDFPages(data)
		if err == nil && hasText(pages) {
			return pages, nil
		}
		e.log.Debug("pdf reader produced no text, falling back to docconv", "error", err)
		contentType = pdfContentType
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv: extraction failed for content type %q: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return splitFormFeeds(res.Body), nil
}

// ContentTypeFor picks the extraction hint for a file: the declared type when
// present, otherwise one derived from the file extension.
func ContentTypeFor(declared, fileName string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return docconv.MimeTypeByExtension(fileName)
}

func isPDF(contentType string, data []byte) bool {
	return strings.HasPrefix(contentType, pdfContentType) || bytes.HasPrefix(data, []byte("%PDF-"))
}

func extractPDFPages(data []byte) ([]core.PageText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []core.PageText
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		t, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, core.PageText{Page: i, Text: t})
	}
	return pages, nil
}

// splitFormFeeds treats form feeds as page breaks; text without them is one page.
func splitFormFeeds(body string) []core.PageText {
	parts := strings.Split(body, "\f")
	pages := make([]core.PageText, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, core.PageText{Page: i + 1, Text: p})
	}
	return pages
}

func hasText(pages []core.PageText) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
