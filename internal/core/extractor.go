package core

import (
	"context"
)

// PageText is the extracted text of one page; Page is 1-based.
type PageText struct {
	Page int
	Text string
}

// DocumentExtractor defines the interface for extracting text from various document types.
type DocumentExtractor interface {
	// Extract turns raw bytes into ordered page texts. The contentType hint
	// helps the extractor choose the right parsing strategy.
	Extract(ctx context.Context, data []byte, contentType string) ([]PageText, error)
}
