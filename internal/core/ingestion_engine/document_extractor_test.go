package ingestion_engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/logger"
)

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeFor("application/pdf", "whatever.bin"))
	assert.Equal(t, "application/pdf", ContentTypeFor("", "Report.PDF"))
	assert.Equal(t, "application/pdf", ContentTypeFor("application/octet-stream", "report.pdf"))
}

func TestSplitFormFeeds(t *testing.T) {
	pages := splitFormFeeds("first\fsecond\fthird")
	require.Len(t, pages, 3)
	assert.Equal(t, core.PageText{Page: 2, Text: "second"}, pages[1])

	single := splitFormFeeds("no breaks here")
	require.Len(t, single, 1)
	assert.Equal(t, 1, single[0].Page)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("application/pdf", nil))
	assert.True(t, isPDF("", []byte("%PDF-1.7\n...")))
	assert.False(t, isPDF("text/plain", []byte("hello")))
}

func TestHasText(t *testing.T) {
	assert.False(t, hasText(nil))
	assert.False(t, hasText([]core.PageText{{Page: 1, Text: " \n "}}))
	assert.True(t, hasText([]core.PageText{{Page: 1, Text: ""}, {Page: 2, Text: "x"}}))
}

func TestExtract_RejectsEmptyInput(t *testing.T) {
	e := NewDocconvExtractor(false, logger.Discard())
	_, err := e.Extract(context.Background(), nil, "application/pdf")
	assert.True(t, errors.Is(err, core.ErrValidation))
}
