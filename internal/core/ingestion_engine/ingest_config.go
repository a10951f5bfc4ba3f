package ingestion_engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

// IngestConfig tunes the ingestion pipeline.
//
// ChunkSize:       maximum characters per chunk.
// ChunkOverlap:    characters shared by consecutive chunks of a page.
// PreviewLen:      characters kept in a chunk's preview.
// UpsertBatchSize: vectors written per Vector Index call.
// EmbedDim:        expected embedding width; anything else fails the document.
// *Timeout:        bound for each outbound call of that kind.
type IngestConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	PreviewLen      int
	UpsertBatchSize int
	EmbedDim        int

	FetchTimeout  time.Duration
	EmbedTimeout  time.Duration
	VectorTimeout time.Duration
}

// StatusStore is the slice of the document store the ingestor mutates.
type StatusStore interface {
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error
	FailDocument(ctx context.Context, id string, kind models.FailureKind) error
	MarkDocumentsFailed(ctx context.Context, ids []string) (int64, error)
}

// DocumentIngestor drives fetch, extract, chunk, embed and upsert for every
// document of an ingestion job.
//
// db:        document status persistence.
// obj:       object storage holding the uploaded bytes.
// extractor: bytes to page texts.
// embedder:  embedding provider (Gemini).
// index:     namespaced vector index.
type DocumentIngestor struct {
	db        StatusStore
	obj       core.ObjectClient
	extractor core.DocumentExtractor
	embedder  core.EmbeddingProvider
	index     core.VectorIndex
	chunker   *Chunker
	cfg       *IngestConfig
	log       *slog.Logger
}
