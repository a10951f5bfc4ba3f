package core

import (
	"context"
	"fmt"
	"io"
)

// ObjectClient defines interactions with S3 or any object storage.
// References are object keys inside the configured bucket.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) error
	// GetFile fails with ErrNotFound when the reference is invalid.
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// VectorMetadata is stored alongside every vector record.
type VectorMetadata struct {
	DocumentID     string `json:"documentId"`
	ConversationID string `json:"conversationId"`
	FileName       string `json:"fileName"`
	Page           int    `json:"page"`
	ChunkIndex     int    `json:"chunkIndex"`
	Text           string `json:"text"`
	Preview        string `json:"preview"`
	Source         string `json:"source"`
}

// VectorRecord is one upsertable vector.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata VectorMetadata
}

// VectorMatch is a query hit; higher Score means more similar.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata VectorMetadata
}

// VectorFilter selects records to delete within a namespace.
type VectorFilter struct {
	DocumentID string
}

// VectorIndex is a namespaced nearest-neighbour store. The namespace is the
// conversation id; records never cross namespaces.
type VectorIndex interface {
	// Upsert is idempotent per record ID.
	Upsert(ctx context.Context, namespace string, records []VectorRecord) error
	// Query returns at most topK matches ordered by descending score.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]VectorMatch, error)
	Delete(ctx context.Context, namespace string, filter VectorFilter) error
}

// VectorID formats the deterministic record id for a chunk of a document.
func VectorID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}

// IngestJob is the canonical ingestion job payload: one conversation and an
// ordered batch of its documents.
type IngestJob struct {
	ConversationID string        `json:"conversation_id"`
	Documents      []JobDocument `json:"documents"`
}

// JobDocument pairs a document record with its content reference.
type JobDocument struct {
	DocumentID  string `json:"document_id"`
	ContentRef  string `json:"content_ref"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// Validate checks the job schema before any processing starts.
func (j IngestJob) Validate() error {
	if j.ConversationID == "" {
		return Invalidf("ingest job: missing conversation id")
	}
	if len(j.Documents) == 0 {
		return Invalidf("ingest job: no documents")
	}
	for i, d := range j.Documents {
		if d.DocumentID == "" || d.ContentRef == "" {
			return Invalidf("ingest job: document %d missing id or content reference", i)
		}
	}
	return nil
}

// DocumentIDs lists the ids of the job's documents in order.
func (j IngestJob) DocumentIDs() []string {
	ids := make([]string, len(j.Documents))
	for i, d := range j.Documents {
		ids[i] = d.DocumentID
	}
	return ids
}

// JobQueue is the durable ingestion job transport.
type JobQueue interface {
	Enqueue(ctx context.Context, job IngestJob) error
}
