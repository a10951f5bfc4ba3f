package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

// NewDocumentIngestor validates the chunking parameters and wires the pipeline.
func NewDocumentIngestor(
	db StatusStore,
	obj core.ObjectClient,
	extractor core.DocumentExtractor,
	emb core.EmbeddingProvider,
	index core.VectorIndex,
	cfg *IngestConfig,
	log *slog.Logger,
) (*DocumentIngestor, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.PreviewLen)
	if err != nil {
		return nil, err
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 100
	}
	for _, d := range []*time.Duration{&cfg.FetchTimeout, &cfg.EmbedTimeout, &cfg.VectorTimeout} {
		if *d <= 0 {
			*d = time.Minute
		}
	}
	return &DocumentIngestor{
		db:        db,
		obj:       obj,
		extractor: extractor,
		embedder:  emb,
		index:     index,
		chunker:   chunker,
		cfg:       cfg,
		log:       log,
	}, nil
}

// ProcessJob runs every document of the job in order. A failing document is
// marked FAILED and its siblings still run. The returned error is non-nil
// only when the job should be retried: a document failed transiently, or
// processing itself was cut short. In the latter case every document not yet
// COMPLETED is marked FAILED first.
//
// A re-delivered job only processes documents that are still PROCESSING or
// that failed transiently; COMPLETED and permanently FAILED ones are skipped.
// A job that fails validation marks the documents it names FAILED and
// returns a validation error.
func (i *DocumentIngestor) ProcessJob(ctx context.Context, job core.IngestJob) (err error) {
	if err := job.Validate(); err != nil {
		i.failInvalid(ctx, job, err)
		return err
	}

	log := i.log.With("conversation_id", job.ConversationID)
	settled := make(map[string]bool, len(job.Documents))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panic: %v", r)
		}
		if err != nil {
			i.failRemaining(ctx, log, job, settled)
		}
	}()

	var transient error
	for _, doc := range job.Documents {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingestion interrupted: %w", err)
		}

		dlog := log.With("document_id", doc.DocumentID, "file_name", doc.FileName)

		rec, err := i.db.GetDocumentByID(ctx, doc.DocumentID)
		if errors.Is(err, core.ErrNotFound) {
			dlog.Warn("document record is gone, skipping")
			settled[doc.DocumentID] = true
			continue
		}
		if err != nil {
			return fmt.Errorf("load document %s: %w", doc.DocumentID, err)
		}
		if !rec.Retryable() {
			dlog.Info("document already settled, skipping", "status", rec.Status, "failure", rec.Failure)
			settled[doc.DocumentID] = true
			continue
		}

		start := time.Now()
		n, err := i.processDocument(ctx, job.ConversationID, doc)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("ingestion interrupted during %s: %w", doc.DocumentID, err)
			}
			kind := models.FailurePermanent
			if core.IsTransient(err) {
				kind = models.FailureTransient
				if transient == nil {
					transient = err
				}
			}
			dlog.Error("document ingestion failed", "failure", kind, "error", err)
			if serr := i.db.FailDocument(ctx, doc.DocumentID, kind); serr != nil {
				return fmt.Errorf("mark %s failed: %w", doc.DocumentID, serr)
			}
			if kind == models.FailurePermanent {
				// never revisited by a re-delivery of this job
				settled[doc.DocumentID] = true
			}
			continue
		}

		if err := i.db.UpdateDocumentStatus(ctx, doc.DocumentID, models.StatusCompleted); err != nil {
			return fmt.Errorf("mark %s completed: %w", doc.DocumentID, err)
		}
		settled[doc.DocumentID] = true
		dlog.Info("document ingested", "chunks", n, "took", time.Since(start).String())
	}

	if transient != nil {
		return core.Transient("ingest job", transient)
	}
	return nil
}

// processDocument runs the pipeline for one document and returns the number
// of vectors written.
func (i *DocumentIngestor) processDocument(ctx context.Context, conversationID string, doc core.JobDocument) (int, error) {
	// DOWNLOADING
	fetchCtx, cancel := context.WithTimeout(ctx, i.cfg.FetchTimeout)
	data, err := i.obj.GetFile(fetchCtx, doc.ContentRef)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", doc.ContentRef, outboundErr("fetch", err))
	}

	// EXTRACTING
	contentType := ContentTypeFor(doc.ContentType, doc.FileName)
	pages, err := i.extractor.Extract(ctx, data, contentType)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}

	// CHUNKING
	chunks := i.chunker.Split(pages)
	if len(chunks) == 0 {
		return 0, core.Invalidf("no extractable text in %s", doc.FileName)
	}

	// EMBEDDING
	texts := make([]string, len(chunks))
	for k, ch := range chunks {
		texts[k] = ch.Text
	}
	embedCtx, cancel := context.WithTimeout(ctx, i.cfg.EmbedTimeout)
	vectors, err := i.embedder.EmbedTexts(embedCtx, texts)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("embed: %w", outboundErr("embed", err))
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]core.VectorRecord, len(chunks))
	for k, ch := range chunks {
		if len(vectors[k]) != i.cfg.EmbedDim {
			return 0, &core.DimensionMismatchError{Got: len(vectors[k]), Want: i.cfg.EmbedDim}
		}
		records[k] = core.VectorRecord{
			ID:     core.VectorID(doc.DocumentID, ch.Index),
			Values: vectors[k],
			Metadata: core.VectorMetadata{
				DocumentID:     doc.DocumentID,
				ConversationID: conversationID,
				FileName:       doc.FileName,
				Page:           ch.Page,
				ChunkIndex:     ch.Index,
				Text:           ch.Text,
				Preview:        ch.Preview,
				Source:         sourceKind(contentType),
			},
		}
	}

	// UPSERTING
	for start := 0; start < len(records); start += i.cfg.UpsertBatchSize {
		end := min(start+i.cfg.UpsertBatchSize, len(records))

		upCtx, cancel := context.WithTimeout(ctx, i.cfg.VectorTimeout)
		err := i.index.Upsert(upCtx, conversationID, records[start:end])
		cancel()
		if err != nil {
			return 0, fmt.Errorf("upsert batch %d-%d: %w", start, end, outboundErr("upsert", err))
		}
		i.log.Debug("upserted vector batch", "document_id", doc.DocumentID, "from", start, "to", end)
	}

	return len(records), nil
}

// failInvalid marks every document an invalid job still names FAILED, so
// none of them stays PROCESSING once the job is dropped.
func (i *DocumentIngestor) failInvalid(ctx context.Context, job core.IngestJob, cause error) {
	var ids []string
	for _, d := range job.Documents {
		if d.DocumentID != "" {
			ids = append(ids, d.DocumentID)
		}
	}
	if len(ids) == 0 {
		return
	}

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	for _, id := range ids {
		if err := i.db.FailDocument(markCtx, id, models.FailurePermanent); err != nil && !errors.Is(err, core.ErrNotFound) {
			i.log.Error("could not mark document of invalid job failed", "document_id", id, "error", err)
		}
	}
	i.log.Warn("invalid ingestion job, documents marked failed", "count", len(ids), "error", cause)
}

// failRemaining marks every not-yet-completed document of the job FAILED. It
// runs on a context detached from the job's so a cancelled job still gets
// its documents out of PROCESSING.
func (i *DocumentIngestor) failRemaining(ctx context.Context, log *slog.Logger, job core.IngestJob, settled map[string]bool) {
	var ids []string
	for _, id := range job.DocumentIDs() {
		if !settled[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	n, err := i.db.MarkDocumentsFailed(markCtx, ids)
	if err != nil {
		log.Error("could not mark remaining documents failed", "ids", ids, "error", err)
		return
	}
	log.Warn("marked remaining documents failed", "count", n)
}

// outboundErr classifies a failed outbound call. Timeouts are transient;
// NotFound and errors already classified pass through.
func outboundErr(op string, err error) error {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrValidation) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Transient(op, err)
	}
	return err
}

func sourceKind(contentType string) string {
	if contentType == pdfContentType {
		return "pdf"
	}
	return "document"
}
