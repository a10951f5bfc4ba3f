package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/contexta-chat/internal/config"
	ingestion "github.com/markdave123-py/contexta-chat/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-chat/internal/queue"
)

// errEmbeddedOnly is returned by NewWorkerApp for the in-process vector
// backend: its vectors live in one process, so ingestion must run inside the
// API process that answers questions.
var errEmbeddedOnly = errors.New("VECTOR_BACKEND=memory runs ingestion inside the API process; do not start a separate worker")

// embeddedWorker reports whether the API process consumes ingestion jobs itself.
func embeddedWorker(cfg *config.Config) bool {
	return strings.EqualFold(cfg.VectorBackend, "memory")
}

// WorkerApp is the ingestion worker process.
type WorkerApp struct {
	Worker  *queue.Worker
	clients *clients
}

func NewWorkerApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*WorkerApp, error) {
	if embeddedWorker(cfg) {
		return nil, errEmbeddedOnly
	}

	c, err := dialClients(ctx, cfg, log, false)
	if err != nil {
		return nil, err
	}

	worker, err := newIngestWorker(cfg, c, log)
	if err != nil {
		c.close()
		return nil, err
	}
	return &WorkerApp{Worker: worker, clients: c}, nil
}

// newIngestWorker builds the ingestion pipeline on c and the queue consumer
// that drives it.
func newIngestWorker(cfg *config.Config, c *clients, log *slog.Logger) (*queue.Worker, error) {
	ingestor, err := ingestion.NewDocumentIngestor(
		c.db,
		c.storage,
		ingestion.NewDocconvExtractor(false, log),
		c.embedder,
		c.index,
		&ingestion.IngestConfig{
			ChunkSize:       cfg.ChunkSize,
			ChunkOverlap:    cfg.ChunkOverlap,
			PreviewLen:      cfg.ChunkPreviewLen,
			UpsertBatchSize: cfg.UpsertBatchSize,
			EmbedDim:        cfg.EmbedDim,
			FetchTimeout:    cfg.FetchTimeout,
			EmbedTimeout:    cfg.EmbedTimeout,
			VectorTimeout:   cfg.VectorTimeout,
		},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("ingestor: %w", err)
	}

	redisOpt, err := cfg.AsynqRedisOpt()
	if err != nil {
		return nil, fmt.Errorf("job queue: %w", err)
	}

	return queue.NewWorker(redisOpt, queue.WorkerConfig{
		Queue:         cfg.IngestQueue,
		Concurrency:   cfg.WorkerConcurrency,
		BackoffBase:   cfg.JobBackoffBase,
		BackoffJitter: cfg.JobBackoffJitter,
	}, ingestor, log), nil
}

// Close stops the worker and releases its clients.
func (a *WorkerApp) Close() {
	a.Worker.Shutdown()
	a.clients.close()
}
