package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-chat/internal/config"
	"github.com/markdave123-py/contexta-chat/internal/core"
	db "github.com/markdave123-py/contexta-chat/internal/core/database"
	"github.com/markdave123-py/contexta-chat/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-chat/internal/core/object-client"
	vectorindex "github.com/markdave123-py/contexta-chat/internal/core/vector-index"
)

// clients holds the outbound capabilities shared by the API and the worker.
type clients struct {
	db       *db.DatabaseClient
	storage  *objectclient.S3Client
	index    core.VectorIndex
	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
}

// dialClients connects every backing service concurrently. The completion
// model is only dialled when withLLM is set.
func dialClients(ctx context.Context, cfg *config.Config, log *slog.Logger, withLLM bool) (*clients, error) {
	c := &clients{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dbc, err := db.NewDatabaseClient(gctx, cfg, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		c.db = dbc
		log.Info("database initialized and ready")
		return nil
	})
	g.Go(func() error {
		s3c, err := objectclient.NewS3Client(gctx, cfg, log)
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		c.storage = s3c
		log.Info("object client initialized", "bucket", cfg.BucketName)
		return nil
	})
	g.Go(func() error {
		emb, err := llm.NewGeminiEmbedder(gctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.AIRatePerSec, log)
		if err != nil {
			return fmt.Errorf("embedder: %w", err)
		}
		c.embedder = emb
		return nil
	})
	if withLLM {
		g.Go(func() error {
			gen, err := llm.NewGeminiLLM(gctx, cfg.AIAPIKey, cfg.GenModel, cfg.AIRatePerSec, log)
			if err != nil {
				return fmt.Errorf("llm: %w", err)
			}
			c.llm = gen
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.close()
		return nil, err
	}

	switch strings.ToLower(cfg.VectorBackend) {
	case "memory":
		log.Warn("using in-process vector index, vectors are lost on restart and ingestion runs in this process")
		c.index = vectorindex.NewMemoryIndex()
	default:
		c.index = vectorindex.NewPgVectorIndex(c.db.DB())
	}
	return c, nil
}

func (c *clients) close() {
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
	if c.llm != nil {
		_ = c.llm.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}
