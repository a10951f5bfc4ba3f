package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/contexta-chat/internal/config"
	"github.com/markdave123-py/contexta-chat/internal/queue"
	"github.com/markdave123-py/contexta-chat/internal/services"
)

// App is the HTTP API process. With the in-process vector index it also
// consumes ingestion jobs, since no other process can reach that index.
type App struct {
	Server *Server
	// Worker is nil unless ingestion runs in this process.
	Worker *queue.Worker

	clients *clients
	redis   *redis.Client
	queue   *queue.Enqueuer
	qa      *services.QAService
	log     *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	c, err := dialClients(ctx, cfg, log, true)
	if err != nil {
		return nil, err
	}

	rdb, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		c.close()
		return nil, err
	}

	redisOpt, err := cfg.AsynqRedisOpt()
	if err != nil {
		_ = rdb.Close()
		c.close()
		return nil, fmt.Errorf("job queue: %w", err)
	}
	enq := queue.NewEnqueuer(redisOpt, queue.TaskOptions{
		Queue:       cfg.IngestQueue,
		MaxAttempts: cfg.JobMaxAttempts,
		Timeout:     cfg.JobTimeout,
	}, log)

	users := services.NewUserService(c.db)
	conversations := services.NewConversationService(c.db)
	documents := services.NewDocumentService(c.db, c.storage, c.index, enq, services.DocumentConfig{
		MaxPerConversation: cfg.MaxDocumentsPerChat,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		VectorTimeout:      cfg.VectorTimeout,
	}, log)
	qa := services.NewQAService(c.db, c.embedder, c.llm, c.index, services.QAConfig{
		TopK:            cfg.RetrievalTopK,
		EmbedTimeout:    cfg.EmbedTimeout,
		VectorTimeout:   cfg.VectorTimeout,
		CompleteTimeout: cfg.CompleteTimeout,
		TitleTimeout:    cfg.TitleTimeout,
	}, log)

	server := NewServer(cfg, ServerDeps{
		Users:         users,
		Conversations: conversations,
		Documents:     documents,
		QA:            qa,
		RateLimitDB:   rdb,
	}, log)

	var worker *queue.Worker
	if embeddedWorker(cfg) {
		worker, err = newIngestWorker(cfg, c, log)
		if err != nil {
			_ = enq.Close()
			_ = rdb.Close()
			c.close()
			return nil, err
		}
	}

	return &App{
		Server:  server,
		Worker:  worker,
		clients: c,
		redis:   rdb,
		queue:   enq,
		qa:      qa,
		log:     log,
	}, nil
}

// Close stops an embedded worker, waits for background title generation,
// then releases every client.
func (a *App) Close() {
	if a.Worker != nil {
		a.Worker.Shutdown()
	}
	a.qa.Wait()
	if err := a.queue.Close(); err != nil {
		a.log.Warn("closing job queue client", "error", err)
	}
	_ = a.redis.Close()
	a.clients.close()
}
