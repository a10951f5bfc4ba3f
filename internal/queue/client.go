package queue

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// Enqueuer publishes ingestion jobs to Redis through asynq.
type Enqueuer struct {
	client *asynq.Client
	opts   TaskOptions
	log    *slog.Logger
}

var _ core.JobQueue = (*Enqueuer)(nil)

func NewEnqueuer(redisOpt asynq.RedisConnOpt, opts TaskOptions, log *slog.Logger) *Enqueuer {
	return &Enqueuer{
		client: asynq.NewClient(redisOpt),
		opts:   opts,
		log:    log,
	}
}

func (e *Enqueuer) Enqueue(ctx context.Context, job core.IngestJob) error {
	task, err := NewIngestTask(job, e.opts)
	if err != nil {
		return err
	}

	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return core.Transient("enqueue", err)
	}

	e.log.Info("ingestion job enqueued",
		"task_id", info.ID,
		"queue", info.Queue,
		"conversation_id", job.ConversationID,
		"documents", len(job.Documents),
		"max_retry", info.MaxRetry,
	)
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
