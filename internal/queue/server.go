package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hibiken/asynq"

	"github.com/markdave123-py/contexta-chat/internal/core"
	ingestion "github.com/markdave123-py/contexta-chat/internal/core/ingestion_engine"
)

// WorkerConfig sizes the consumer and its retry backoff.
type WorkerConfig struct {
	Queue         string
	Concurrency   int
	BackoffBase   time.Duration
	BackoffJitter float64 // fraction of the delay added at random, e.g. 0.3
}

// Worker consumes ingestion tasks. Tasks that exhaust their retries are
// archived by asynq; the archive is the dead-letter queue.
type Worker struct {
	srv       *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	queue     string
	log       *slog.Logger
}

func NewWorker(redisOpt asynq.RedisConnOpt, cfg WorkerConfig, ingestor ingestion.Ingestor, log *slog.Logger) *Worker {
	queue := cfg.Queue
	if queue == "" {
		queue = "default"
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     max(cfg.Concurrency, 1),
		Queues:          map[string]int{queue: 1},
		RetryDelayFunc:  Backoff(cfg.BackoffBase, cfg.BackoffJitter, rand.Float64),
		ErrorHandler:    asynq.ErrorHandlerFunc(deadLetterReporter(log)),
		Logger:          asynqLogger{log: log.With("component", "asynq")},
		ShutdownTimeout: 30 * time.Second,
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskIngestDocuments, &ingestHandler{ingestor: ingestor, log: log})

	return &Worker{
		srv:       srv,
		mux:       mux,
		inspector: asynq.NewInspector(redisOpt),
		queue:     queue,
		log:       log,
	}
}

// Start begins consuming in the background.
func (w *Worker) Start() error {
	if n, err := w.DeadLetterCount(); err == nil && n > 0 {
		w.log.Warn("dead-letter queue holds exhausted ingestion jobs", "queue", w.queue, "archived", n)
	}
	w.log.Info("ingestion worker starting", "queue", w.queue)
	return w.srv.Start(w.mux)
}

// Shutdown stops fetching new tasks and waits for in-flight ones.
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
	_ = w.inspector.Close()
}

// DeadLetterCount reports how many tasks sit in the archive.
func (w *Worker) DeadLetterCount() (int, error) {
	info, err := w.inspector.GetQueueInfo(w.queue)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Archived, nil
}

// Backoff doubles base for each retry already made and adds up to
// jitter*delay at random. rnd must return values in [0, 1).
func Backoff(base time.Duration, jitter float64, rnd func() float64) asynq.RetryDelayFunc {
	if base <= 0 {
		base = 3 * time.Second
	}
	if jitter < 0 {
		jitter = 0
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		n = min(max(n, 0), 20)
		delay := base << n
		return delay + time.Duration(rnd()*jitter*float64(delay))
	}
}

type ingestHandler struct {
	ingestor ingestion.Ingestor
	log      *slog.Logger
}

// ProcessTask hands every parseable job to the ingestor, which validates it
// and fails the documents of an invalid one. Neither an unparseable payload
// nor an invalid job is retried.
func (h *ingestHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	job, err := decodePayload(t.Payload())
	if err != nil {
		h.log.Error("dropping malformed ingestion job", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	h.log.Info("ingestion job received", "job", describe(job), "attempt", retried+1, "max_attempts", maxRetry+1)

	if err := h.ingestor.ProcessJob(ctx, job); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func deadLetterReporter(log *slog.Logger) func(ctx context.Context, task *asynq.Task, err error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		taskID, _ := asynq.GetTaskID(ctx)

		if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
			log.Error("ingestion job dead-lettered",
				"task_id", taskID, "type", task.Type(), "attempts", retried+1, "error", err)
			return
		}
		log.Warn("ingestion job failed, will retry",
			"task_id", taskID, "type", task.Type(), "attempt", retried+1, "max_attempts", maxRetry+1, "error", err)
	}
}
