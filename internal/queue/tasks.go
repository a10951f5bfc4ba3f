package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// TaskIngestDocuments is the only task type the worker consumes.
const TaskIngestDocuments = "documents:ingest"

// TaskOptions carries the retry policy stamped onto every ingestion task.
type TaskOptions struct {
	Queue       string
	MaxAttempts int // total deliveries, including the first
	Timeout     time.Duration
}

// NewIngestTask validates the job and encodes it as the canonical payload.
func NewIngestTask(job core.IngestJob, opts TaskOptions) (*asynq.Task, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	attempts := max(opts.MaxAttempts, 1)
	taskOpts := []asynq.Option{asynq.MaxRetry(attempts - 1)}
	if opts.Queue != "" {
		taskOpts = append(taskOpts, asynq.Queue(opts.Queue))
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}

	return asynq.NewTask(TaskIngestDocuments, payload, taskOpts...), nil
}

// DecodeIngestJob parses a task payload into the typed job and validates it.
func DecodeIngestJob(payload []byte) (core.IngestJob, error) {
	job, err := decodePayload(payload)
	if err != nil {
		return core.IngestJob{}, err
	}
	if err := job.Validate(); err != nil {
		return core.IngestJob{}, err
	}
	return job, nil
}

// decodePayload only parses. Unknown fields are rejected so the payload keeps
// a single shape.
func decodePayload(payload []byte) (core.IngestJob, error) {
	var job core.IngestJob
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		return core.IngestJob{}, core.Invalidf("decode ingest job: %v", err)
	}
	return job, nil
}

func describe(job core.IngestJob) string {
	return fmt.Sprintf("conversation=%s documents=%d", job.ConversationID, len(job.Documents))
}
