package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// Ingestor processes one ingestion job. A nil error means the job needs no
// retry, even if some of its documents ended FAILED.
type Ingestor interface {
	ProcessJob(ctx context.Context, job core.IngestJob) error
}

var _ Ingestor = (*DocumentIngestor)(nil)
