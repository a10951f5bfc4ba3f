package services

import (
	"context"
	"errors"
	"sync"

	"github.com/markdave123-py/contexta-chat/internal/core"
	db "github.com/markdave123-py/contexta-chat/internal/core/database"
	objectclient "github.com/markdave123-py/contexta-chat/internal/core/object-client"
	vectorindex "github.com/markdave123-py/contexta-chat/internal/core/vector-index"
)

type stubEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	inputs [][]string
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

// stubLLM answers questions with answer and titles with title.
type stubLLM struct {
	mu         sync.Mutex
	answer     string
	answerErr  error
	title      string
	titleErr   error
	titleCalls int
	prompts    []string
}

func (s *stubLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if systemPrompt == titleSystemPrompt {
		s.titleCalls++
		return s.title, s.titleErr
	}
	s.prompts = append(s.prompts, userPrompt)
	return s.answer, s.answerErr
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []core.IngestJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job core.IngestJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// eventLog records the order of delete side effects across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

type loggingStore struct {
	*objectclient.MemoryStore
	log *eventLog
	err error
}

func (s *loggingStore) DeleteFile(ctx context.Context, key string) error {
	s.log.add("bytes")
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.DeleteFile(ctx, key)
}

type loggingIndex struct {
	*vectorindex.MemoryIndex
	log *eventLog
	err error
}

func (i *loggingIndex) Delete(ctx context.Context, ns string, f core.VectorFilter) error {
	i.log.add("vectors")
	if i.err != nil {
		return i.err
	}
	return i.MemoryIndex.Delete(ctx, ns, f)
}

type loggingDB struct {
	*db.MemoryClient
	log *eventLog
}

func (d *loggingDB) DeleteDocument(ctx context.Context, id string) error {
	d.log.add("record")
	return d.MemoryClient.DeleteDocument(ctx, id)
}

var errBoom = errors.New("boom")
