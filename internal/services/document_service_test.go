package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/core"
	db "github.com/markdave123-py/contexta-chat/internal/core/database"
	objectclient "github.com/markdave123-py/contexta-chat/internal/core/object-client"
	vectorindex "github.com/markdave123-py/contexta-chat/internal/core/vector-index"
	"github.com/markdave123-py/contexta-chat/internal/logger"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

type docFixture struct {
	events *eventLog
	db     *loggingDB
	store  *loggingStore
	index  *loggingIndex
	queue  *fakeQueue
	svc    *DocumentService
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	events := &eventLog{}
	f := &docFixture{
		events: events,
		db:     &loggingDB{MemoryClient: db.NewMemoryClient(), log: events},
		store:  &loggingStore{MemoryStore: objectclient.NewMemoryStore(), log: events},
		index:  &loggingIndex{MemoryIndex: vectorindex.NewMemoryIndex(), log: events},
		queue:  &fakeQueue{},
	}
	f.svc = NewDocumentService(f.db, f.store, f.index, f.queue, DocumentConfig{
		MaxPerConversation: 5,
		MaxUploadBytes:     1024,
	}, logger.Discard())

	require.NoError(t, f.db.CreateConversation(context.Background(), &models.Conversation{ID: "chat-1", UserID: "user-1"}))
	return f
}

func uploads(n int) []Upload {
	out := make([]Upload, n)
	for i := range out {
		out[i] = Upload{FileName: "file.pdf", Path: "chats/chat-1/tmp/file.pdf"}
	}
	return out
}

func TestConfirmUploads_CreatesDocumentsAndOneJob(t *testing.T) {
	f := newDocFixture(t)

	docs, err := f.svc.ConfirmUploads(context.Background(), "user-1", "chat-1", uploads(3))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for _, d := range docs {
		assert.Equal(t, models.StatusProcessing, d.Status)
		assert.Equal(t, "chat-1", d.ConversationID)
		assert.Equal(t, "application/pdf", d.ContentType)
	}

	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	assert.Equal(t, "chat-1", job.ConversationID)
	assert.Equal(t, []string{docs[0].ID, docs[1].ID, docs[2].ID}, job.DocumentIDs())
}

func TestConfirmUploads_Validation(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmUploads(ctx, "user-1", "chat-1", nil)
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = f.svc.ConfirmUploads(ctx, "user-1", "chat-1", uploads(MaxUploadsPerConfirm+1))
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = f.svc.ConfirmUploads(ctx, "user-1", "chat-1", []Upload{{FileName: "a.pdf", Path: "chats/other/a.pdf"}})
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = f.svc.ConfirmUploads(ctx, "user-1", "chat-1", []Upload{{FileName: "a.pdf", Path: "chats/chat-1/../other/a.pdf"}})
	assert.True(t, errors.Is(err, core.ErrValidation))

	// Over the per-conversation cap.
	_, err = f.svc.ConfirmUploads(ctx, "user-1", "chat-1", uploads(6))
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = f.svc.ConfirmUploads(ctx, "user-2", "chat-1", uploads(1))
	assert.True(t, errors.Is(err, core.ErrNotFound))

	assert.Empty(t, f.queue.jobs)
}

func TestConfirmUploads_CapCountsExistingDocuments(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmUploads(ctx, "user-1", "chat-1", uploads(4))
	require.NoError(t, err)
	_, err = f.svc.ConfirmUploads(ctx, "user-1", "chat-1", uploads(2))
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestConfirmUploads_EnqueueFailureMarksDocumentsFailed(t *testing.T) {
	f := newDocFixture(t)
	f.queue.err = errBoom

	_, err := f.svc.ConfirmUploads(context.Background(), "user-1", "chat-1", uploads(2))
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))

	docs, err := f.db.ListDocumentsByConversation(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, models.StatusFailed, d.Status)
	}
}

func TestUpload_StoresUnderConversationPrefix(t *testing.T) {
	f := newDocFixture(t)

	docs, err := f.svc.Upload(context.Background(), "user-1", "chat-1", []UploadFile{
		{FileName: "My Report.pdf", ContentType: "application/pdf", Size: 8, Body: strings.NewReader("%PDF-1.4")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "My_Report.pdf", docs[0].FileName)
	assert.Equal(t, "chats/chat-1/"+docs[0].ID+"/My_Report.pdf", docs[0].ContentRef)
	assert.True(t, f.store.Has(docs[0].ContentRef))
	require.Len(t, f.queue.jobs, 1)
}

func TestUpload_Rejects(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "user-1", "chat-1", []UploadFile{
		{FileName: "notes.txt", ContentType: "text/plain", Size: 3, Body: strings.NewReader("abc")},
	})
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = f.svc.Upload(ctx, "user-1", "chat-1", []UploadFile{
		{FileName: "big.pdf", ContentType: "application/pdf", Size: 4096, Body: strings.NewReader("x")},
	})
	assert.True(t, errors.Is(err, core.ErrValidation))

	many := make([]UploadFile, MaxFilesPerUpload+1)
	_, err = f.svc.Upload(ctx, "user-1", "chat-1", many)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func seedDocument(t *testing.T, f *docFixture, id string, status models.DocumentStatus) models.Document {
	t.Helper()
	ctx := context.Background()
	d := &models.Document{
		ID: id, ConversationID: "chat-1", FileName: id + ".pdf",
		ContentRef: "chats/chat-1/" + id + "/" + id + ".pdf", ContentType: "application/pdf", Status: status,
	}
	require.NoError(t, f.db.CreateDocuments(ctx, []*models.Document{d}))
	require.NoError(t, f.store.UploadFile(ctx, d.ContentRef, strings.NewReader("%PDF"), "application/pdf"))
	require.NoError(t, f.index.Upsert(ctx, "chat-1", []core.VectorRecord{
		{ID: core.VectorID(id, 0), Values: []float32{1, 0}, Metadata: core.VectorMetadata{DocumentID: id}},
		{ID: core.VectorID(id, 1), Values: []float32{0, 1}, Metadata: core.VectorMetadata{DocumentID: id}},
	}))
	return *d
}

func TestDelete_RemovesBytesVectorsThenRecord(t *testing.T) {
	f := newDocFixture(t)
	doc := seedDocument(t, f, "doc-1", models.StatusCompleted)
	seedDocument(t, f, "doc-2", models.StatusCompleted)

	deleted, err := f.svc.Delete(context.Background(), "user-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", deleted.ID)

	assert.Equal(t, []string{"bytes", "vectors", "record"}, f.events.events)
	assert.False(t, f.store.Has(doc.ContentRef))
	assert.Equal(t, 2, f.index.Len("chat-1"), "only doc-2 vectors remain")

	_, err = f.db.GetDocumentByID(context.Background(), "doc-1")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestDelete_VectorFailureIsAdvisory(t *testing.T) {
	f := newDocFixture(t)
	seedDocument(t, f, "doc-1", models.StatusCompleted)
	f.index.err = errBoom

	_, err := f.svc.Delete(context.Background(), "user-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bytes", "vectors", "record"}, f.events.events)
}

func TestDelete_StorageFailureKeepsRecord(t *testing.T) {
	f := newDocFixture(t)
	seedDocument(t, f, "doc-1", models.StatusCompleted)
	f.store.err = errBoom

	_, err := f.svc.Delete(context.Background(), "user-1", "doc-1")
	require.Error(t, err)
	assert.Equal(t, []string{"bytes"}, f.events.events)

	_, err = f.db.GetDocumentByID(context.Background(), "doc-1")
	assert.NoError(t, err)
}

func TestDelete_NotOwned(t *testing.T) {
	f := newDocFixture(t)
	seedDocument(t, f, "doc-1", models.StatusCompleted)

	_, err := f.svc.Delete(context.Background(), "user-2", "doc-1")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Empty(t, f.events.events)
}

func TestStatusCounts(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	seedDocument(t, f, "doc-p", models.StatusProcessing)
	seedDocument(t, f, "doc-c", models.StatusCompleted)
	seedDocument(t, f, "doc-f", models.StatusFailed)

	counts, err := f.svc.StatusCounts(ctx, "user-1", []string{"doc-p", "doc-c", "doc-f"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCounts{Processing: 1, Completed: 1, Failed: 1}, counts)

	counts, err = f.svc.StatusCounts(ctx, "user-2", []string{"doc-p"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCounts{}, counts)

	_, err = f.svc.StatusCounts(ctx, "user-1", []string{"a", "b", "c", "d"})
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = f.svc.StatusCounts(ctx, "user-1", nil)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestListByConversation(t *testing.T) {
	f := newDocFixture(t)
	seedDocument(t, f, "doc-1", models.StatusCompleted)

	docs, err := f.svc.ListByConversation(context.Background(), "user-1", "chat-1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = f.svc.ListByConversation(context.Background(), "user-2", "chat-1")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
