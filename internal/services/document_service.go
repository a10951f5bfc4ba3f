package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-chat/internal/core"
	db "github.com/markdave123-py/contexta-chat/internal/core/database"
	ingestion "github.com/markdave123-py/contexta-chat/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-chat/internal/models"
)

const (
	MaxUploadsPerConfirm = 10
	MaxFilesPerUpload    = 5
	MaxStatusIDs         = 3
)

type DocumentConfig struct {
	MaxPerConversation int
	MaxUploadBytes     int64
	VectorTimeout      time.Duration
}

// Upload names an object already stored under the conversation's prefix.
type Upload struct {
	FileName string `json:"fileName"`
	Path     string `json:"path"`
}

// UploadFile is one file received for direct upload.
type UploadFile struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type DocumentService struct {
	db      db.DbClient
	storage core.ObjectClient
	index   core.VectorIndex
	queue   core.JobQueue
	cfg     DocumentConfig
	log     *slog.Logger
}

func NewDocumentService(dbc db.DbClient, storage core.ObjectClient, index core.VectorIndex, queue core.JobQueue, cfg DocumentConfig, log *slog.Logger) *DocumentService {
	if cfg.VectorTimeout <= 0 {
		cfg.VectorTimeout = 30 * time.Second
	}
	return &DocumentService{db: dbc, storage: storage, index: index, queue: queue, cfg: cfg, log: log}
}

// ConfirmUploads registers already-stored objects as documents and enqueues
// a single ingestion job for all of them.
func (s *DocumentService) ConfirmUploads(ctx context.Context, userID, conversationID string, uploads []Upload) ([]models.Document, error) {
	if len(uploads) == 0 || len(uploads) > MaxUploadsPerConfirm {
		return nil, core.Invalidf("between 1 and %d uploads are required, got %d", MaxUploadsPerConfirm, len(uploads))
	}
	prefix := conversationPrefix(conversationID)
	for i, u := range uploads {
		if strings.TrimSpace(u.FileName) == "" || u.Path == "" {
			return nil, core.Invalidf("upload %d: fileName and path are required", i)
		}
		if !strings.HasPrefix(path.Clean(u.Path), prefix) {
			return nil, core.Invalidf("upload %d: path must be under %s", i, prefix)
		}
	}

	conv, err := s.db.GetConversationForUser(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCapacity(ctx, conv.ID, len(uploads)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	docs := make([]*models.Document, len(uploads))
	for i, u := range uploads {
		docs[i] = &models.Document{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			FileName:       u.FileName,
			ContentRef:     path.Clean(u.Path),
			ContentType:    ingestion.ContentTypeFor("", u.FileName),
			Status:         models.StatusProcessing,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return s.createAndEnqueue(ctx, conv.ID, docs)
}

// Upload stores the files under the conversation's prefix, then confirms
// them. Stored objects are removed again if the records cannot be created.
func (s *DocumentService) Upload(ctx context.Context, userID, conversationID string, files []UploadFile) ([]models.Document, error) {
	if len(files) == 0 || len(files) > MaxFilesPerUpload {
		return nil, core.Invalidf("between 1 and %d files are required, got %d", MaxFilesPerUpload, len(files))
	}
	for _, f := range files {
		if !strings.HasPrefix(f.ContentType, "application/pdf") {
			return nil, core.Invalidf("%s: only PDF files are accepted", f.FileName)
		}
		if s.cfg.MaxUploadBytes > 0 && f.Size > s.cfg.MaxUploadBytes {
			return nil, core.Invalidf("%s: file exceeds %d bytes", f.FileName, s.cfg.MaxUploadBytes)
		}
	}

	conv, err := s.db.GetConversationForUser(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCapacity(ctx, conv.ID, len(files)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	docs := make([]*models.Document, 0, len(files))
	for _, f := range files {
		id := uuid.NewString()
		name := sanitizeFileName(f.FileName)
		key := objectKey(conv.ID, id, name)

		if err := s.storage.UploadFile(ctx, key, f.Body, "application/pdf"); err != nil {
			s.removeObjects(ctx, docs)
			return nil, fmt.Errorf("store %s: %w", name, err)
		}
		docs = append(docs, &models.Document{
			ID:             id,
			ConversationID: conv.ID,
			FileName:       name,
			ContentRef:     key,
			ContentType:    "application/pdf",
			Status:         models.StatusProcessing,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	out, err := s.createAndEnqueue(ctx, conv.ID, docs)
	if err != nil && !core.IsTransient(err) {
		s.removeObjects(ctx, docs)
	}
	return out, err
}

func (s *DocumentService) createAndEnqueue(ctx context.Context, conversationID string, docs []*models.Document) ([]models.Document, error) {
	if err := s.db.CreateDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("create documents: %w", err)
	}

	job := core.IngestJob{ConversationID: conversationID}
	for _, d := range docs {
		job.Documents = append(job.Documents, core.JobDocument{
			DocumentID:  d.ID,
			ContentRef:  d.ContentRef,
			FileName:    d.FileName,
			ContentType: d.ContentType,
		})
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		// Nothing will ever pick these up, so they must not stay PROCESSING.
		if _, merr := s.db.MarkDocumentsFailed(context.WithoutCancel(ctx), job.DocumentIDs()); merr != nil {
			s.log.Error("marking unqueued documents failed", "conversation_id", conversationID, "error", merr)
		}
		return nil, core.Transient("enqueue", err)
	}

	out := make([]models.Document, len(docs))
	for i, d := range docs {
		out[i] = *d
	}
	return out, nil
}

func (s *DocumentService) checkCapacity(ctx context.Context, conversationID string, adding int) error {
	if s.cfg.MaxPerConversation <= 0 {
		return nil
	}
	n, err := s.db.CountDocumentsByConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if n+adding > s.cfg.MaxPerConversation {
		return core.Invalidf("conversation holds %d documents, adding %d exceeds the limit of %d", n, adding, s.cfg.MaxPerConversation)
	}
	return nil
}

// ListByConversation returns an owned conversation's documents, newest first.
func (s *DocumentService) ListByConversation(ctx context.Context, userID, conversationID string) ([]models.Document, error) {
	conv, err := s.db.GetConversationForUser(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return s.db.ListDocumentsByConversation(ctx, conv.ID)
}

func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*models.Document, error) {
	return s.db.GetDocumentForUser(ctx, documentID, userID)
}

// Delete removes the stored bytes, then the document's vectors, then the
// record. Vector cleanup is advisory: a failure is logged and the delete
// goes on.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentForUser(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.storage.DeleteFile(ctx, doc.ContentRef); err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("delete stored bytes: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	verr := s.index.Delete(vctx, doc.ConversationID, core.VectorFilter{DocumentID: doc.ID})
	cancel()
	if verr != nil {
		s.log.Warn("vector cleanup failed, continuing delete",
			"document_id", doc.ID, "conversation_id", doc.ConversationID, "error", verr)
	}

	if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

// StatusCounts aggregates the statuses of up to MaxStatusIDs owned documents.
// Unknown or foreign ids are not counted.
func (s *DocumentService) StatusCounts(ctx context.Context, userID string, ids []string) (models.StatusCounts, error) {
	var counts models.StatusCounts
	if len(ids) == 0 || len(ids) > MaxStatusIDs {
		return counts, core.Invalidf("between 1 and %d document ids are required, got %d", MaxStatusIDs, len(ids))
	}

	seen := make(map[string]bool, len(ids))
	unique := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	statuses, err := s.db.ListDocumentStatusesForUser(ctx, unique, userID)
	if err != nil {
		return counts, err
	}
	for _, st := range statuses {
		counts.Add(st)
	}
	return counts, nil
}

func (s *DocumentService) removeObjects(ctx context.Context, docs []*models.Document) {
	for _, d := range docs {
		if err := s.storage.DeleteFile(context.WithoutCancel(ctx), d.ContentRef); err != nil {
			s.log.Warn("removing orphaned upload failed", "key", d.ContentRef, "error", err)
		}
	}
}

func conversationPrefix(conversationID string) string {
	return "chats/" + conversationID + "/"
}

// objectKey creates a consistent S3 key layout.
func objectKey(conversationID, docID, filename string) string {
	return path.Join("chats", conversationID, docID, filename)
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}
