package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-chat/internal/core"
	"github.com/markdave123-py/contexta-chat/internal/models"
	"github.com/markdave123-py/contexta-chat/internal/services"
)

type DocumentHandler struct {
	documents      *services.DocumentService
	maxUploadBytes int64
	log            *slog.Logger
}

func NewDocumentHandler(documents *services.DocumentService, maxUploadBytes int64, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxUploadBytes: maxUploadBytes, log: log}
}

type confirmRequest struct {
	Uploads []services.Upload `json:"uploads"`
}

// ConfirmUploads registers objects the client already put into storage.
func (h *DocumentHandler) ConfirmUploads(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	chatID, err := uuidParam(r, "chatId")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	docs, err := h.documents.ConfirmUploads(r.Context(), userID, chatID, req.Uploads)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, docs)
}

// Upload takes up to five PDFs in the multipart field "files".
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	chatID, err := uuidParam(r, "chatId")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}

	// room for every file plus the multipart framing
	limit := h.maxUploadBytes*services.MaxFilesPerUpload + 1<<20
	if h.maxUploadBytes <= 0 {
		limit = 64 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, h.log, r, core.Invalidf("upload exceeds %d bytes", limit))
			return
		}
		writeError(w, h.log, r, core.Invalidf("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, h.log, r, core.Invalidf("no files in field \"files\""))
		return
	}
	if len(headers) > services.MaxFilesPerUpload {
		writeError(w, h.log, r, core.Invalidf("at most %d files per upload", services.MaxFilesPerUpload))
		return
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, h.log, r, core.Invalidf("cannot read %s", fh.Filename))
			return
		}
		defer f.Close()
		files = append(files, services.UploadFile{
			FileName:    fh.Filename,
			ContentType: partContentType(fh),
			Size:        fh.Size,
			Body:        f,
		})
	}

	docs, err := h.documents.Upload(r.Context(), userID, chatID, files)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, docs)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	chatID, err := uuidParam(r, "chatId")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	docs, err := h.documents.ListByConversation(r.Context(), userID, chatID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Count     int               `json:"count"`
		Documents []models.Document `json:"documents"`
	}{len(docs), docs})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	docID, err := uuidParam(r, "documentId")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	doc, err := h.documents.Get(r.Context(), userID, docID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	docID, err := uuidParam(r, "documentId")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	doc, err := h.documents.Delete(r.Context(), userID, docID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Status aggregates the statuses of one to three comma-separated document ids.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	ids, err := parseIDList(chi.URLParam(r, "ids"))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	counts, err := h.documents.StatusCounts(r.Context(), userID, ids)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func parseIDList(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	if raw == "" || len(parts) > services.MaxStatusIDs {
		return nil, core.Invalidf("between 1 and %d document ids are required", services.MaxStatusIDs)
	}
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(strings.TrimSpace(p))
		if err != nil {
			return nil, core.Invalidf("%q is not a UUID", p)
		}
		ids = append(ids, id.String())
	}
	return ids, nil
}

func partContentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
