package handlers

import (
	"log/slog"
	"net/http"

	"github.com/markdave123-py/contexta-chat/internal/services"
)

type ChatHandler struct {
	conversations *services.ConversationService
	qa            *services.QAService
	log           *slog.Logger
}

func NewChatHandler(conversations *services.ConversationService, qa *services.QAService, log *slog.Logger) *ChatHandler {
	return &ChatHandler{conversations: conversations, qa: qa, log: log}
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	conv, err := h.conversations.Create(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"chatId": conv.ID})
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convs, err := h.conversations.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	chatID, err := uuidParam(r, "chatId")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	detail, err := h.conversations.Get(r.Context(), userID, chatID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type questionRequest struct {
	Question string `json:"question"`
}

// Ask answers a question against the conversation's documents.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	chatID, err := uuidParam(r, "chatId")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	answer, err := h.qa.Answer(r.Context(), userID, chatID, req.Question)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
