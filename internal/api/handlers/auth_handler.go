package handlers

import (
	"log/slog"
	"net/http"
	"time"

	middleware "github.com/markdave123-py/contexta-chat/internal/api/middlewares"
	"github.com/markdave123-py/contexta-chat/internal/services"
)

const tokenTTL = 24 * time.Hour

type AuthHandler struct {
	users  *services.UserService
	secret []byte
	log    *slog.Logger
}

func NewAuthHandler(users *services.UserService, secret []byte, log *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, secret: secret, log: log}
}

type credentials struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.FirstName, req.Email, req.Password)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	h.respondToken(w, r, http.StatusCreated, user.ID)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	h.respondToken(w, r, http.StatusOK, user.ID)
}

func (h *AuthHandler) respondToken(w http.ResponseWriter, r *http.Request, status int, userID string) {
	token, err := middleware.IssueToken(h.secret, userID, tokenTTL)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, status, map[string]string{"token": token})
}
