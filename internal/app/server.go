package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/contexta-chat/internal/api/handlers"
	middleware "github.com/markdave123-py/contexta-chat/internal/api/middlewares"
	"github.com/markdave123-py/contexta-chat/internal/config"
	"github.com/markdave123-py/contexta-chat/internal/services"
)

// ServerDeps are the services the HTTP surface is built on.
type ServerDeps struct {
	Users         *services.UserService
	Conversations *services.ConversationService
	Documents     *services.DocumentService
	QA            *services.QAService
	// RateLimitDB holds rate-limit counters; nil disables limiting.
	RateLimitDB *redis.Client
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, deps ServerDeps, log *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, deps, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func NewRouter(cfg *config.Config, deps ServerDeps, log *slog.Logger) http.Handler {
	secret := []byte(cfg.JWTSecret)
	authHandler := handlers.NewAuthHandler(deps.Users, secret, log)
	chatHandler := handlers.NewChatHandler(deps.Conversations, deps.QA, log)
	docHandler := handlers.NewDocumentHandler(deps.Documents, cfg.MaxUploadBytes, log)

	var limiter *middleware.RateLimiter
	if deps.RateLimitDB != nil {
		limiter = middleware.NewRateLimiter(deps.RateLimitDB, log)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(2 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(middleware.JWTMiddleware(secret))

			protected.Route("/chats", func(chats chi.Router) {
				chats.Post("/", chatHandler.Create)
				chats.Get("/", chatHandler.List)
				chats.Get("/{chatId}", chatHandler.Get)
				chats.With(limiter.Limit("ai", cfg.AIRateLimit, cfg.AIRateWindow)).
					Post("/{chatId}/question", chatHandler.Ask)
			})

			protected.Route("/files", func(files chi.Router) {
				files.Get("/document/{documentId}", docHandler.Get)
				files.Delete("/delete/{documentId}", docHandler.Delete)
				files.Get("/status/{ids}", docHandler.Status)
				files.Get("/{chatId}", docHandler.List)
				files.Post("/{chatId}/confirm-uploads", docHandler.ConfirmUploads)
				files.With(limiter.Limit("upload", cfg.UploadRateLimit, cfg.UploadRateWindow)).
					Post("/{chatId}/upload", docHandler.Upload)
			})
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
