package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/contexta-chat/internal/app"
	"github.com/markdave123-py/contexta-chat/internal/config"
	"github.com/markdave123-py/contexta-chat/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	log := logger.New(cfg.LogLevel)

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	application, err := app.NewApp(startCtx, cfg, log)
	cancel()
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if application.Worker != nil {
		if err := application.Worker.Start(); err != nil {
			log.Error("embedded ingestion worker failed to start", "error", err)
			return
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- application.Server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server error", "error", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
