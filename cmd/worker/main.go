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
	log := logger.New(cfg.LogLevel).With("process", "worker")

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	worker, err := app.NewWorkerApp(startCtx, cfg, log)
	cancel()
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	if err := worker.Worker.Start(); err != nil {
		log.Error("worker failed to start", "error", err)
		return
	}

	<-ctx.Done()
	log.Info("shutting down worker, waiting for in-flight jobs")
}
