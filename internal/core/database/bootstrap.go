package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// schemaVersion is the latest version recorded by scripts/initdb.sql. The
// script is idempotent, so older schemas are upgraded by running it again.
const schemaVersion = 2

// EnsureBootstrapped applies scripts/initdb.sql unless schemaVersion is already recorded.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, log *slog.Logger) error {

	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'contexta_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if !exists {
		log.Info("database schema missing, bootstrapping")
		return runBootstrap(ctxBoot, db)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot, `SELECT EXISTS (SELECT 1 FROM contexta_meta WHERE version = $1)`, schemaVersion).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		log.Info("database schema version missing, bootstrapping")
		return runBootstrap(ctxBoot, db)
	}

	log.Debug("database schema already bootstrapped")
	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB) error {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
