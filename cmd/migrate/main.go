package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"fmt"
	"os"

	"document-backend/internal/bootstrap"
	"document-backend/internal/shared/config"
	"document-backend/internal/shared/storage/db"
	"document-backend/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if _, err := telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Encoding: cfg.LogEncoding}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer telemetry.Sync()

	if cfg.DatabaseURL == "" {
		telemetry.Error("migrate.database_url_missing", nil)
		os.Exit(1)
	}

	ctx := context.Background()
	opts := bootstrap.DBOptions(cfg, db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", nil)
}
