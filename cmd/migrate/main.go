package main

// Manage the Postgres schema:
//   go run ./cmd/migrate [up|down|status]

import (
	"context"
	"log/slog"
	"os"

	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-pipeline/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("document-pipeline-migrate", cfg.LogLevel)
	slog.SetDefault(logger)

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		logger.Error("open_postgres_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	switch command {
	case "up":
		err = postgres.Migrate(ctx, db)
	case "down":
		err = postgres.MigrateDown(ctx, db)
	case "status":
		err = postgres.MigrationStatus(ctx, db)
	default:
		logger.Error("unknown_command", "command", command, "usage", "migrate [up|down|status]")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("migration_failed", "command", command, "error", err)
		os.Exit(1)
	}
	logger.Info("migration_done", "command", command)
}
