//cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/db"
	"github.com/unclebandit/leadflow-backend/internal/logger"
)

func main() {
	config.LoadEnv()

	cmd := &cli.Command{
		Name:  "leadflow-seeder",
		Usage: "Apply schema migrations and load seed SQL files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "seed-dir",
				Usage:   "Directory of *.sql files applied in name order (skipped when empty)",
				Value:   "seed",
				Sources: cli.EnvVars("SEED_DIR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		zap.L().Fatal("seeding failed", zap.Error(err))
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log := logger.Setup(cmd.String("log-level"))
	defer func() { _ = log.Sync() }()

	database, err := db.Open(ctx, cmd.String("database-url"), log)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, log); err != nil {
		return err
	}

	seedFiles, err := filepath.Glob(filepath.Join(cmd.String("seed-dir"), "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(seedFiles)

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := database.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
		log.Info("seeded", zap.String("file", file))
	}

	log.Info("database seeding completed", zap.Int("files", len(seedFiles)))
	return nil
}
