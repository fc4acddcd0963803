package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/config"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the expense database schema and seed the default
categories. Every command migrates on startup, so this is only needed to
prepare a database ahead of time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			slog.Info("running database migrations", "database", cfg.Database.Path)

			store, err := storage.NewSQLiteStorage(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if err := store.SeedDefaultCategories(ctx); err != nil {
				return fmt.Errorf("seeding categories: %w", err)
			}

			fmt.Println(cli.FormatSuccess("Database ready at " + cfg.Database.Path))
			return nil
		},
	}
}
