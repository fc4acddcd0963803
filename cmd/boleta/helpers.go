package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/capture"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/config"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/enrich"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/statement"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/storage"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/vision"
)

// initStorage opens the expense database with migrations applied and the
// default categories seeded.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := store.SeedDefaultCategories(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to seed categories: %w", err)
	}
	return store, cfg, nil
}

// initSession wires the full scan session. The returned cleanup closes every
// resource the session holds; call it on all paths.
func initSession(ctx context.Context, prompter session.Prompter) (*session.Service, func(), error) {
	store, cfg, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	snaps, err := storage.NewSnapshotStore(cfg.Database.SnapshotPath)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	analyzer, err := vision.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model,
		vision.WithRequestsPerMinute(cfg.Gemini.RequestsPerMinute),
		vision.WithRetryOptions(common.RetryOptions{MaxAttempts: cfg.Gemini.MaxRetries}),
	)
	if err != nil {
		_ = snaps.Close()
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = analyzer.Close()
		_ = snaps.Close()
		_ = store.Close()
	}

	deps := session.Deps{
		Storage:    store,
		Snapshots:  snaps,
		Analyzer:   analyzer,
		Statements: statement.NewParser(cfg.User.Currency),
		Enricher:   enrich.New(store),
		Loader:     capture.NewLoader(),
		Prompter:   prompter,
	}
	svc, err := session.New(ctx, deps, session.Config{
		UserID:         cfg.User.ID,
		Currency:       cfg.User.Currency,
		Workers:        cfg.Scan.Workers,
		ItemTimeout:    cfg.Scan.ItemTimeout,
		QuickSaveMin:   cfg.Scan.QuickSaveConfidence,
		TotalTolerance: cfg.Scan.TotalTolerance,
		AllowOverdraft: cfg.Credits.AllowOverdraft,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// stdPrompter is the line-based dialog prompter commands hand to the session.
func stdPrompter() *cli.Prompter {
	return cli.NewPrompter(nil, nil)
}

// monthRange turns "2026-08" into that month's [start, next) bounds.
func monthRange(s string) (time.Time, time.Time, error) {
	month, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("month must look like 2026-08")
	}
	return month, month.AddDate(0, 1, 0), nil
}

// currentMonth formats now the way --month expects it.
func currentMonth() string {
	return time.Now().Format("2006-01")
}
