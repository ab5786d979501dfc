package repository

import (
	"context"
	"fmt"

	"jarvis/pkg/config"
	"jarvis/pkg/postgres"
	"jarvis/pkg/sqlite"

	"go.uber.org/zap"
)

// Open constructs the snapshot repository selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (SnapshotRepository, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFile:
		logger.Info("Using file snapshot store", zap.String("path", cfg.Store.Path))
		return NewFileSnapshotRepository(cfg.Store.Path, logger), nil

	case config.StoreDriverSQLite:
		db, err := sqlite.Open(ctx, &cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		repo, err := NewSQLiteSnapshotRepository(ctx, db, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return repo, nil

	case config.StoreDriverPostgres:
		pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		repo, err := NewPostgresSnapshotRepository(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
