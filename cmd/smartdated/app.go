package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cyp0633/smartdate/internal/config"
	"github.com/cyp0633/smartdate/internal/logging"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/service"
	"github.com/cyp0633/smartdate/storage"
	"github.com/cyp0633/smartdate/storage/memory"
	"github.com/cyp0633/smartdate/storage/postgres"
	"github.com/cyp0633/smartdate/storage/sqlite"
	"github.com/cyp0633/smartdate/storage/sqlstore"
)

// app holds everything a subcommand needs to run service operations.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Storage
	sql    *sqlstore.Store // nil for the memory driver
	engine *recurrence.Engine
	svc    *service.Service
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, sc config.StorageConfig) (storage.Storage, *sqlstore.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil, nil
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

func newApp(ctx context.Context, c *config.Config, logOut io.Writer) (*app, error) {
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := logging.New(c.Log, logOut)

	store, sqlStore, err := openStore(ctx, c.Storage)
	if err != nil {
		return nil, err
	}
	if sqlStore != nil {
		if err := sqlStore.Migrate(ctx); err != nil {
			_ = sqlStore.Close()
			return nil, err
		}
	}
	logger.Debug("storage opened", "driver", c.Storage.Driver)

	engine := recurrence.NewEngineWithConfig(c.EngineConfig())
	svc := service.New(store, engine, service.Config{
		HorizonMonths: c.Engine.HorizonMonths,
		Window:        c.WindowOptions(),
		Location:      c.Location(),
		Logger:        logger,
	})

	return &app{
		cfg:    c,
		logger: logger,
		store:  store,
		sql:    sqlStore,
		engine: engine,
		svc:    svc,
	}, nil
}

// Close stops the expansion cache and closes the database, if any.
func (a *app) Close() error {
	a.engine.Close()
	if a.sql != nil {
		return a.sql.Close()
	}
	return nil
}
