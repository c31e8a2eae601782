package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hyperengineering/docservice/internal/app"
	"github.com/hyperengineering/docservice/internal/config"
	"github.com/hyperengineering/docservice/internal/filter"
	"github.com/hyperengineering/docservice/internal/service"
	"github.com/hyperengineering/docservice/internal/store"
)

// runtime is an opened backend with every configured service registered.
type runtime struct {
	app   *app.App
	db    *sql.DB
	mongo *mongo.Client
}

type modelFactory func(ctx context.Context, opts store.ModelOptions) (store.Model, error)

// openRuntime connects the configured backend and registers one service
// per services[] entry.
func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{app: app.New()}

	var newModel modelFactory
	switch cfg.Database.Driver {
	case config.DriverMemory:
		newModel = func(_ context.Context, opts store.ModelOptions) (store.Model, error) {
			return store.NewMemoryModel(opts)
		}

	case config.DriverSQLite:
		db, err := store.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		rt.db = db
		newModel = func(ctx context.Context, opts store.ModelOptions) (store.Model, error) {
			return store.NewSQLiteModel(ctx, db, opts)
		}

	case config.DriverMongo:
		client, err := store.ConnectMongo(ctx, cfg.Database.Mongo.URI, time.Duration(cfg.Database.Mongo.ConnectTimeout))
		if err != nil {
			return nil, err
		}
		rt.mongo = client
		database := client.Database(cfg.Database.Mongo.Database)
		newModel = func(ctx context.Context, opts store.ModelOptions) (store.Model, error) {
			return store.NewMongoModel(ctx, database, opts)
		}

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	for _, sc := range cfg.Services {
		model, err := newModel(ctx, store.ModelOptions{
			Collection: sc.CollectionName(),
			VirtualID:  sc.VirtualID,
			Unique:     sc.Unique,
		})
		if err != nil {
			rt.close(ctx)
			return nil, fmt.Errorf("service %s: %w", sc.Name, err)
		}
		if err := rt.app.Use(sc.Name, service.New(model, serviceFilters(sc), service.WithName(sc.Name))); err != nil {
			rt.close(ctx)
			return nil, err
		}
	}

	slog.Info("services initialized",
		"driver", cfg.Database.Driver,
		"services", rt.app.Names(),
	)
	return rt, nil
}

// serviceFilters returns the caller filters a service config asks for.
func serviceFilters(sc config.ServiceConfig) filter.Config {
	filters := filter.Config{}
	if sc.RenameID {
		filters.Add(filter.OpFind, filter.StageParams, filter.RenameIdentifier)
	}
	return filters
}

func (rt *runtime) close(ctx context.Context) {
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}
	if rt.mongo != nil {
		if err := rt.mongo.Disconnect(ctx); err != nil {
			slog.Error("mongo disconnect error", "error", err)
		}
	}
}
