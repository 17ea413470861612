package main

import (
	"context"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/the-scouts/incognita-sub000/internal/config"
	"github.com/the-scouts/incognita-sub000/internal/db"
	"github.com/the-scouts/incognita-sub000/internal/resilience"
	"github.com/the-scouts/incognita-sub000/internal/store"
)

// initHistory opens and migrates the SQLite run history.
func initHistory(ctx context.Context, c *config.Config) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(c.Store.HistoryPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initPublisher connects to PostGIS and applies pending migrations. The
// returned close func releases the pool.
func initPublisher(ctx context.Context, c *config.Config) (*store.PostgresStore, func(), error) {
	b := resilience.DefaultBackoff()
	b.Attempts = c.Store.ConnectAttempts
	pool, err := resilience.Do(ctx, b, "postgis connect", func(ctx context.Context) (*pgxpool.Pool, error) {
		return db.Connect(ctx, c.Store.DatabaseURL)
	})
	if err != nil {
		return nil, nil, err
	}
	st := store.NewPostgres(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}

// initDistrictSource picks where the server reads districts from: PostGIS
// when configured, otherwise the GeoJSON written by the last run.
func initDistrictSource(ctx context.Context, c *config.Config) (store.DistrictSource, func(), error) {
	switch c.Store.Driver {
	case "postgres":
		st, closeFn, err := initPublisher(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return st, closeFn, nil
	case "none", "":
		path := filepath.Join(c.Output.Dir, c.Output.Name+".geojson")
		return store.GeoJSONFile{Path: path}, func() {}, nil
	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}
