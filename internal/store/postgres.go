package store

import (
	"context"
	"embed"
	"io/fs"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
	"github.com/the-scouts/incognita-sub000/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	districtTable  = "geo.district_boundaries"
	migrationLock  = 8675311
	wgs84SRID      = 4326
	listDistricts  = `SELECT district_id, district_name, ST_AsBinary(geom) FROM geo.district_boundaries ORDER BY district_id`
	migrationTable = `
		CREATE SCHEMA IF NOT EXISTS geo;
		CREATE TABLE IF NOT EXISTS geo.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
)

var districtColumns = []string{"district_id", "district_name", "run_id", "points", "area_km2", "geom", "published_at"}

// PostgresStore publishes district boundaries to PostGIS.
type PostgresStore struct {
	pool db.Pool
	log  *zap.Logger
}

// NewPostgres wraps a pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, log: zap.L().With(zap.String("component", "store.postgres"))}
}

// Migrate applies pending SQL migrations in lexicographic order under an
// advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLock); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLock); err != nil {
			s.log.Warn("postgres: failed to release migration lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, migrationTable); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		s.log.Info("applying migration", zap.String("file", name))
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO geo.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM geo.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

// PublishDistricts upserts each district by id. Districts seen in earlier
// runs but absent from this one are left in place.
func (s *PostgresStore) PublishDistricts(ctx context.Context, runID string, districts []boundary.District) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(districts))
	for _, d := range districts {
		geomEWKB, err := encodeMultiPolygon(d.Geometry)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: district %s", d.ID)
		}
		rows = append(rows, []any{d.ID, d.Name, runID, int32(len(d.Points)), d.Area() / 1e6, geomEWKB, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        districtTable,
		Columns:      districtColumns,
		ConflictKeys: []string{"district_id"},
	}, rows)
	if err != nil {
		return 0, err
	}
	s.log.Info("published district boundaries", zap.String("run_id", runID), zap.Int64("rows", n))
	return n, nil
}

// ListDistricts returns every stored district in WGS84.
func (s *PostgresStore) ListDistricts(ctx context.Context) ([]boundary.District, error) {
	rows, err := s.pool.Query(ctx, listDistricts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list districts")
	}
	defer rows.Close()

	var out []boundary.District
	for rows.Next() {
		var (
			d   boundary.District
			raw []byte
		)
		if err := rows.Scan(&d.ID, &d.Name, &raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan district")
		}
		g, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode district %s", d.ID)
		}
		d.Geometry = g
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate districts")
}

// encodeMultiPolygon promotes polygons to the column's MultiPolygon type and
// encodes EWKB with the WGS84 SRID.
func encodeMultiPolygon(g geom.T) ([]byte, error) {
	var mp *geom.MultiPolygon
	switch t := g.(type) {
	case *geom.MultiPolygon:
		mp = geom.NewMultiPolygonFlat(t.Layout(), t.FlatCoords(), t.Endss())
	case *geom.Polygon:
		mp = geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "postgres: promote polygon")
		}
	default:
		return nil, eris.Errorf("postgres: unsupported geometry %T", g)
	}
	data, err := ewkb.Marshal(mp.SetSRID(wgs84SRID), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode EWKB")
	}
	return data, nil
}
