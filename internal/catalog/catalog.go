// Package catalog records fetched datasets and rendered artifacts in a SQL
// database, sqlite by default or Postgres.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fetches (
		key TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		path TEXT NOT NULL,
		size BIGINT NOT NULL,
		fetched_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS renders (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		region TEXT NOT NULL,
		path TEXT NOT NULL,
		location TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

// Fetch is a dataset downloaded from the data hub.
type Fetch struct {
	Key       string `db:"key"`
	URL       string `db:"url"`
	Path      string `db:"path"`
	Size      int64  `db:"size"`
	FetchedAt string `db:"fetched_at"`
}

// Render is a plot or animation produced from a dataset.
type Render struct {
	ID     string `db:"id"`
	Kind   string `db:"kind"`
	Source string `db:"source"`
	Region string `db:"region"`
	Path   string `db:"path"`
	// Location is where the artifact was published, empty if it was not.
	Location  string `db:"location"`
	CreatedAt string `db:"created_at"`
}

// Catalog is the database of fetches and renders.
type Catalog struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens the catalog. A postgres:// or postgresql:// DSN uses Postgres,
// anything else is a sqlite database file.
func Open(dsn string) (*Catalog, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, err
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Catalog{db: db, now: time.Now}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

// RecordFetch stores or replaces a fetch.
func (c *Catalog) RecordFetch(ctx context.Context, key, url, path string, size int64) error {
	_, err := c.db.ExecContext(ctx, c.db.Rebind(`
		INSERT INTO fetches (key, url, path, size, fetched_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET url = excluded.url, path = excluded.path,
			size = excluded.size, fetched_at = excluded.fetched_at`),
		key, url, path, size, c.timestamp())
	return err
}

// LookupFetch returns the fetch recorded under key. ok is false when there
// is none.
func (c *Catalog) LookupFetch(ctx context.Context, key string) (f Fetch, ok bool, err error) {
	err = c.db.GetContext(ctx, &f, c.db.Rebind(`SELECT key, url, path, size, fetched_at FROM fetches WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return Fetch{}, false, nil
	}
	if err != nil {
		return Fetch{}, false, err
	}
	return f, true, nil
}

// RecordRender stores a render under a new id and returns it.
func (c *Catalog) RecordRender(ctx context.Context, r Render) (Render, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = c.timestamp()
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO renders (id, kind, source, region, path, location, created_at)
		VALUES (:id, :kind, :source, :region, :path, :location, :created_at)`, r)
	if err != nil {
		return Render{}, err
	}
	return r, nil
}

// ListRenders returns the most recent renders first, at most limit of them.
func (c *Catalog) ListRenders(ctx context.Context, limit int) ([]Render, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Render
	err := c.db.SelectContext(ctx, &out, c.db.Rebind(`
		SELECT id, kind, source, region, path, location, created_at
		FROM renders ORDER BY created_at DESC, id LIMIT ?`), limit)
	return out, err
}
