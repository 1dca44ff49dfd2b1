// Package warehouse provides the analytical store behind the ingestion
// pipeline: per-session workspace tables, chunked event loading, the fixed
// aggregation catalog, and the insights cache.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaName is the schema holding all per-session workspace tables and
// the insights cache.
const schemaName = "user_data"

// Common errors.
var (
	// ErrNotFound is returned when no cached insights exist for a user.
	ErrNotFound = errors.New("not found")

	// ErrProvisioning is returned when a workspace cannot be created or
	// does not become ready within the wait bound.
	ErrProvisioning = errors.New("workspace provisioning failed")

	// ErrAggregation is returned when a catalog query cannot execute.
	ErrAggregation = errors.New("aggregation failed")
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and ensures the workspace
// schema and insights cache table exist.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// init creates the schema and the insights cache table.
func (db *DB) init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{schemaName}.Sanitize()),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				user_key     text PRIMARY KEY,
				content_type text NOT NULL,
				document     jsonb NOT NULL,
				updated_at   timestamptz NOT NULL
			)
		`, insightsTableIdent()),
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying connection pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Workspaces returns a WorkspaceManager.
func (db *DB) Workspaces() *WorkspaceManager {
	return &WorkspaceManager{
		pool:  db.pool,
		probe: db.workspaceExists,
		sleep: sleepCtx,
		now:   time.Now,
	}
}

// Aggregator returns an Aggregator.
func (db *DB) Aggregator() *Aggregator {
	return &Aggregator{pool: db.pool}
}

// Insights returns an InsightsCache.
func (db *DB) Insights() *InsightsCache {
	return &InsightsCache{pool: db.pool}
}

// tableIdent returns the sanitized, schema-qualified identifier for a
// workspace table. All catalog queries substitute only this identifier,
// never raw user content.
func tableIdent(key string) string {
	return pgx.Identifier{schemaName, key}.Sanitize()
}
