// Package database provides the embedded SQLite client and migration
// utilities. The whole service persists to a single database file.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the bun DB handle plus the underlying database/sql
// connection for health checks.
type Client struct {
	*bun.DB
	sql *stdsql.DB
}

// SQL returns the underlying connection for pings and direct queries.
func (c *Client) SQL() *stdsql.DB {
	return c.sql
}

// NewClientFromDB wraps an existing connection (useful for testing).
func NewClientFromDB(bdb *bun.DB, db *stdsql.DB) *Client {
	return &Client{DB: bdb, sql: db}
}

// NewClient opens (creating if needed) the database file, applies pending
// migrations, and returns a ready client.
func NewClient(ctx context.Context, path string) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	db, err := stdsql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// churn under concurrent workers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	bdb := bun.NewDB(db, sqlitedialect.New())
	return &Client{DB: bdb, sql: db}, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.DB.Close()
}

// runMigrations applies embedded SQL migrations with golang-migrate.
// Schema evolves by additive columns; renames get an explicit migration
// step rather than in-place DDL surgery.
func runMigrations(db *stdsql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver; closing m would also close the shared
	// *sql.DB we hand to bun.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}
