package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

func openDB(ctx context.Context, connString string) (*sql.DB, error) {
	path, err := filePath(connString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", driverDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	return db, nil
}

// Adapter provides SQLite connectivity checks.
type Adapter struct {
	db *sql.DB
}

// NewAdapter opens a SQLite database file.
func NewAdapter(ctx context.Context, connString string) (*Adapter, error) {
	db, err := openDB(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Adapter{db: db}, nil
}

// TestConnection verifies the file is a readable SQLite database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

var _ datasource.ConnectionTester = (*Adapter)(nil)
