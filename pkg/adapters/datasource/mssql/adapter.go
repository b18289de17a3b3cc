package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// openDB opens a single-connection handle and verifies it with a ping.
func openDB(ctx context.Context, connString string) (*sql.DB, error) {
	dsn, err := normalizeConnString(connString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open SQL Server connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return db, nil
}

// Adapter provides SQL Server connectivity checks.
type Adapter struct {
	db *sql.DB
}

// NewAdapter opens a SQL Server connection.
func NewAdapter(ctx context.Context, connString string) (*Adapter, error) {
	db, err := openDB(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Adapter{db: db}, nil
}

// TestConnection verifies connectivity and that the database is accessible.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the connection.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

var _ datasource.ConnectionTester = (*Adapter)(nil)
