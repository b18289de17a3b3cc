package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// openDB opens a single-connection handle and verifies it with a ping.
func openDB(ctx context.Context, connString string) (*sql.DB, error) {
	cfg, err := toDriverConfig(connString)
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	return db, nil
}

// Adapter provides MySQL connectivity checks.
type Adapter struct {
	db *sql.DB
}

// NewAdapter opens a MySQL connection.
func NewAdapter(ctx context.Context, connString string) (*Adapter, error) {
	db, err := openDB(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Adapter{db: db}, nil
}

// TestConnection verifies connectivity and that the database is accessible.
func (a *Adapter) TestConnection(ctx context.Context) error {
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
