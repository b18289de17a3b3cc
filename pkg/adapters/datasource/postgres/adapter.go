package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// connect opens a dedicated connection. No pool: each adapter owns exactly
// one connection, closed by Close.
func connect(ctx context.Context, connString string) (*pgx.Conn, error) {
	connConfig, err := pgx.ParseConfig(normalizeConnString(connString))
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection string: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return conn, nil
}

// Adapter provides PostgreSQL connectivity checks.
type Adapter struct {
	conn *pgx.Conn
}

// NewAdapter opens a PostgreSQL connection for connectivity checks.
func NewAdapter(ctx context.Context, connString string) (*Adapter, error) {
	conn, err := connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Adapter{conn: conn}, nil
}

// TestConnection verifies server connectivity and database access.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.conn.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close closes the connection.
func (a *Adapter) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close(context.Background())
}

// Ensure Adapter implements ConnectionTester at compile time.
var _ datasource.ConnectionTester = (*Adapter)(nil)
