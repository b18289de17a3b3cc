package mysql

import (
	"context"
	"database/sql"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// QueryExecutor implements datasource.QueryExecutor for MySQL.
type QueryExecutor struct {
	db *sql.DB
}

// NewQueryExecutor opens a connection for query execution.
func NewQueryExecutor(ctx context.Context, connString string) (*QueryExecutor, error) {
	db, err := openDB(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{db: db}, nil
}

// Query executes a literal statement and returns every row.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	return datasource.QuerySQL(ctx, e.db, sqlQuery)
}

// Close releases the connection.
func (e *QueryExecutor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
