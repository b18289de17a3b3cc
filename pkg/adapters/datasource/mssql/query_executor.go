package mssql

import (
	"context"
	"database/sql"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// QueryExecutor implements datasource.QueryExecutor for SQL Server.
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
	result, err := datasource.QuerySQL(ctx, e.db, sqlQuery)
	if err != nil {
		return nil, err
	}
	for i, col := range result.Columns {
		if col.Type != "UNIQUEIDENTIFIER" {
			continue
		}
		for _, row := range result.Rows {
			row[i] = convertGUID(row[i])
		}
	}
	return result, nil
}

// convertGUID renders a raw uniqueidentifier in its canonical string form.
// SQL Server stores the first three groups little-endian, which
// UniqueIdentifier.Scan accounts for.
func convertGUID(v any) any {
	raw, ok := v.([]byte)
	if !ok {
		return v
	}
	var id mssqldb.UniqueIdentifier
	if err := id.Scan(raw); err != nil {
		return v
	}
	return id.String()
}

// Close releases the connection.
func (e *QueryExecutor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
