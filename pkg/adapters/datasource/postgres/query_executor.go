package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// QueryExecutor provides PostgreSQL query execution over a single connection.
type QueryExecutor struct {
	conn *pgx.Conn
}

// NewQueryExecutor opens a dedicated connection for query execution.
func NewQueryExecutor(ctx context.Context, connString string) (*QueryExecutor, error) {
	conn, err := connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{conn: conn}, nil
}

// Query runs a single SQL statement and returns every row.
// The extended protocol parses the text as one statement, so a string
// carrying several statements is rejected before anything executes.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	rows, err := e.conn.Query(ctx, sqlQuery, pgx.QueryExecModeExec)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: e.typeName(fd.DataTypeOID),
		}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		for i, v := range values {
			values[i] = convertValue(v)
		}
		resultRows = append(resultRows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// typeName resolves a type OID through the connection's type map.
func (e *QueryExecutor) typeName(oid uint32) string {
	if t, ok := e.conn.TypeMap().TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

// convertValue turns pgx-native values that encoding/json renders poorly
// into plain Go values.
func convertValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}

// Close closes the connection.
func (e *QueryExecutor) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close(context.Background())
}

// Ensure QueryExecutor implements QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
