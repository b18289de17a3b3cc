package datasource

import (
	"context"
	"database/sql"
	"fmt"
)

// CollectSQLRows drains database/sql rows into a QueryExecutionResult,
// preserving column order. Used by every database/sql based adapter.
func CollectSQLRows(rows *sql.Rows) (*QueryExecutionResult, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	columns := make([]ColumnInfo, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = ColumnInfo{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		resultRows = append(resultRows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// QuerySQL runs a literal statement on a *sql.DB and collects the rows.
func QuerySQL(ctx context.Context, db *sql.DB, query string) (*QueryExecutionResult, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return CollectSQLRows(rows)
}

// SQLTemporalRange runs a BuildRangeQuery statement and folds the result.
func SQLTemporalRange(ctx context.Context, db *sql.DB, query string) (*TemporalRange, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query temporal range: %w", err)
	}
	defer rows.Close()

	var acc RangeAccumulator
	for rows.Next() {
		var lo, hi any
		if err := rows.Scan(&lo, &hi); err != nil {
			return nil, fmt.Errorf("scan temporal range: %w", err)
		}
		acc.Add(lo, hi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate temporal range: %w", err)
	}
	return acc.Range(), nil
}
