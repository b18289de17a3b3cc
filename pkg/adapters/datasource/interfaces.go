package datasource

import "context"

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// SchemaDiscoverer profiles the schema of an external database.
// Each implementation owns its connection and must be closed when done,
// including the driver pool behind it.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables (excludes system schemas).
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns columns for a table in ordinal order.
	DiscoverColumns(ctx context.Context, table TableMetadata) ([]ColumnMetadata, error)

	// DiscoverPrimaryKeys returns the primary-key column names of a table.
	DiscoverPrimaryKeys(ctx context.Context, table TableMetadata) ([]string, error)

	// DiscoverForeignKeys returns foreign keys declared on a table.
	DiscoverForeignKeys(ctx context.Context, table TableMetadata) ([]ForeignKeyMetadata, error)

	// DiscoverTemporalRange returns the global MIN/MAX across the given columns.
	// Bounds are nil when no column holds a non-null value.
	DiscoverTemporalRange(ctx context.Context, columns []TemporalColumn) (*TemporalRange, error)

	// Close releases the database connection.
	Close() error
}

// QueryExecutor runs literal SQL against an external database.
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query executes sqlQuery as a single statement and fetches every row.
	// Rows preserve column order so callers can map results positionally.
	Query(ctx context.Context, sqlQuery string) (*QueryExecutionResult, error)

	// Close releases any resources held by the executor.
	Close() error
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo `json:"columns"`
	Rows     [][]any      `json:"rows"`
	RowCount int          `json:"row_count"`
}
