package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// SchemaDiscoverer implements datasource.SchemaDiscoverer for SQL Server.
type SchemaDiscoverer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaDiscoverer creates a new SQL Server schema discoverer.
// If logger is nil, a no-op logger is used.
func NewSchemaDiscoverer(ctx context.Context, connString string, logger *zap.Logger) (*SchemaDiscoverer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openDB(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &SchemaDiscoverer{db: db, logger: logger}, nil
}

// DiscoverTables returns all user tables (excludes system tables).
func (s *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    CASE WHEN SCHEMA_NAME(t.schema_id) = SCHEMA_NAME() THEN 1 ELSE 0 END AS is_default
	FROM sys.tables t
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema, table_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var table datasource.TableMetadata
		var isDefault int
		if err := rows.Scan(&table.SchemaName, &table.TableName, &isDefault); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		table.DefaultSchema = isDefault == 1
		tables = append(tables, table)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for a specific table.
func (s *SchemaDiscoverer) DiscoverColumns(ctx context.Context, table datasource.TableMetadata) ([]datasource.ColumnMetadata, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    c.column_id AS ordinal_position
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("schema", table.SchemaName),
		sql.Named("table", table.TableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var col datasource.ColumnMetadata
		var isNullable int
		if err := rows.Scan(&col.ColumnName, &col.DataType, &isNullable, &col.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		col.IsNullable = isNullable == 1
		col.DataType = mapSQLServerType(col.DataType)
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	return columns, nil
}

// DiscoverPrimaryKeys returns primary-key columns in key order.
func (s *SchemaDiscoverer) DiscoverPrimaryKeys(ctx context.Context, table datasource.TableMetadata) ([]string, error) {
	query := `
	SET NOCOUNT ON;
	SELECT c.name
	FROM sys.indexes i
	INNER JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	INNER JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE i.is_primary_key = 1
	  AND i.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY ic.key_ordinal
	`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("schema", table.SchemaName),
		sql.Named("table", table.TableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan primary key row: %w", err)
		}
		keys = append(keys, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary key rows: %w", err)
	}

	return keys, nil
}

// DiscoverForeignKeys returns foreign keys declared on a table.
func (s *SchemaDiscoverer) DiscoverForeignKeys(ctx context.Context, table datasource.TableMetadata) ([]datasource.ForeignKeyMetadata, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    fk.name AS constraint_name,
	    COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS source_column,
	    SCHEMA_NAME(rt.schema_id) AS target_schema,
	    rt.name AS target_table,
	    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS target_column,
	    CASE WHEN SCHEMA_NAME(rt.schema_id) = SCHEMA_NAME() THEN 1 ELSE 0 END AS target_is_default
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	INNER JOIN sys.tables rt ON fk.referenced_object_id = rt.object_id
	WHERE fk.parent_object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY fk.name, fkc.constraint_column_id
	`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("schema", table.SchemaName),
		sql.Named("table", table.TableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyMetadata
	for rows.Next() {
		var fk datasource.ForeignKeyMetadata
		var targetDefault int
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceColumn, &fk.TargetSchema, &fk.TargetTable,
			&fk.TargetColumn, &targetDefault); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		fk.TargetDefaultSchema = targetDefault == 1
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	return fks, nil
}

// DiscoverTemporalRange returns the global MIN/MAX across temporal columns
// with one UNION ALL statement, every branch cast to datetime2.
func (s *SchemaDiscoverer) DiscoverTemporalRange(ctx context.Context, columns []datasource.TemporalColumn) (*datasource.TemporalRange, error) {
	if len(columns) == 0 {
		return &datasource.TemporalRange{}, nil
	}

	query := datasource.BuildRangeQuery(columns,
		func(t datasource.TableMetadata) string { return buildFullyQualifiedName(t.SchemaName, t.TableName) },
		quoteName,
		func(expr string) string { return "CAST(" + expr + " AS datetime2)" },
	)

	s.logger.Debug("Discovering temporal range", zap.Int("columns", len(columns)))
	return datasource.SQLTemporalRange(ctx, s.db, query)
}

// Close releases the connection.
func (s *SchemaDiscoverer) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
