package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// quoteIdentifier quotes a MySQL identifier with backticks.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualifiedTableName(t datasource.TableMetadata) string {
	if t.SchemaName == "" {
		return quoteIdentifier(t.TableName)
	}
	return quoteIdentifier(t.SchemaName) + "." + quoteIdentifier(t.TableName)
}

// SchemaDiscoverer implements datasource.SchemaDiscoverer for MySQL.
// Discovery is limited to the database selected by the connection string.
type SchemaDiscoverer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaDiscoverer opens a connection for schema discovery.
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

// DiscoverTables returns base tables of the current database.
func (s *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	const query = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		t := datasource.TableMetadata{DefaultSchema: true}
		if err := rows.Scan(&t.SchemaName, &t.TableName); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// DiscoverColumns returns columns for a table in ordinal order.
func (s *SchemaDiscoverer) DiscoverColumns(ctx context.Context, table datasource.TableMetadata) ([]datasource.ColumnMetadata, error) {
	const query = `
		SELECT column_name, data_type, is_nullable = 'YES', ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`

	rows, err := s.db.QueryContext(ctx, query, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var c datasource.ColumnMetadata
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.DataType = strings.ToUpper(c.DataType)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

// DiscoverPrimaryKeys returns primary-key columns in key order.
func (s *SchemaDiscoverer) DiscoverPrimaryKeys(ctx context.Context, table datasource.TableMetadata) ([]string, error) {
	const query = `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ? AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`

	rows, err := s.db.QueryContext(ctx, query, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		keys = append(keys, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}
	return keys, nil
}

// DiscoverForeignKeys returns foreign keys declared on a table.
func (s *SchemaDiscoverer) DiscoverForeignKeys(ctx context.Context, table datasource.TableMetadata) ([]datasource.ForeignKeyMetadata, error) {
	const query = `
		SELECT constraint_name, column_name, referenced_table_schema,
		       referenced_table_name, referenced_column_name,
		       referenced_table_schema = DATABASE()
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ?
		  AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position`

	rows, err := s.db.QueryContext(ctx, query, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyMetadata
	for rows.Next() {
		var fk datasource.ForeignKeyMetadata
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceColumn, &fk.TargetSchema,
			&fk.TargetTable, &fk.TargetColumn, &fk.TargetDefaultSchema); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return fks, nil
}

// DiscoverTemporalRange runs one UNION ALL of per-column MIN/MAX queries,
// every branch cast to DATETIME.
func (s *SchemaDiscoverer) DiscoverTemporalRange(ctx context.Context, columns []datasource.TemporalColumn) (*datasource.TemporalRange, error) {
	if len(columns) == 0 {
		return &datasource.TemporalRange{}, nil
	}

	query := datasource.BuildRangeQuery(columns, qualifiedTableName, quoteIdentifier,
		func(expr string) string { return "CAST(" + expr + " AS DATETIME)" },
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
