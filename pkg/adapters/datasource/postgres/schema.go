package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
// Otherwise returns "schema"."table".
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// SchemaDiscoverer provides PostgreSQL schema discovery.
type SchemaDiscoverer struct {
	conn   *pgx.Conn
	logger *zap.Logger
}

// NewSchemaDiscoverer opens a dedicated connection for schema discovery.
// If logger is nil, a no-op logger is used.
func NewSchemaDiscoverer(ctx context.Context, connString string, logger *zap.Logger) (*SchemaDiscoverer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &SchemaDiscoverer{conn: conn, logger: logger}, nil
}

// Close closes the connection.
func (d *SchemaDiscoverer) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close(context.Background())
}

// DiscoverTables returns all user tables (excludes system schemas).
func (d *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			t.table_schema = current_schema() AS is_default
		FROM information_schema.tables t
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		  AND t.table_schema NOT LIKE 'pg_temp_%'
		ORDER BY t.table_schema, t.table_name
	`

	rows, err := d.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var t datasource.TableMetadata
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.DefaultSchema); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for a specific table.
func (d *SchemaDiscoverer) DiscoverColumns(ctx context.Context, table datasource.TableMetadata) ([]datasource.ColumnMetadata, error) {
	const query = `
		SELECT column_name, data_type, is_nullable = 'YES', ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := d.conn.Query(ctx, query, table.SchemaName, table.TableName)
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
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// DiscoverPrimaryKeys returns the primary-key columns of a table in key order.
// Uses pg_index.indisprimary so keys created as unique indexes by ORMs are found too.
func (d *SchemaDiscoverer) DiscoverPrimaryKeys(ctx context.Context, table datasource.TableMetadata) ([]string, error) {
	const query = `
		SELECT a.attname
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE ix.indisprimary
		  AND n.nspname = $1
		  AND t.relname = $2
		ORDER BY k.ord
	`

	rows, err := d.conn.Query(ctx, query, table.SchemaName, table.TableName)
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

// DiscoverForeignKeys returns foreign keys declared on a table, one entry per column.
func (d *SchemaDiscoverer) DiscoverForeignKeys(ctx context.Context, table datasource.TableMetadata) ([]datasource.ForeignKeyMetadata, error) {
	const query = `
		SELECT
			con.conname,
			sa.attname AS source_column,
			tn.nspname AS target_schema,
			tc.relname AS target_table,
			ta.attname AS target_column,
			tn.nspname = current_schema() AS target_is_default
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_class tc ON tc.oid = con.confrelid
		JOIN pg_namespace tn ON tn.oid = tc.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(src, tgt, ord)
		JOIN pg_attribute sa ON sa.attrelid = con.conrelid AND sa.attnum = k.src
		JOIN pg_attribute ta ON ta.attrelid = con.confrelid AND ta.attnum = k.tgt
		WHERE con.contype = 'f'
		  AND n.nspname = $1
		  AND c.relname = $2
		ORDER BY con.conname, k.ord
	`

	rows, err := d.conn.Query(ctx, query, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyMetadata
	for rows.Next() {
		var fk datasource.ForeignKeyMetadata
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceColumn, &fk.TargetSchema, &fk.TargetTable,
			&fk.TargetColumn, &fk.TargetDefaultSchema); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// DiscoverTemporalRange runs one UNION ALL of per-column MIN/MAX queries.
// Every branch is cast to timestamptz so date and timestamp columns mix.
func (d *SchemaDiscoverer) DiscoverTemporalRange(ctx context.Context, columns []datasource.TemporalColumn) (*datasource.TemporalRange, error) {
	if len(columns) == 0 {
		return &datasource.TemporalRange{}, nil
	}

	query := datasource.BuildRangeQuery(columns,
		func(t datasource.TableMetadata) string { return qualifiedTableName(t.SchemaName, t.TableName) },
		func(c string) string { return pgx.Identifier{c}.Sanitize() },
		func(expr string) string { return "CAST(" + expr + " AS timestamptz)" },
	)

	d.logger.Debug("Discovering temporal range", zap.Int("columns", len(columns)))

	rows, err := d.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query temporal range: %w", err)
	}
	defer rows.Close()

	var acc datasource.RangeAccumulator
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan temporal range: %w", err)
		}
		if len(values) == 2 {
			acc.Add(values[0], values[1])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate temporal range: %w", err)
	}

	return acc.Range(), nil
}

// Ensure SchemaDiscoverer implements datasource.SchemaDiscoverer at compile time.
var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
