package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

// mainSchema is the schema name SQLite gives the opened database file.
const mainSchema = "main"

// quoteIdentifier uses backticks. SQLite reads an unknown double-quoted
// name as a string literal, backticks are always an identifier.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// SchemaDiscoverer implements datasource.SchemaDiscoverer for SQLite.
// There is no information schema, so discovery walks sqlite_master and the
// table_info / foreign_key_list pragmas.
type SchemaDiscoverer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaDiscoverer opens a database file for schema discovery.
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

// DiscoverTables returns user tables, skipping SQLite's internal tables.
func (s *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		t := datasource.TableMetadata{SchemaName: mainSchema, DefaultSchema: true}
		if err := rows.Scan(&t.TableName); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// tableColumn is one row of PRAGMA table_info.
type tableColumn struct {
	cid      int
	name     string
	declType string
	notNull  bool
	pk       int
}

func (s *SchemaDiscoverer) tableInfo(ctx context.Context, table string) ([]tableColumn, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdentifier(table)+")")
	if err != nil {
		return nil, fmt.Errorf("query table_info for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []tableColumn
	for rows.Next() {
		var c tableColumn
		var dflt sql.NullString
		if err := rows.Scan(&c.cid, &c.name, &c.declType, &c.notNull, &dflt, &c.pk); err != nil {
			return nil, fmt.Errorf("scan table_info for %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info for %s: %w", table, err)
	}
	return cols, nil
}

// DiscoverColumns returns columns with their declared types.
func (s *SchemaDiscoverer) DiscoverColumns(ctx context.Context, table datasource.TableMetadata) ([]datasource.ColumnMetadata, error) {
	info, err := s.tableInfo(ctx, table.TableName)
	if err != nil {
		return nil, err
	}

	columns := make([]datasource.ColumnMetadata, 0, len(info))
	for _, c := range info {
		columns = append(columns, datasource.ColumnMetadata{
			ColumnName:      c.name,
			DataType:        strings.ToUpper(c.declType),
			IsNullable:      !c.notNull,
			OrdinalPosition: c.cid + 1,
		})
	}
	return columns, nil
}

// DiscoverPrimaryKeys returns primary-key columns in key order.
func (s *SchemaDiscoverer) DiscoverPrimaryKeys(ctx context.Context, table datasource.TableMetadata) ([]string, error) {
	info, err := s.tableInfo(ctx, table.TableName)
	if err != nil {
		return nil, err
	}

	byPosition := make(map[int]string)
	for _, c := range info {
		if c.pk > 0 {
			byPosition[c.pk] = c.name
		}
	}

	keys := make([]string, 0, len(byPosition))
	for i := 1; i <= len(byPosition); i++ {
		if name, ok := byPosition[i]; ok {
			keys = append(keys, name)
		}
	}
	return keys, nil
}

// DiscoverForeignKeys returns foreign keys declared on a table.
// A reference without an explicit column targets the parent's primary key
// and is reported with an empty TargetColumn.
func (s *SchemaDiscoverer) DiscoverForeignKeys(ctx context.Context, table datasource.TableMetadata) ([]datasource.ForeignKeyMetadata, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_list("+quoteIdentifier(table.TableName)+")")
	if err != nil {
		return nil, fmt.Errorf("query foreign_key_list for %s: %w", table.TableName, err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyMetadata
	for rows.Next() {
		var (
			id, seq                   int
			target, from              string
			to                        sql.NullString
			onUpdate, onDelete, match string
		)
		if err := rows.Scan(&id, &seq, &target, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("scan foreign_key_list for %s: %w", table.TableName, err)
		}
		fks = append(fks, datasource.ForeignKeyMetadata{
			ConstraintName:      fmt.Sprintf("fk_%s_%d", table.TableName, id),
			SourceColumn:        from,
			TargetSchema:        mainSchema,
			TargetTable:         target,
			TargetColumn:        to.String,
			TargetDefaultSchema: true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign_key_list for %s: %w", table.TableName, err)
	}
	return fks, nil
}

// DiscoverTemporalRange runs one MIN/MAX query per column. SQLite stores
// dates as text, so values are parsed with the common layouts.
func (s *SchemaDiscoverer) DiscoverTemporalRange(ctx context.Context, columns []datasource.TemporalColumn) (*datasource.TemporalRange, error) {
	var acc datasource.RangeAccumulator
	for _, c := range columns {
		col := quoteIdentifier(c.Column)
		query := "SELECT MIN(" + col + "), MAX(" + col + ") FROM " + quoteIdentifier(c.Table.TableName)

		var lo, hi any
		if err := s.db.QueryRowContext(ctx, query).Scan(&lo, &hi); err != nil {
			return nil, fmt.Errorf("query range of %s.%s: %w", c.Table.TableName, c.Column, err)
		}
		acc.Add(lo, hi)
	}
	return acc.Range(), nil
}

// Close releases the database handle.
func (s *SchemaDiscoverer) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
