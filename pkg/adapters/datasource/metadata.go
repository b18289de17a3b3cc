package datasource

import "time"

// TableMetadata represents a discovered database table.
type TableMetadata struct {
	SchemaName string
	TableName  string
	// DefaultSchema is true when the table lives in the connection's default
	// schema, so it can be referred to by its bare name.
	DefaultSchema bool
}

// Name returns the table name as shown in a schema profile:
// bare for the default schema, "schema.table" otherwise.
func (t TableMetadata) Name() string {
	if t.DefaultSchema || t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// ColumnMetadata represents a discovered database column.
type ColumnMetadata struct {
	ColumnName      string
	DataType        string
	IsNullable      bool
	OrdinalPosition int
}

// ForeignKeyMetadata represents one column of a discovered foreign key constraint.
type ForeignKeyMetadata struct {
	ConstraintName string
	SourceColumn   string
	TargetSchema   string
	TargetTable    string
	TargetColumn   string
	// TargetDefaultSchema mirrors TableMetadata.DefaultSchema for the referenced table.
	TargetDefaultSchema bool
}

// ReferencedTable returns the referenced table name in profile form.
func (fk ForeignKeyMetadata) ReferencedTable() string {
	return TableMetadata{
		SchemaName:    fk.TargetSchema,
		TableName:     fk.TargetTable,
		DefaultSchema: fk.TargetDefaultSchema,
	}.Name()
}

// TemporalColumn is a date/time-typed column considered for range discovery.
type TemporalColumn struct {
	Table  TableMetadata
	Column string
}

// TemporalRange is the discovered lower and upper temporal bound of a database.
type TemporalRange struct {
	Min *time.Time
	Max *time.Time
}
