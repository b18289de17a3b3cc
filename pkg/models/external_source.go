package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialect identifies the SQL vendor of an external source.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectMSSQL    Dialect = "mssql"
)

var dialectAliases = map[string]Dialect{
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"mysql":      DialectMySQL,
	"mariadb":    DialectMySQL,
	"sqlite":     DialectSQLite,
	"sqlite3":    DialectSQLite,
	"mssql":      DialectMSSQL,
	"sqlserver":  DialectMSSQL,
}

// ParseDialect normalizes a dialect tag or URL scheme ("postgresql", "mysql+pymysql").
func ParseDialect(s string) (Dialect, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if base, _, ok := strings.Cut(s, "+"); ok {
		s = base
	}
	d, ok := dialectAliases[s]
	return d, ok
}

// ExternalSource is one registered external database per (actor, role).
// ConnectionString always holds ciphertext; it is never serialized.
type ExternalSource struct {
	ID               uuid.UUID      `json:"id"`
	ActorID          string         `json:"actor_id"`
	RoleID           string         `json:"role_id"`
	ConnectionString string         `json:"-"`
	Dialect          Dialect        `json:"dialect"`
	Domain           string         `json:"domain"`
	Profile          *SchemaProfile `json:"schema_profile,omitempty"`
	MinDate          *time.Time     `json:"min_date,omitempty"`
	MaxDate          *time.Time     `json:"max_date,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// OwnedBy returns true if the source belongs to the given actor.
func (s *ExternalSource) OwnedBy(actor Actor) bool {
	return s.ActorID == actor.ActorID
}

// SchemaProfile is the discovered shape of an external database.
type SchemaProfile struct {
	Tables  []TableProfile `json:"tables" yaml:"tables"`
	MinDate *time.Time     `json:"min_date" yaml:"min_date,omitempty"`
	MaxDate *time.Time     `json:"max_date" yaml:"max_date,omitempty"`
}

// TableProfile describes one table of a SchemaProfile.
type TableProfile struct {
	Name        string          `json:"name" yaml:"name"`
	Columns     []ColumnProfile `json:"columns" yaml:"columns"`
	PrimaryKeys []string        `json:"primary_keys" yaml:"primary_keys"`
	ForeignKeys []ForeignKeyRef `json:"foreign_keys" yaml:"foreign_keys"`
}

type ColumnProfile struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// ForeignKeyRef points a local column at the table it references.
type ForeignKeyRef struct {
	Column     string `json:"column" yaml:"column"`
	References string `json:"references" yaml:"references"`
}

// IsTemporalType reports whether a catalog type name is date/time-like.
// Range and array types such as daterange or _timestamptz cannot be cast to a
// timestamp and are excluded.
func IsTemporalType(dataType string) bool {
	t := strings.TrimSpace(strings.ToLower(dataType))
	if strings.Contains(t, "range") || strings.HasPrefix(t, "_") || strings.HasSuffix(t, "[]") {
		return false
	}
	for _, prefix := range temporalTypePrefixes {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// temporalTypePrefixes covers date, datetime, datetime2, datetimeoffset,
// smalldatetime and every timestamp spelling.
var temporalTypePrefixes = []string{"date", "smalldatetime", "timestamp"}
