package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Dialect:     models.DialectSQLite,
			DisplayName: "SQLite",
			Description: "Open a SQLite 3 database file read-only",
			Schemes:     []string{"sqlite", "sqlite3"},
		},
		BuildConnectionString: BuildConnectionString,
		ConnectionTesterFactory: func(ctx context.Context, connString string) (datasource.ConnectionTester, error) {
			return NewAdapter(ctx, connString)
		},
		SchemaDiscovererFactory: func(ctx context.Context, connString string, logger *zap.Logger) (datasource.SchemaDiscoverer, error) {
			return NewSchemaDiscoverer(ctx, connString, logger)
		},
		QueryExecutorFactory: func(ctx context.Context, connString string) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, connString)
		},
	})
}
