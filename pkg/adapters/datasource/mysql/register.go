package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Dialect:     models.DialectMySQL,
			DisplayName: "MySQL",
			Description: "Connect to MySQL 5.7+, MariaDB, Aurora MySQL",
			Schemes:     []string{"mysql", "mariadb"},
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
