package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Dialect:     models.DialectPostgres,
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
			Schemes:     []string{"postgres", "postgresql"},
		},
		BuildConnectionString: func(p datasource.ConnectionParams) (string, error) {
			cfg, err := FromParams(p)
			if err != nil {
				return "", err
			}
			return cfg.ConnectionString(), nil
		},
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
