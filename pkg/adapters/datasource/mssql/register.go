package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Dialect:     models.DialectMSSQL,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+ and Azure SQL Database with SQL authentication",
			Schemes:     []string{"sqlserver", "mssql"},
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
