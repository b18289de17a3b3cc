package datasource

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// AdapterFactory creates adapters from the registry.
type AdapterFactory interface {
	// NewConnectionTester creates a connection tester for the given dialect.
	NewConnectionTester(ctx context.Context, dialect models.Dialect, connString string) (ConnectionTester, error)

	// NewSchemaDiscoverer creates a schema discoverer for the given dialect.
	NewSchemaDiscoverer(ctx context.Context, dialect models.Dialect, connString string) (SchemaDiscoverer, error)

	// NewQueryExecutor creates a query executor for the given dialect.
	NewQueryExecutor(ctx context.Context, dialect models.Dialect, connString string) (QueryExecutor, error)

	// BuildConnectionString assembles a connection string from discrete parts.
	BuildConnectionString(dialect models.Dialect, params ConnectionParams) (string, error)

	// ListTypes returns info for all registered adapters.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewAdapterFactory returns a factory that uses the global registry.
func NewAdapterFactory(logger *zap.Logger) AdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

func (f *registryFactory) registration(dialect models.Dialect) (AdapterRegistration, error) {
	reg, ok := lookup(dialect)
	if !ok {
		return AdapterRegistration{}, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDialect, dialect)
	}
	return reg, nil
}

func (f *registryFactory) NewConnectionTester(ctx context.Context, dialect models.Dialect, connString string) (ConnectionTester, error) {
	reg, err := f.registration(dialect)
	if err != nil {
		return nil, err
	}
	return reg.ConnectionTesterFactory(ctx, connString)
}

func (f *registryFactory) NewSchemaDiscoverer(ctx context.Context, dialect models.Dialect, connString string) (SchemaDiscoverer, error) {
	reg, err := f.registration(dialect)
	if err != nil {
		return nil, err
	}
	return reg.SchemaDiscovererFactory(ctx, connString, f.logger.Named(string(dialect)))
}

func (f *registryFactory) NewQueryExecutor(ctx context.Context, dialect models.Dialect, connString string) (QueryExecutor, error) {
	reg, err := f.registration(dialect)
	if err != nil {
		return nil, err
	}
	return reg.QueryExecutorFactory(ctx, connString)
}

func (f *registryFactory) BuildConnectionString(dialect models.Dialect, params ConnectionParams) (string, error) {
	reg, err := f.registration(dialect)
	if err != nil {
		return "", err
	}
	return reg.BuildConnectionString(params)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// InferDialect derives the dialect from a connection URL scheme,
// e.g. "postgresql://..." or "mysql+pymysql://...". Bare filesystem paths
// ending in .db/.sqlite/.sqlite3 are treated as SQLite.
func InferDialect(connString string) (models.Dialect, bool) {
	scheme, _, found := strings.Cut(connString, "://")
	if found {
		if d, ok := models.ParseDialect(scheme); ok {
			return d, true
		}
		for _, info := range RegisteredAdapters() {
			for _, s := range info.Schemes {
				if strings.EqualFold(s, scheme) {
					return info.Dialect, true
				}
			}
		}
		return "", false
	}

	lower := strings.ToLower(connString)
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(lower, ext) {
			return models.DialectSQLite, true
		}
	}
	return "", false
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
