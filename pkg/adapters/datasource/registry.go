package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Dialect     models.Dialect `json:"dialect"`
	DisplayName string         `json:"display_name"`
	Description string         `json:"description"`
	// Schemes are the connection URL schemes this adapter accepts.
	Schemes []string `json:"schemes"`
}

// ConnectionParams are the discrete parts a connection string can be assembled from.
type ConnectionParams struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// AdapterRegistration contains info + factories for creating adapters.
// Every factory opens a fresh connection from a plaintext connection string;
// nothing is pooled across calls.
type AdapterRegistration struct {
	Info                    AdapterInfo
	BuildConnectionString   func(p ConnectionParams) (string, error)
	ConnectionTesterFactory func(ctx context.Context, connString string) (ConnectionTester, error)
	SchemaDiscovererFactory func(ctx context.Context, connString string, logger *zap.Logger) (SchemaDiscoverer, error)
	QueryExecutorFactory    func(ctx context.Context, connString string) (QueryExecutor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.Dialect]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Dialect] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by dialect.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Dialect < result[j].Dialect })
	return result
}

// lookup returns the registration for a dialect.
func lookup(dialect models.Dialect) (AdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dialect]
	return reg, ok
}

// IsRegistered checks if an adapter for the dialect is available.
func IsRegistered(dialect models.Dialect) bool {
	_, ok := lookup(dialect)
	return ok
}
