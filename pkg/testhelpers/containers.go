package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver for fixture setup
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/database"
)

const (
	// PostgresImage backs the metadata store in integration tests.
	PostgresImage = "postgres:16-alpine"
	// MySQLImage backs external MySQL sources in integration tests.
	MySQLImage = "mysql:8.0"
)

// MetadataDB holds the metadata store connection with migrations applied.
// Use this for testing handlers, services, and repositories against a real database.
type MetadataDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedMetadataDB     *MetadataDB
	sharedMetadataDBOnce sync.Once
	sharedMetadataDBErr  error
)

// GetMetadataDB returns a shared PostgreSQL container for integration tests.
// The container is created once, migrated, and reused across all tests in the run.
func GetMetadataDB(t *testing.T) *MetadataDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMetadataDBOnce.Do(func() {
		sharedMetadataDB, sharedMetadataDBErr = setupMetadataDB()
	})

	if sharedMetadataDBErr != nil {
		t.Fatalf("Failed to setup metadata database: %v", sharedMetadataDBErr)
	}

	return sharedMetadataDB
}

func setupMetadataDB() (*MetadataDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "ekaya_insights_test",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/ekaya_insights_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &MetadataDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// WithScope returns a context carrying a metadata connection, plus its cleanup.
func (m *MetadataDB) WithScope(t *testing.T) (context.Context, func()) {
	t.Helper()

	ctx, cleanup, err := database.NewScopeProvider(m.DB).WithScope(context.Background())
	if err != nil {
		t.Fatalf("Failed to acquire database scope: %v", err)
	}
	return ctx, cleanup
}

// Truncate empties every metadata table.
func (m *MetadataDB) Truncate(t *testing.T) {
	t.Helper()

	_, err := m.DB.Exec(context.Background(),
		`TRUNCATE dashboard_query_links, dashboards, generated_queries, external_sources CASCADE`)
	if err != nil {
		t.Fatalf("Failed to truncate metadata tables: %v", err)
	}
}

// MySQLSource is a MySQL container playing the role of an external source.
type MySQLSource struct {
	Container testcontainers.Container
	// URL is a mysql:// connection string as a user would register it.
	URL string
	// DSN is the native driver DSN, for fixture setup.
	DSN string
}

var (
	sharedMySQL     *MySQLSource
	sharedMySQLOnce sync.Once
	sharedMySQLErr  error
)

// GetMySQLSource returns a shared MySQL container with an empty "shop" database.
func GetMySQLSource(t *testing.T) *MySQLSource {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMySQLOnce.Do(func() {
		sharedMySQL, sharedMySQLErr = setupMySQL()
	})

	if sharedMySQLErr != nil {
		t.Fatalf("Failed to setup MySQL source: %v", sharedMySQLErr)
	}

	return sharedMySQL
}

func setupMySQL() (*MySQLSource, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        MySQLImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root_password",
			"MYSQL_DATABASE":      "shop",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start mysql container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	src := &MySQLSource{
		Container: container,
		URL:       fmt.Sprintf("mysql://root:root_password@%s:%s/shop", host, port.Port()),
		DSN:       fmt.Sprintf("root:root_password@tcp(%s:%s)/shop?parseTime=true&multiStatements=true", host, port.Port()),
	}

	// Verify connection with retry
	db, err := sql.Open("mysql", src.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	defer db.Close()

	for i := 0; i < 20; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("mysql did not become ready: %w", err)
	}

	return src, nil
}

// Exec runs fixture statements against the MySQL source.
func (s *MySQLSource) Exec(t *testing.T, statements ...string) {
	t.Helper()

	db, err := sql.Open("mysql", s.DSN)
	if err != nil {
		t.Fatalf("Failed to open mysql connection: %v", err)
	}
	defer db.Close()

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to run fixture statement %q: %v", stmt, err)
		}
	}
}
