package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/ekaya-inc/ekaya-insights/pkg/adapters"
	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/crypto"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/generator"
	"github.com/ekaya-inc/ekaya-insights/pkg/handlers"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/middleware"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ekaya-insights",
	Short:         "Analytical query generation and dashboards over external databases",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, genkeyCmd, introspectCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadRuntime loads configuration and builds the process logger.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openMetadataStore connects to PostgreSQL and applies pending migrations.
func openMetadataStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.ConnectionString(),
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MaxIdleConns,
		ApplicationName: "ekaya-insights",
	})
	if err != nil {
		return nil, err
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("generator", cfg.Generator.BaseURL),
		zap.Strings("adapters", adapterNames()))

	encryptor, err := crypto.NewCredentialEncryptor(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("Invalid ENCRYPTION_KEY", zap.Error(err))
	}

	db, err := openMetadataStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer db.Close()

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)

	// Adapters and upstream clients
	factory := datasource.NewAdapterFactory(logger.Named("datasource"))
	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		MaxConnectionsPerUser: cfg.Datasource.MaxConnectionsPerUser,
	}, logger.Named("connections"))
	gen := generator.NewClient(&cfg.Generator, logger)
	auditor := audit.NewSecurityAuditor(logger)

	// Repositories
	sourceRepo := repositories.NewExternalSourceRepository()
	queryRepo := repositories.NewGeneratedQueryRepository()
	dashboardRepo := repositories.NewDashboardRepository()
	transactor := database.NewTransactor()

	// Services
	introspector := services.NewSchemaIntrospector(factory, cfg.External.IntrospectionTimeout(), logger)
	sessions := services.NewSessionFactory(factory, encryptor, connManager, logger)
	sourceService := services.NewExternalSourceService(sourceRepo, queryRepo, introspector, factory, encryptor, gen, auditor, logger)
	executionService := services.NewQueryExecutionService(sourceRepo, queryRepo, sessions, auditor, cfg.External.QueryTimeout(), logger)
	schedulerService := services.NewQuerySchedulerService(sourceRepo, queryRepo, transactor, logger)
	dashboardService := services.NewDashboardService(dashboardRepo, sourceRepo, queryRepo, executionService, transactor, logger)
	timeWindowService := services.NewTimeWindowService(dashboardRepo, sourceRepo, queryRepo, gen, transactor, logger)

	mux := http.NewServeMux()
	scope := handlers.ScopeMiddleware(database.WithScopeContext(db, logger))

	handlers.NewHealthHandler(cfg, connManager, logger).RegisterRoutes(mux)
	handlers.NewSourcesHandler(sourceService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewQueriesHandler(sourceService, schedulerService, executionService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewDashboardsHandler(dashboardService, timeWindowService, logger).RegisterRoutes(mux, authMiddleware, scope)

	handler := middleware.RequestLogger(logger)(middleware.Recoverer(logger)(mux))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Chart data executes every linked query sequentially.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		useTLS := cfg.TLSCertPath != ""
		logger.Info("Starting ekaya-insights",
			zap.String("addr", server.Addr),
			zap.Bool("tls", useTLS))
		if useTLS {
			errCh <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func adapterNames() []string {
	infos := datasource.RegisteredAdapters()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, string(info.Dialect))
	}
	return names
}
