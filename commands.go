package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/crypto"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending metadata store migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := openMetadataStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		db.Close()
		return nil
	},
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Print a new ENCRYPTION_KEY value",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var (
	introspectDialect string
	introspectConn    string
	introspectFormat  string
	introspectTimeout time.Duration
)

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Profile an external database and print its schema",
	Long: `Connect to an external database, discover its tables, columns, keys and
temporal range, and print the profile. Nothing is stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if introspectConn == "" {
			return fmt.Errorf("--conn is required")
		}

		dialect, err := resolveDialect(introspectDialect, introspectConn)
		if err != nil {
			return err
		}

		logger, err := logging.NewLogger("local")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		factory := datasource.NewAdapterFactory(logger.Named("datasource"))
		profile, err := services.NewSchemaIntrospector(factory, introspectTimeout, logger).
			Profile(cmd.Context(), introspectConn, dialect)
		if err != nil {
			logger.Error("Introspection failed",
				zap.String("conn", logging.SanitizeConnectionString(introspectConn)),
				zap.Error(err))
			return err
		}

		return writeProfile(cmd.OutOrStdout(), profile, introspectFormat)
	},
}

func init() {
	introspectCmd.Flags().StringVar(&introspectDialect, "dialect", "", "postgres, mysql, sqlite or mssql (inferred from --conn when empty)")
	introspectCmd.Flags().StringVar(&introspectConn, "conn", "", "connection string of the external database")
	introspectCmd.Flags().StringVar(&introspectFormat, "format", "yaml", "output format: yaml or json")
	introspectCmd.Flags().DurationVar(&introspectTimeout, "timeout", services.DefaultIntrospectionTimeout, "introspection deadline")
}

func resolveDialect(flag, conn string) (models.Dialect, error) {
	if flag != "" {
		d, ok := models.ParseDialect(flag)
		if !ok {
			return "", fmt.Errorf("unsupported dialect %q", flag)
		}
		return d, nil
	}
	d, ok := datasource.InferDialect(conn)
	if !ok {
		return "", fmt.Errorf("cannot infer dialect from connection string; pass --dialect")
	}
	return d, nil
}

func writeProfile(w io.Writer, profile *models.SchemaProfile, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(profile); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
