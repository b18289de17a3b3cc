package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-insights.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Generator  GeneratorConfig  `yaml:"generator"`
	External   ExternalConfig   `yaml:"external"`
	Datasource DatasourceConfig `yaml:"datasource"`

	// EncryptionKey encrypts external source connection strings at rest.
	// Must be a 32-byte key, base64 encoded. Generate with: ekaya-insights genkey
	// Server will fail to start if this is not set or malformed.
	EncryptionKey string `yaml:"-" env:"ENCRYPTION_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds the PostgreSQL metadata store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_insights"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// GeneratorConfig points at the external query generation and rewrite service.
type GeneratorConfig struct {
	BaseURL        string `yaml:"base_url" env:"GENERATOR_BASE_URL" env-default:"http://localhost:8000"`
	APIKey         string `yaml:"-" env:"GENERATOR_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"GENERATOR_TIMEOUT_SECONDS" env-default:"45"`
	// MaxAttempts bounds retries of connection-level failures. Non-2xx responses are never retried.
	MaxAttempts int `yaml:"max_attempts" env:"GENERATOR_MAX_ATTEMPTS" env-default:"1"`
}

// Timeout returns the per-call HTTP timeout.
func (g *GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// ExternalConfig bounds work performed against registered external sources.
type ExternalConfig struct {
	IntrospectionTimeoutSeconds int `yaml:"introspection_timeout_seconds" env:"EXTERNAL_INTROSPECTION_TIMEOUT_SECONDS" env-default:"30"`
	QueryTimeoutSeconds         int `yaml:"query_timeout_seconds" env:"EXTERNAL_QUERY_TIMEOUT_SECONDS" env-default:"30"`
}

// IntrospectionTimeout bounds one schema profiling call.
func (e *ExternalConfig) IntrospectionTimeout() time.Duration {
	return time.Duration(e.IntrospectionTimeoutSeconds) * time.Second
}

// QueryTimeout bounds one query execution.
func (e *ExternalConfig) QueryTimeout() time.Duration {
	return time.Duration(e.QueryTimeoutSeconds) * time.Second
}

// DatasourceConfig holds external session limits.
type DatasourceConfig struct {
	// MaxConnectionsPerUser limits concurrent live sessions per actor.
	MaxConnectionsPerUser int `yaml:"max_connections_per_user" env:"DATASOURCE_MAX_CONNECTIONS_PER_USER" env-default:"10"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD,
// ENCRYPTION_KEY, GENERATOR_API_KEY) must come from environment variables.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.validateLimits(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// validateLimits rejects non-positive limits. cleanenv applies env-default to
// any zero field, so a 0 in YAML reads as an absent key and takes the default.
// A 0 set through the environment is kept and rejected here.
func (c *Config) validateLimits() error {
	if c.Generator.TimeoutSeconds <= 0 {
		return fmt.Errorf("generator.timeout_seconds must be positive, got %d", c.Generator.TimeoutSeconds)
	}
	if c.Generator.MaxAttempts < 1 {
		c.Generator.MaxAttempts = 1
	}
	if c.External.IntrospectionTimeoutSeconds <= 0 || c.External.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("external timeouts must be positive")
	}
	if c.Datasource.MaxConnectionsPerUser <= 0 {
		return fmt.Errorf("datasource.max_connections_per_user must be positive, got %d", c.Datasource.MaxConnectionsPerUser)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, url, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(url)
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
