package mssql

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

// Config contains SQL Server connection options. Only SQL authentication
// (username/password) is supported.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromParams creates a Config from discrete connection parts.
func FromParams(p datasource.ConnectionParams) (*Config, error) {
	cfg := &Config{
		Host:              p.Host,
		Port:              p.Port,
		Database:          p.Database,
		Username:          p.User,
		Password:          p.Password,
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config has every required field.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required for SQL authentication")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// ConnectionString builds a sqlserver:// URL accepted by go-mssqldb.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Set("database", c.Database)
	query.Set("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Set("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Set("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     config.ResolveSourceHost(c.Host) + ":" + strconv.Itoa(c.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// normalizeConnString rewrites mssql:// and mssql+driver:// URLs to the
// sqlserver:// form. A path component names the database, and ODBC-only
// query parameters are dropped.
func normalizeConnString(connString string) (string, error) {
	scheme, _, ok := strings.Cut(connString, "://")
	if !ok {
		// ADO-style "server=...;user id=..." strings pass through.
		return connString, nil
	}

	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")
	if base != "mssql" && base != "sqlserver" {
		return "", fmt.Errorf("unsupported scheme %q for SQL Server", scheme)
	}

	u, err := url.Parse("sqlserver" + connString[len(scheme):])
	if err != nil {
		return "", fmt.Errorf("parse SQL Server connection string: %w", err)
	}

	q := u.Query()
	q.Del("driver")
	if db := strings.Trim(u.Path, "/"); db != "" && q.Get("database") == "" {
		q.Set("database", db)
	}
	u.Path = ""
	u.RawQuery = q.Encode()
	return u.String(), nil
}
