package postgres

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "prefer"
}

// FromParams creates a Config from discrete connection parts.
func FromParams(p datasource.ConnectionParams) (*Config, error) {
	if p.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if p.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if p.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	cfg := &Config{
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
		Database: p.Database,
		SSLMode:  DefaultSSLMode(),
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	return cfg, nil
}

// ConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are escaped so passwords containing @, /, # or ?
// do not break URL parsing. Loopback hosts are resolved for Docker.
func (c *Config) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     config.ResolveSourceHost(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// normalizeConnString strips a "+driver" suffix from the scheme
// ("postgresql+psycopg2://") so pgx accepts the URL.
func normalizeConnString(connString string) string {
	scheme, rest, ok := strings.Cut(connString, "://")
	if !ok {
		return connString
	}
	if base, _, hasDriver := strings.Cut(scheme, "+"); hasDriver {
		return base + "://" + rest
	}
	return connString
}
