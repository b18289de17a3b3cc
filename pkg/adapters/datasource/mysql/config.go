package mysql

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// BuildConnectionString assembles a mysql:// URL with escaped credentials.
func BuildConnectionString(p datasource.ConnectionParams) (string, error) {
	if p.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	if p.User == "" {
		return "", fmt.Errorf("user is required")
	}
	if p.Database == "" {
		return "", fmt.Errorf("database is required")
	}
	port := p.Port
	if port == 0 {
		port = DefaultPort()
	}

	u := url.URL{
		Scheme: "mysql",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:   "/" + p.Database,
	}
	return u.String(), nil
}

// toDriverConfig converts a connection string into a driver config.
// Accepts mysql:// or mysql+driver:// URLs and native DSNs
// ("user:pass@tcp(host:3306)/db"). parseTime is always enabled so DATE and
// DATETIME values scan as time.Time.
func toDriverConfig(connString string) (*mysql.Config, error) {
	scheme, _, isURL := strings.Cut(connString, "://")
	if !isURL {
		cfg, err := mysql.ParseDSN(connString)
		if err != nil {
			return nil, fmt.Errorf("parse mysql DSN: %w", err)
		}
		cfg.ParseTime = true
		return cfg, nil
	}

	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")
	if base != "mysql" && base != "mariadb" {
		return nil, fmt.Errorf("unsupported scheme %q for MySQL", scheme)
	}

	u, err := url.Parse("mysql" + connString[len(scheme):])
	if err != nil {
		return nil, fmt.Errorf("parse mysql connection string: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(DefaultPort())
	}
	cfg.Addr = net.JoinHostPort(config.ResolveSourceHost(host), port)
	cfg.DBName = strings.Trim(u.Path, "/")

	// Options are re-parsed through the DSN parser so the driver applies them
	// exactly as it would for a native DSN.
	dsn := cfg.FormatDSN()
	q := u.Query()
	for _, key := range driverOptions {
		if v := q.Get(key); v != "" {
			sep := "&"
			if !strings.Contains(dsn, "?") {
				sep = "?"
			}
			dsn += sep + key + "=" + url.QueryEscape(v)
		}
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql connection options: %w", err)
	}
	return parsed, nil
}

// driverOptions are the URL query parameters forwarded to the driver.
// Anything else (SQLAlchemy driver flags) is ignored.
var driverOptions = []string{"charset", "collation", "loc", "readTimeout", "timeout", "tls", "writeTimeout"}
