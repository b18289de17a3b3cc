package sqlite

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
)

const memoryPath = ":memory:"

// BuildConnectionString returns a sqlite:/// URL for a database file.
// Only Database is used; it names the file path.
func BuildConnectionString(p datasource.ConnectionParams) (string, error) {
	if p.Database == "" {
		return "", fmt.Errorf("database file path is required")
	}
	return "sqlite:///" + p.Database, nil
}

// filePath extracts the database path from a connection string.
// "sqlite:///rel.db" is relative, "sqlite:////abs/path.db" absolute, and a
// bare path is used as-is.
func filePath(connString string) (string, error) {
	scheme, rest, isURL := strings.Cut(connString, "://")
	if !isURL {
		if connString == "" {
			return "", fmt.Errorf("database file path is required")
		}
		return connString, nil
	}

	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")
	if base != "sqlite" && base != "sqlite3" {
		return "", fmt.Errorf("unsupported scheme %q for SQLite", scheme)
	}

	path := strings.TrimPrefix(rest, "/")
	if path == "" {
		return memoryPath, nil
	}
	return path, nil
}

// driverDSN builds the go-sqlite3 DSN. Files are opened read-only and must
// already exist.
func driverDSN(path string) string {
	if path == memoryPath {
		return memoryPath
	}
	return "file:" + path + "?mode=ro"
}
