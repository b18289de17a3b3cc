package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := `
port: "3480"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
generator:
  base_url: "http://llm.internal:8000"
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Change to temp directory so Load() finds config.yaml
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	os.Unsetenv("PGHOST")
	os.Unsetenv("GENERATOR_BASE_URL")

	t.Setenv("PORT", "4480")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("GENERATOR_API_KEY", "sk-test")
	t.Setenv("ENCRYPTION_KEY", "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM=")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4480" {
		t.Errorf("expected Port=4480 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Generator.BaseURL != "http://llm.internal:8000" {
		t.Errorf("expected Generator.BaseURL from yaml, got %s", cfg.Generator.BaseURL)
	}
	if cfg.Generator.APIKey != "sk-test" {
		t.Errorf("expected Generator.APIKey from env, got %q", cfg.Generator.APIKey)
	}
	if cfg.EncryptionKey == "" {
		t.Error("expected EncryptionKey from env")
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"), "test-version")
	if err == nil {
		t.Error("expected error when config.yaml is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"GENERATOR_TIMEOUT_SECONDS",
		"EXTERNAL_INTROSPECTION_TIMEOUT_SECONDS",
		"EXTERNAL_QUERY_TIMEOUT_SECONDS",
		"DATASOURCE_MAX_CONNECTIONS_PER_USER",
		"GENERATOR_MAX_ATTEMPTS",
	} {
		os.Unsetenv(key)
	}

	cfg, err := LoadFile(writeConfig(t, "env: \"test\"\n"), "v")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Generator.TimeoutSeconds != 45 {
		t.Errorf("expected Generator.TimeoutSeconds=45 (default), got %d", cfg.Generator.TimeoutSeconds)
	}
	if cfg.Generator.Timeout().Seconds() != 45 {
		t.Errorf("expected Generator.Timeout()=45s, got %s", cfg.Generator.Timeout())
	}
	if cfg.Generator.MaxAttempts != 1 {
		t.Errorf("expected Generator.MaxAttempts=1 (default), got %d", cfg.Generator.MaxAttempts)
	}
	if cfg.External.IntrospectionTimeout().Seconds() != 30 {
		t.Errorf("expected introspection timeout 30s, got %s", cfg.External.IntrospectionTimeout())
	}
	if cfg.External.QueryTimeout().Seconds() != 30 {
		t.Errorf("expected query timeout 30s, got %s", cfg.External.QueryTimeout())
	}
	if cfg.Datasource.MaxConnectionsPerUser != 10 {
		t.Errorf("expected MaxConnectionsPerUser=10 (default), got %d", cfg.Datasource.MaxConnectionsPerUser)
	}
	if cfg.Port != "3480" {
		t.Errorf("expected Port=3480 (default), got %s", cfg.Port)
	}
}

func TestLoad_ExternalConfigFromYAML(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
external:
  introspection_timeout_seconds: 12
  query_timeout_seconds: 7
datasource:
  max_connections_per_user: 3
`), "v")
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.External.IntrospectionTimeoutSeconds != 12 {
		t.Errorf("expected IntrospectionTimeoutSeconds=12, got %d", cfg.External.IntrospectionTimeoutSeconds)
	}
	if cfg.External.QueryTimeoutSeconds != 7 {
		t.Errorf("expected QueryTimeoutSeconds=7, got %d", cfg.External.QueryTimeoutSeconds)
	}
	if cfg.Datasource.MaxConnectionsPerUser != 3 {
		t.Errorf("expected MaxConnectionsPerUser=3, got %d", cfg.Datasource.MaxConnectionsPerUser)
	}
}

func TestLoad_RejectsNonPositiveLimits(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"generator timeout", "generator:\n  timeout_seconds: -5\n"},
		{"introspection timeout", "external:\n  introspection_timeout_seconds: -1\n"},
		{"query timeout", "external:\n  query_timeout_seconds: -1\n"},
		{"session limit", "datasource:\n  max_connections_per_user: -2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.yaml), "v")
			if err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_RejectsZeroLimitsFromEnv(t *testing.T) {
	for _, key := range []string{
		"GENERATOR_TIMEOUT_SECONDS",
		"EXTERNAL_QUERY_TIMEOUT_SECONDS",
		"DATASOURCE_MAX_CONNECTIONS_PER_USER",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "0")
			_, err := LoadFile(writeConfig(t, "env: local\n"), "v")
			if err == nil {
				t.Errorf("expected error for %s=0", key)
			}
		})
	}
}

func TestLoad_ZeroLimitsInYAMLTakeDefaults(t *testing.T) {
	for _, key := range []string{
		"GENERATOR_TIMEOUT_SECONDS",
		"EXTERNAL_QUERY_TIMEOUT_SECONDS",
		"DATASOURCE_MAX_CONNECTIONS_PER_USER",
	} {
		os.Unsetenv(key)
	}

	cfg, err := LoadFile(writeConfig(t, "generator:\n  timeout_seconds: 0\ndatasource:\n  max_connections_per_user: 0\n"), "v")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Generator.TimeoutSeconds != 45 {
		t.Errorf("expected TimeoutSeconds=45, got %d", cfg.Generator.TimeoutSeconds)
	}
	if cfg.Datasource.MaxConnectionsPerUser != 10 {
		t.Errorf("expected MaxConnectionsPerUser=10, got %d", cfg.Datasource.MaxConnectionsPerUser)
	}
}

func TestParseJWKSEndpoints(t *testing.T) {
	got := parseJWKSEndpoints("https://auth.example.com=https://auth.example.com/.well-known/jwks.json, dev = http://localhost:5002/jwks ,garbage")

	if len(got) != 2 {
		t.Fatalf("expected 2 endpoints, got %d: %v", len(got), got)
	}
	if got["https://auth.example.com"] != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("unexpected issuer mapping: %v", got)
	}
	if got["dev"] != "http://localhost:5002/jwks" {
		t.Errorf("expected trimmed dev mapping, got %q", got["dev"])
	}

	if len(parseJWKSEndpoints("")) != 0 {
		t.Error("expected empty map for empty input")
	}
}

func TestValidateTLS(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	for _, p := range []string{cert, key} {
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", p, err)
		}
	}

	tests := []struct {
		name    string
		cert    string
		key     string
		wantErr string
	}{
		{name: "none", cert: "", key: ""},
		{name: "both", cert: cert, key: key},
		{name: "only cert", cert: cert, wantErr: "must be provided together"},
		{name: "only key", key: key, wantErr: "must be provided together"},
		{name: "missing cert", cert: filepath.Join(dir, "nope.pem"), key: key, wantErr: "cert file does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{TLSCertPath: tt.cert, TLSKeyPath: tt.key}
			err := c.validateTLS()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	want := "host=h port=5433 user=u password=p dbname=d sslmode=require"
	if got := c.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
