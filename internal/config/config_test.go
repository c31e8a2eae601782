package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/docservice/internal/store"
)

var envVars = []string{
	"DOCSERVICE_CONFIG_PATH",
	"DOCSERVICE_DB_DRIVER",
	"DOCSERVICE_DB_PATH",
	"DOCSERVICE_MONGO_URI",
	"DOCSERVICE_MONGO_DATABASE",
	"DOCSERVICE_MONGO_TIMEOUT",
	"DOCSERVICE_LOG_LEVEL",
	"DOCSERVICE_LOG_FORMAT",
	"DOCSERVICE_SNAPSHOT_DIR",
	"DOCSERVICE_SNAPSHOT_INTERVAL",
	"DOCSERVICE_S3_BUCKET",
	"DOCSERVICE_S3_ENDPOINT",
	"DOCSERVICE_S3_REGION",
	"DOCSERVICE_S3_ACCESS_KEY",
	"DOCSERVICE_S3_SECRET_KEY",
	"DOCSERVICE_S3_USE_SSL",
	"DOCSERVICE_S3_URL_EXPIRY",
}

// Helper to clear all config-related env vars, before and after the test
func clearEnv(t *testing.T) {
	t.Helper()
	unset := func() {
		for _, v := range envVars {
			os.Unsetenv(v)
		}
	}
	unset()
	t.Cleanup(unset)
}

// writeConfig writes YAML content to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docservice.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// dur converts Duration to time.Duration for comparison
func dur(d Duration) time.Duration {
	return time.Duration(d)
}

// Test: Default values when no config file and no env vars
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DOCSERVICE_CONFIG_PATH", "/nonexistent/path/docservice.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Database.Path != "data/docservice.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "data/docservice.db")
	}
	if cfg.Database.Mongo.Database != "docservice" {
		t.Errorf("Database.Mongo.Database = %q, want %q", cfg.Database.Mongo.Database, "docservice")
	}
	if dur(cfg.Database.Mongo.ConnectTimeout) != 10*time.Second {
		t.Errorf("Database.Mongo.ConnectTimeout = %v, want 10s", cfg.Database.Mongo.ConnectTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if len(cfg.Services) != 0 {
		t.Errorf("Services = %v, want none", cfg.Services)
	}
	if cfg.Snapshot.Bucket != "" {
		t.Errorf("Snapshot.Bucket = %q, want empty (local-only)", cfg.Snapshot.Bucket)
	}
	if dur(cfg.Snapshot.Interval) != time.Hour {
		t.Errorf("Snapshot.Interval = %v, want 1h", cfg.Snapshot.Interval)
	}
	if dur(cfg.Snapshot.URLExpiry) != 15*time.Minute {
		t.Errorf("Snapshot.URLExpiry = %v, want 15m", cfg.Snapshot.URLExpiry)
	}
}

// Test: S3 credentials come from env only
func TestLoad_SnapshotEnv(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
snapshot:
  bucket: backups
  endpoint: minio:9000
  url_expiry: 1h
`)
	os.Setenv("DOCSERVICE_CONFIG_PATH", path)
	os.Setenv("DOCSERVICE_S3_ACCESS_KEY", "access")
	os.Setenv("DOCSERVICE_S3_SECRET_KEY", "secret")
	os.Setenv("DOCSERVICE_S3_USE_SSL", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Snapshot.Bucket != "backups" {
		t.Errorf("Snapshot.Bucket = %q, want %q", cfg.Snapshot.Bucket, "backups")
	}
	if cfg.Snapshot.AccessKey != "access" || cfg.Snapshot.SecretKey != "secret" {
		t.Errorf("Snapshot keys = %q/%q, want access/secret", cfg.Snapshot.AccessKey, cfg.Snapshot.SecretKey)
	}
	if cfg.Snapshot.UseSSL == nil || *cfg.Snapshot.UseSSL {
		t.Errorf("Snapshot.UseSSL = %v, want false", cfg.Snapshot.UseSSL)
	}
	if dur(cfg.Snapshot.URLExpiry) != time.Hour {
		t.Errorf("Snapshot.URLExpiry = %v, want 1h", cfg.Snapshot.URLExpiry)
	}
}

// Test: Environment variables override defaults
func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("DOCSERVICE_CONFIG_PATH", "/nonexistent/path/docservice.yaml")
	os.Setenv("DOCSERVICE_DB_DRIVER", "MONGO")
	os.Setenv("DOCSERVICE_MONGO_URI", "mongodb://localhost:27017")
	os.Setenv("DOCSERVICE_MONGO_DATABASE", "blog")
	os.Setenv("DOCSERVICE_MONGO_TIMEOUT", "3s")
	os.Setenv("DOCSERVICE_LOG_LEVEL", "debug")
	os.Setenv("DOCSERVICE_LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != DriverMongo {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverMongo)
	}
	if cfg.Database.Mongo.URI != "mongodb://localhost:27017" {
		t.Errorf("Database.Mongo.URI = %q", cfg.Database.Mongo.URI)
	}
	if cfg.Database.Mongo.Database != "blog" {
		t.Errorf("Database.Mongo.Database = %q, want %q", cfg.Database.Mongo.Database, "blog")
	}
	if dur(cfg.Database.Mongo.ConnectTimeout) != 3*time.Second {
		t.Errorf("Database.Mongo.ConnectTimeout = %v, want 3s", cfg.Database.Mongo.ConnectTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

// Test: Empty env var does NOT override (only non-empty values override)
func TestLoad_EmptyEnvVarDoesNotOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("DOCSERVICE_CONFIG_PATH", "/nonexistent/path/docservice.yaml")
	os.Setenv("DOCSERVICE_DB_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "data/docservice.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
}

// Test: YAML file loading including service declarations
func TestLoadFromFile_ValidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
database:
  driver: sqlite
  path: /yaml/path.db
log:
  level: warn
services:
  - name: users
    virtual_id: true
    unique: [email, profile.handle]
  - name: posts
    collection: blog-posts
    rename_id: true
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Database.Path != "/yaml/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/yaml/path.db")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("len(Services) = %d, want 2", len(cfg.Services))
	}

	users, ok := cfg.Service("users")
	if !ok {
		t.Fatal("Service(users) not found")
	}
	if !users.VirtualID {
		t.Error("users.VirtualID = false, want true")
	}
	if users.CollectionName() != "users" {
		t.Errorf("users.CollectionName() = %q, want %q", users.CollectionName(), "users")
	}
	if strings.Join(users.Unique, ",") != "email,profile.handle" {
		t.Errorf("users.Unique = %v", users.Unique)
	}

	posts, _ := cfg.Service("posts")
	if posts.CollectionName() != "blog-posts" {
		t.Errorf("posts.CollectionName() = %q, want %q", posts.CollectionName(), "blog-posts")
	}
	if !posts.RenameID {
		t.Error("posts.RenameID = false, want true")
	}
	if posts.VirtualID {
		t.Error("posts.VirtualID should default to false")
	}

	if _, ok := cfg.Service("missing"); ok {
		t.Error("Service(missing) should not be found")
	}
}

// Test: Env vars override YAML values
func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
database:
  path: /yaml/path.db
log:
  level: warn
`)
	os.Setenv("DOCSERVICE_CONFIG_PATH", path)
	os.Setenv("DOCSERVICE_DB_PATH", "/env/path.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/env/path.db" {
		t.Errorf("Database.Path = %q, want %q (env override)", cfg.Database.Path, "/env/path.db")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q (from YAML)", cfg.Log.Level, "warn")
	}
}

// Test: .env values apply but never replace variables already set
func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	dotenv := "DOCSERVICE_LOG_LEVEL=debug\nDOCSERVICE_DB_PATH=/dotenv/path.db\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	os.Setenv("DOCSERVICE_CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	os.Setenv("DOCSERVICE_DB_PATH", "/env/path.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from .env)", cfg.Log.Level, "debug")
	}
	if cfg.Database.Path != "/env/path.db" {
		t.Errorf("Database.Path = %q, want %q (real env wins)", cfg.Database.Path, "/env/path.db")
	}
}

// Test: Invalid YAML returns error
func TestLoadFromFile_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
database:
  path: [unterminated
`)

	if _, err := LoadFromFile(path); err == nil {
		t.Error("LoadFromFile() expected error for invalid YAML, got nil")
	}
}

// Test: LoadFromFile requires the file to exist
func TestLoadFromFile_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadFromFile() expected error for missing file, got nil")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

// Test: Invalid duration string returns error
func TestLoadFromFile_InvalidDuration(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
database:
  mongo:
    connect_timeout: not_a_duration
`)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		wantIs  error
	}{
		{
			name:    "unknown driver",
			yaml:    "database:\n  driver: postgres\n",
			wantErr: "unknown database driver",
		},
		{
			name:    "sqlite without path",
			yaml:    "database:\n  driver: sqlite\n  path: \"\"\n",
			wantErr: "database.path is required",
		},
		{
			name:    "mongo without uri",
			yaml:    "database:\n  driver: mongo\n",
			wantErr: "database.mongo.uri is required",
		},
		{
			name:    "mongo zero connect timeout",
			yaml:    "database:\n  driver: mongo\n  mongo:\n    uri: mongodb://localhost:27017\n    connect_timeout: 0s\n",
			wantErr: "database.mongo.connect_timeout must be positive",
		},
		{
			name:   "invalid service name",
			yaml:   "database:\n  driver: memory\nservices:\n  - name: Users\n",
			wantIs: store.ErrInvalidName,
		},
		{
			name:   "missing service name",
			yaml:   "database:\n  driver: memory\nservices:\n  - collection: users\n",
			wantIs: store.ErrInvalidName,
		},
		{
			name:   "invalid collection",
			yaml:   "database:\n  driver: memory\nservices:\n  - name: users\n    collection: \"a//b\"\n",
			wantIs: store.ErrInvalidName,
		},
		{
			name:    "duplicate service",
			yaml:    "database:\n  driver: memory\nservices:\n  - name: users\n  - name: users\n",
			wantErr: "duplicate service name",
		},
		{
			name:   "invalid unique field",
			yaml:   "database:\n  driver: memory\nservices:\n  - name: users\n    unique: [\"bad field\"]\n",
			wantIs: store.ErrInvalidName,
		},
		{
			name:    "bucket without endpoint",
			yaml:    "database:\n  driver: memory\nsnapshot:\n  bucket: backups\n",
			wantErr: "snapshot.endpoint is required",
		},
		{
			name: "memory driver with services",
			yaml: "database:\n  driver: memory\nservices:\n  - name: users\n    unique: [email]\n",
		},
		{
			name: "mongo driver complete",
			yaml: "database:\n  driver: mongo\n  mongo:\n    uri: mongodb://localhost:27017\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.yaml))
			switch {
			case tt.wantErr == "" && tt.wantIs == nil:
				if err != nil {
					t.Errorf("LoadFromFile() error = %v, want nil", err)
				}
			case tt.wantIs != nil:
				if !errors.Is(err, tt.wantIs) {
					t.Errorf("LoadFromFile() error = %v, want %v", err, tt.wantIs)
				}
			default:
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("LoadFromFile() error = %v, want containing %q", err, tt.wantErr)
				}
			}
		})
	}
}

// Test: Duration round-trips through YAML as a string
func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(MongoConfig{ConnectTimeout: Duration(90 * time.Second)})
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), "connect_timeout: 1m30s") {
		t.Errorf("yaml = %q, want connect_timeout: 1m30s", out)
	}
}
