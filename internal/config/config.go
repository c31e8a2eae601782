package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/docservice/internal/store"
)

// Supported database drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Database DatabaseConfig  `yaml:"database"`
	Log      LogConfig       `yaml:"log"`
	Snapshot SnapshotConfig  `yaml:"snapshot"`
	Services []ServiceConfig `yaml:"services"`
}

// DatabaseConfig selects and configures the document backend.
type DatabaseConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Mongo  MongoConfig `yaml:"mongo"`
}

// MongoConfig contains MongoDB connection settings.
type MongoConfig struct {
	URI            string   `yaml:"uri"`
	Database       string   `yaml:"database"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SnapshotConfig contains SQLite snapshot settings. An empty Bucket keeps
// snapshots local-only.
type SnapshotConfig struct {
	Dir       string   `yaml:"dir"`
	Interval  Duration `yaml:"interval"`
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// ServiceConfig declares one CRUD service bound to a collection.
type ServiceConfig struct {
	Name       string   `yaml:"name"`
	Collection string   `yaml:"collection"`
	VirtualID  bool     `yaml:"virtual_id"`
	Unique     []string `yaml:"unique"`
	RenameID   bool     `yaml:"rename_id"`
}

// CollectionName returns the configured collection, falling back to the
// service name.
func (s ServiceConfig) CollectionName() string {
	if s.Collection != "" {
		return s.Collection
	}
	return s.Name
}

// Service returns the service config with the given name.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → .env → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("DOCSERVICE_CONFIG_PATH", "config/docservice.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/docservice.db",
			Mongo: MongoConfig{
				Database:       "docservice",
				ConnectTimeout: Duration(10 * time.Second),
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Snapshot: SnapshotConfig{
			Dir:       "data/snapshots",
			Interval:  Duration(1 * time.Hour),
			URLExpiry: Duration(15 * time.Minute),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// loadDotEnv populates the process environment from a dotenv file.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DOCSERVICE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DOCSERVICE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DOCSERVICE_MONGO_URI"); v != "" {
		cfg.Database.Mongo.URI = v
	}
	if v := os.Getenv("DOCSERVICE_MONGO_DATABASE"); v != "" {
		cfg.Database.Mongo.Database = v
	}
	if v := os.Getenv("DOCSERVICE_MONGO_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.Mongo.ConnectTimeout = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("DOCSERVICE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DOCSERVICE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Snapshot
	if v := os.Getenv("DOCSERVICE_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("DOCSERVICE_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshot.Interval = Duration(d)
		}
	}
	if v := os.Getenv("DOCSERVICE_S3_BUCKET"); v != "" {
		cfg.Snapshot.Bucket = v
	}
	if v := os.Getenv("DOCSERVICE_S3_ENDPOINT"); v != "" {
		cfg.Snapshot.Endpoint = v
	}
	if v := os.Getenv("DOCSERVICE_S3_REGION"); v != "" {
		cfg.Snapshot.Region = v
	}
	if v := os.Getenv("DOCSERVICE_S3_ACCESS_KEY"); v != "" {
		cfg.Snapshot.AccessKey = v
	}
	if v := os.Getenv("DOCSERVICE_S3_SECRET_KEY"); v != "" {
		cfg.Snapshot.SecretKey = v
	}
	if v := os.Getenv("DOCSERVICE_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Snapshot.UseSSL = &b
		}
	}
	if v := os.Getenv("DOCSERVICE_S3_URL_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshot.URLExpiry = Duration(d)
		}
	}
}

// validate checks the backend selection and every service declaration.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("database.mongo.uri is required for the mongo driver")
		}
		if c.Database.Mongo.Database == "" {
			return errors.New("database.mongo.database is required for the mongo driver")
		}
		if c.Database.Mongo.ConnectTimeout <= 0 {
			return fmt.Errorf("database.mongo.connect_timeout must be positive, got %s",
				time.Duration(c.Database.Mongo.ConnectTimeout))
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Snapshot.Bucket != "" && c.Snapshot.Endpoint == "" {
		return errors.New("snapshot.endpoint is required when snapshot.bucket is set")
	}

	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if err := store.ValidateName(s.Name); err != nil {
			return fmt.Errorf("services[%d].name: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("services[%d]: duplicate service name %q", i, s.Name)
		}
		seen[s.Name] = true
		if err := store.ValidateName(s.CollectionName()); err != nil {
			return fmt.Errorf("services[%d].collection: %w", i, err)
		}
		for _, f := range s.Unique {
			if err := store.ValidateFieldName(f); err != nil {
				return fmt.Errorf("services[%d].unique: %w", i, err)
			}
		}
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
