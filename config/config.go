// Package config loads tumorscope settings from a YAML file, an optional
// .env file and TUMORSCOPE_* environment variables, in that order of
// increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/tumorscope/core/schema"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
)

// Environment variables that override the file.
const (
	EnvConfigFile = "TUMORSCOPE_CONFIG"
	EnvDSN        = "TUMORSCOPE_DSN"
	EnvLogLevel   = "TUMORSCOPE_LOG_LEVEL"
	EnvModelsDir  = "TUMORSCOPE_MODELS_DIR"
	EnvAddr       = "TUMORSCOPE_ADDR"
)

// Config is the full runtime configuration.
type Config struct {
	Schema    SchemaConfig   `yaml:"schema"`
	ModelsDir string         `yaml:"models_dir"`
	Models    []ModelConfig  `yaml:"models"`
	Registry  RegistryConfig `yaml:"registry"`
	Audit     AuditConfig    `yaml:"audit"`
	Explain   ExplainConfig  `yaml:"explain"`
	Server    ServerConfig   `yaml:"server"`
	Log       LogConfig      `yaml:"log"`
}

// SchemaConfig describes the feature schema. Empty Features selects the
// default 19-feature schema.
type SchemaConfig struct {
	Version   string   `yaml:"version"`
	Features  []string `yaml:"features"`
	ExtraKeys string   `yaml:"extra_keys"` // strict or ignore
}

// ModelConfig maps a selectable model name to its artifact.
type ModelConfig struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"` // relative paths resolve against ModelsDir
}

type RegistryConfig struct {
	LoadTimeout time.Duration `yaml:"load_timeout"`
	CacheSize   int           `yaml:"cache_size"`
	Watch       bool          `yaml:"watch"`
}

type AuditConfig struct {
	DSN          string        `yaml:"dsn"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ExplainConfig struct {
	Tolerance float64 `yaml:"tolerance"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the built-in configuration: the five dashboard models
// under models/ and a local SQLite audit file.
func Default() *Config {
	return &Config{
		Schema:    SchemaConfig{Version: schema.DefaultVersion, ExtraKeys: "strict"},
		ModelsDir: "models",
		Models: []ModelConfig{
			{ID: "Logistic Regression", Path: "logistic_regression.json"},
			{ID: "Gradient Boosting", Path: "gradient_boosting.json"},
			{ID: "LightGBM", Path: "lightgbm.json"},
			{ID: "XGBoost", Path: "xgboost.json"},
			{ID: "Catboost", Path: "catboost.json"},
		},
		Registry: RegistryConfig{LoadTimeout: 10 * time.Second, Watch: true},
		Audit:    AuditConfig{DSN: "sqlite://data/audit.db", WriteTimeout: 5 * time.Second},
		Explain:  ExplainConfig{Tolerance: 1e-6},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load reads path (skipped when empty), then the env files (missing files are
// ignored), then applies environment overrides and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to load env file %s", f)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Audit.DSN = getEnvOrDefault(EnvDSN, c.Audit.DSN)
	c.Log.Level = getEnvOrDefault(EnvLogLevel, c.Log.Level)
	c.ModelsDir = getEnvOrDefault(EnvModelsDir, c.ModelsDir)
	c.Server.Addr = getEnvOrDefault(EnvAddr, c.Server.Addr)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// Validate checks every field that has a constrained domain.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return errors.NewValidationError("models", "at least one model is required", 0)
	}
	seen := make(map[string]struct{}, len(c.Models))
	for i, m := range c.Models {
		if strings.TrimSpace(m.ID) == "" {
			return errors.NewValidationError("models.id", "must not be empty", i)
		}
		if m.Path == "" {
			return errors.NewValidationError("models.path", "must not be empty", m.ID)
		}
		if _, dup := seen[m.ID]; dup {
			return errors.NewValidationError("models.id", "duplicate model identifier", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	if _, err := schema.ParseExtraKeyPolicy(c.Schema.ExtraKeys); err != nil {
		return err
	}
	if _, err := c.FeatureSchema(); err != nil {
		return err
	}
	if c.Registry.LoadTimeout < 0 {
		return errors.NewValidationError("registry.load_timeout", "must not be negative", c.Registry.LoadTimeout)
	}
	if c.Registry.CacheSize < 0 {
		return errors.NewValidationError("registry.cache_size", "must not be negative", c.Registry.CacheSize)
	}
	if c.Audit.DSN == "" {
		return errors.NewValidationError("audit.dsn", "must not be empty", c.Audit.DSN)
	}
	if c.Audit.WriteTimeout < 0 {
		return errors.NewValidationError("audit.write_timeout", "must not be negative", c.Audit.WriteTimeout)
	}
	if c.Explain.Tolerance < 0 || c.Explain.Tolerance >= 1 {
		return errors.NewValidationError("explain.tolerance", "must be in [0, 1)", c.Explain.Tolerance)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", err.Error(), c.Log.Level)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return errors.NewValidationError("log.format", "must be console or json", c.Log.Format)
	}
	return nil
}

// FeatureSchema builds the configured schema.
func (c *Config) FeatureSchema() (*schema.Schema, error) {
	if len(c.Schema.Features) == 0 {
		if c.Schema.Version == "" || c.Schema.Version == schema.DefaultVersion {
			return schema.Default(), nil
		}
		return nil, errors.NewValidationError("schema.features", "required for a non-default schema version", c.Schema.Version)
	}
	version := c.Schema.Version
	if version == "" {
		return nil, errors.NewValidationError("schema.version", "required with custom features", "")
	}
	return schema.New(version, c.Schema.Features)
}

// ExtraKeyPolicy returns the parsed schema.extra_keys value.
func (c *Config) ExtraKeyPolicy() schema.ExtraKeyPolicy {
	p, _ := schema.ParseExtraKeyPolicy(c.Schema.ExtraKeys)
	return p
}

// ModelPath resolves the artifact path of m against ModelsDir.
func (c *Config) ModelPath(m ModelConfig) string {
	if filepath.IsAbs(m.Path) || c.ModelsDir == "" {
		return m.Path
	}
	return filepath.Join(c.ModelsDir, m.Path)
}

// LogOptions converts the log section for log.Setup.
func (c *Config) LogOptions() log.Options {
	return log.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
