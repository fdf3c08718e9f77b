// Package config handles configuration loading for bondgen.
// It supports YAML config files with environment variable overrides and
// reads a .env file from the working directory when one exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/drafts"
)

// EnvPrefix prefixes every environment override, e.g. BONDGEN_SERVER_PORT.
const EnvPrefix = "BONDGEN"

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   yaml:"server"`
	Assembly AssemblyConfig `mapstructure:"assembly" yaml:"assembly"`
	Drafts   DraftsConfig   `mapstructure:"drafts"   yaml:"drafts"`
	Auth     AuthConfig     `mapstructure:"auth"     yaml:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string   `mapstructure:"host"                yaml:"host"`
	Port              int      `mapstructure:"port"                yaml:"port"`
	BasePath          string   `mapstructure:"base_path"           yaml:"base_path"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxUploadMB       int      `mapstructure:"max_upload_mb"       yaml:"max_upload_mb"`
	CORSOrigins       []string `mapstructure:"cors_origins"        yaml:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RequestTimeout returns the per-request timeout.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// MaxUploadBytes returns the request body limit.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

// AssemblyConfig holds pipeline defaults. Unlike bond.NumberingConfig the
// label prefix is never unset: the default "R-" applies only when the key is
// absent, and an explicit "" (in YAML or as an empty
// BONDGEN_ASSEMBLY_LABEL_PREFIX) numbers bonds without a prefix.
type AssemblyConfig struct {
	Workers        int    `mapstructure:"workers"         yaml:"workers"`
	LabelPrefix    string `mapstructure:"label_prefix"    yaml:"label_prefix"`
	StartingNumber int    `mapstructure:"starting_number" yaml:"starting_number"`
}

// Numbering returns the configured defaults as a numbering config with an
// explicit prefix.
func (a AssemblyConfig) Numbering() bond.NumberingConfig {
	prefix := a.LabelPrefix
	return bond.NumberingConfig{StartingNumber: a.StartingNumber, Prefix: &prefix}
}

// DraftsConfig selects the draft store.
type DraftsConfig struct {
	Backend       string `mapstructure:"backend"        yaml:"backend"` // "sqlite", "postgres", "s3"
	SQLitePath    string `mapstructure:"sqlite_path"    yaml:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"   yaml:"postgres_dsn"`
	S3Bucket      string `mapstructure:"s3_bucket"      yaml:"s3_bucket"`
	S3Region      string `mapstructure:"s3_region"      yaml:"s3_region"`
	S3Prefix      string `mapstructure:"s3_prefix"      yaml:"s3_prefix"`
	S3Endpoint    string `mapstructure:"s3_endpoint"    yaml:"s3_endpoint"`
	TTLHours      int    `mapstructure:"ttl_hours"      yaml:"ttl_hours"`
	PurgeSchedule string `mapstructure:"purge_schedule" yaml:"purge_schedule"`
}

// Options converts the section into store options.
func (d DraftsConfig) Options() drafts.Options {
	return drafts.Options{
		Backend:     d.Backend,
		SQLitePath:  d.SQLitePath,
		PostgresDSN: d.PostgresDSN,
		S3: drafts.S3Options{
			Bucket:   d.S3Bucket,
			Region:   d.S3Region,
			Prefix:   d.S3Prefix,
			Endpoint: d.S3Endpoint,
		},
	}
}

// TTL returns how long an untouched draft is kept.
func (d DraftsConfig) TTL() time.Duration {
	return time.Duration(d.TTLHours) * time.Hour
}

// AuthConfig maps API keys to subjects. Empty means open single-user mode.
type AuthConfig struct {
	APIKeys map[string]string `mapstructure:"api_keys" yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml
//  2. ~/.bondgen/config.yaml
//  3. /etc/bondgen/config.yaml
//
// Environment variables override config file values.
// Format: BONDGEN_<SECTION>_<KEY>, e.g., BONDGEN_DRAFTS_BACKEND
func Load() (*Config, error) {
	// .env never overrides variables that are already set.
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".bondgen"))
	v.AddConfigPath("/etc/bondgen")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.request_timeout_sec", 120)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("assembly.workers", runtime.NumCPU())
	v.SetDefault("assembly.label_prefix", "R-")
	v.SetDefault("assembly.starting_number", 1)

	v.SetDefault("drafts.backend", "sqlite")
	v.SetDefault("drafts.sqlite_path", filepath.Join(homeDir(), ".bondgen", "drafts.db"))
	v.SetDefault("drafts.s3_region", "us-east-1")
	v.SetDefault("drafts.s3_prefix", "drafts/")
	v.SetDefault("drafts.ttl_hours", 24*30)
	v.SetDefault("drafts.purge_schedule", "0 3 * * *") // 03:00 UTC daily

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// overrideFromEnv reads values viper cannot bind automatically.
// BONDGEN_AUTH_API_KEYS takes comma-separated key=subject pairs. viper
// ignores empty variables, so an empty BONDGEN_ASSEMBLY_LABEL_PREFIX is
// applied here.
func overrideFromEnv(cfg *Config) {
	if prefix, ok := os.LookupEnv(EnvPrefix + "_ASSEMBLY_LABEL_PREFIX"); ok && prefix == "" {
		cfg.Assembly.LabelPrefix = ""
	}

	raw := os.Getenv(EnvPrefix + "_AUTH_API_KEYS")
	if raw == "" {
		return
	}
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, subject, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		keys[k] = subject
	}
	cfg.Auth.APIKeys = keys
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
