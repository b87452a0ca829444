package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultStorageDriver is the default key-value storage driver.
	DefaultStorageDriver = "file"

	// DefaultStorageDir is the default directory for the file storage driver.
	DefaultStorageDir = "./iconbench-data"

	// DefaultSQLitePath is the default database path for the sqlite driver.
	DefaultSQLitePath = "./iconbench.db"

	// DefaultPollInterval is how often database-backed storage checks for
	// writes made by other processes.
	DefaultPollInterval = 2 * time.Second

	// DefaultRenderer is the default renderer used to time icon layouts.
	DefaultRenderer = "chrome"

	// DefaultEstimateInterval is the tick of the progress estimator.
	DefaultEstimateInterval = 250 * time.Millisecond

	// DefaultChromeTimeout bounds a single render in the chrome renderer.
	DefaultChromeTimeout = 30 * time.Second

	// DefaultExportDir is the default directory for export files.
	DefaultExportDir = "./exports"

	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "ICONBENCH"
)

// Config is the root configuration for iconbench.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Benchmark BenchmarkConfig `yaml:"benchmark" mapstructure:"benchmark"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// StorageConfig selects and configures the key-value backend that persists
// completed runs.
type StorageConfig struct {
	Driver       string                `yaml:"driver" mapstructure:"driver"`
	File         FileStorageConfig     `yaml:"file" mapstructure:"file"`
	SQLite       SQLiteStorageConfig   `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres     PostgresStorageConfig `yaml:"postgres" mapstructure:"postgres"`
	PollInterval time.Duration         `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// FileStorageConfig keeps one JSON file per key in Dir.
type FileStorageConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// SQLiteStorageConfig contains SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresStorageConfig contains PostgreSQL connection settings.
type PostgresStorageConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// DSN returns the libpq connection string.
func (c *PostgresStorageConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// BenchmarkConfig contains measurement settings.
type BenchmarkConfig struct {
	Renderer         string        `yaml:"renderer" mapstructure:"renderer"`
	IconsFile        string        `yaml:"icons_file,omitempty" mapstructure:"icons_file"`
	EstimateInterval time.Duration `yaml:"estimate_interval" mapstructure:"estimate_interval"`
	Chrome           ChromeConfig  `yaml:"chrome" mapstructure:"chrome"`
}

// ChromeConfig configures the headless browser used by the chrome renderer.
type ChromeConfig struct {
	ExecPath  string        `yaml:"exec_path,omitempty" mapstructure:"exec_path"`
	Headless  bool          `yaml:"headless" mapstructure:"headless"`
	NoSandbox bool          `yaml:"no_sandbox" mapstructure:"no_sandbox"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ExportConfig controls where export files are written.
type ExportConfig struct {
	Dir   string          `yaml:"dir" mapstructure:"dir"`
	Owner string          `yaml:"owner,omitempty" mapstructure:"owner"`
	S3    *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains settings for uploading export files to S3.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty" mapstructure:"textfile"`
}

// Load builds the configuration from defaults, the given YAML files
// (merged in order) and ICONBENCH_* environment variables.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Export.S3 != nil && !cfg.Export.S3.Enabled {
		cfg.Export.S3 = nil
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply to it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("storage.driver", DefaultStorageDriver)
	v.SetDefault("storage.file.dir", DefaultStorageDir)
	v.SetDefault("storage.sqlite.path", DefaultSQLitePath)
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "iconbench")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.database", "iconbench")
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.poll_interval", DefaultPollInterval)

	v.SetDefault("benchmark.renderer", DefaultRenderer)
	v.SetDefault("benchmark.icons_file", "")
	v.SetDefault("benchmark.estimate_interval", DefaultEstimateInterval)
	v.SetDefault("benchmark.chrome.exec_path", "")
	v.SetDefault("benchmark.chrome.headless", true)
	v.SetDefault("benchmark.chrome.no_sandbox", false)
	v.SetDefault("benchmark.chrome.timeout", DefaultChromeTimeout)

	v.SetDefault("export.dir", DefaultExportDir)
	v.SetDefault("export.owner", "")

	v.SetDefault("metrics.textfile", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, ok := validStorageDrivers[c.Storage.Driver]; !ok {
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Storage.Driver {
	case "file":
		if c.Storage.File.Dir == "" {
			return fmt.Errorf("storage.file.dir is required for the file driver")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" {
			return fmt.Errorf("storage.postgres.host is required for the postgres driver")
		}
	}

	if c.Storage.PollInterval <= 0 {
		return fmt.Errorf("storage.poll_interval must be positive")
	}

	if _, ok := validRenderers[c.Benchmark.Renderer]; !ok {
		return fmt.Errorf("unknown renderer %q", c.Benchmark.Renderer)
	}

	if c.Benchmark.EstimateInterval <= 0 {
		return fmt.Errorf("benchmark.estimate_interval must be positive")
	}

	if s3 := c.Export.S3; s3 != nil && s3.Enabled && s3.Bucket == "" {
		return fmt.Errorf("export.s3.bucket is required when s3 upload is enabled")
	}

	return nil
}

// validStorageDrivers is the list of supported storage drivers.
var validStorageDrivers = map[string]struct{}{
	"memory":   {},
	"file":     {},
	"sqlite":   {},
	"postgres": {},
}

// validRenderers is the list of supported renderers.
var validRenderers = map[string]struct{}{
	"chrome": {},
	"markup": {},
}
