// Package config provides the configuration system for sqlsnap.
//
// A Config is assembled in layers, lowest precedence first:
//
//   - NewConfig defaults for the selected source kind
//   - an optional YAML file (see LoadFile), with ${VAR} substitution
//   - environment variables ({PREFIX}_HOST, SNAPSHOT_BUCKET, ...)
//   - command line flags bound through viper
//
// Example usage:
//
//	cfg, err := config.Load(config.Options{Kind: config.MySQL})
//	if err != nil {
//	    return err
//	}
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

// SourceKind identifies a relational source.
type SourceKind string

const (
	// MySQL is the MySQL source, configured from MYSQL_* variables
	MySQL SourceKind = "mysql"
	// PostgreSQL is the PostgreSQL source, configured from POSTGRES_* variables
	PostgreSQL SourceKind = "postgresql"
)

// EnvPrefix returns the environment variable prefix for the kind.
func (k SourceKind) EnvPrefix() string {
	switch k {
	case MySQL:
		return "MYSQL"
	case PostgreSQL:
		return "POSTGRES"
	default:
		return ""
	}
}

// DefaultPort returns the default TCP port for the kind.
func (k SourceKind) DefaultPort() int {
	switch k {
	case MySQL:
		return 3306
	case PostgreSQL:
		return 5432
	default:
		return 0
	}
}

// DisplayName is the human name used in error messages.
func (k SourceKind) DisplayName() string {
	switch k {
	case MySQL:
		return "MySQL"
	case PostgreSQL:
		return "PostgreSQL"
	default:
		return string(k)
	}
}

// Config is the complete configuration of one run.
type Config struct {
	// Source describes the database to extract from
	Source SourceConfig `yaml:"source" mapstructure:"source"`
	// Storage describes where and how snapshots are written
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	// Run holds run-wide settings
	Run RunConfig `yaml:"run" mapstructure:"run"`
	// Observability controls logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	// Notify controls snapshot notifications
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`
}

// SourceConfig holds the connection settings for one source.
type SourceConfig struct {
	Kind     SourceKind `yaml:"kind" mapstructure:"kind"`
	Host     string     `yaml:"host" mapstructure:"host"`
	Port     int        `yaml:"port" mapstructure:"port"`
	User     string     `yaml:"user" mapstructure:"user"`
	Password string     `yaml:"password" mapstructure:"password"`
	Database string     `yaml:"database" mapstructure:"database"`
	// MaxConns caps the connection pool
	MaxConns int `yaml:"max_conns" mapstructure:"max_conns"`
	// ConnectTimeout bounds connection setup and validation
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	// SSLMode is passed to PostgreSQL as sslmode; ignored for MySQL
	SSLMode string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// StorageConfig describes the object store and the snapshot encoding.
type StorageConfig struct {
	// Backend selects the object store: s3, gcs or local
	Backend string `yaml:"backend" mapstructure:"backend"`
	Bucket  string `yaml:"bucket" mapstructure:"bucket"`
	Prefix  string `yaml:"prefix" mapstructure:"prefix"`
	Region  string `yaml:"region" mapstructure:"region"`
	// Endpoint overrides the S3 endpoint (MinIO, LocalStack)
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// PathStyle forces path-style S3 addressing
	PathStyle bool `yaml:"path_style" mapstructure:"path_style"`
	// CredentialsFile is a GCS service account file
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	// LocalDir is the root directory of the local backend
	LocalDir string `yaml:"local_dir" mapstructure:"local_dir"`
	// Format is the snapshot encoding: parquet, avro, csv or jsonl
	Format string `yaml:"format" mapstructure:"format"`
	// Compression is the codec: none, snappy, gzip, zstd, lz4, s2
	Compression string `yaml:"compression" mapstructure:"compression"`
	// Partition is the key partitioning: none, hourly, daily, monthly, yearly
	Partition string `yaml:"partition" mapstructure:"partition"`
	// UploadPartSize is the S3 multipart part size in bytes
	UploadPartSize int64 `yaml:"upload_part_size" mapstructure:"upload_part_size"`
	// UploadConcurrency is the S3 multipart concurrency
	UploadConcurrency int `yaml:"upload_concurrency" mapstructure:"upload_concurrency"`
}

// RunConfig holds run-wide settings.
type RunConfig struct {
	// Timeout bounds the whole run
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Datasets restricts the run to the named datasets; empty means all
	Datasets []string `yaml:"datasets" mapstructure:"datasets"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// LogFormat is json or console
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
	// PushgatewayURL enables pushing run metrics when set
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	// MetricsJob is the Pushgateway job name
	MetricsJob string `yaml:"metrics_job" mapstructure:"metrics_job"`
	// EnableTracing writes OpenTelemetry spans to stderr
	EnableTracing bool `yaml:"enable_tracing" mapstructure:"enable_tracing"`
}

// NotifyConfig controls Kafka notifications for written snapshots.
type NotifyConfig struct {
	KafkaBrokers []string      `yaml:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic   string        `yaml:"kafka_topic" mapstructure:"kafka_topic"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Enabled reports whether notifications should be sent.
func (n NotifyConfig) Enabled() bool {
	return len(n.KafkaBrokers) > 0 && n.KafkaTopic != ""
}

// NewConfig creates a Config with defaults for the given source kind.
func NewConfig(kind SourceKind) *Config {
	return &Config{
		Source: SourceConfig{
			Kind:           kind,
			Port:           kind.DefaultPort(),
			MaxConns:       4,
			ConnectTimeout: 10 * time.Second,
			SSLMode:        "prefer",
		},
		Storage: StorageConfig{
			Backend:           "s3",
			Region:            "us-east-1",
			LocalDir:          "snapshots",
			Format:            "parquet",
			Compression:       "snappy",
			Partition:         "daily",
			UploadPartSize:    5 * 1024 * 1024,
			UploadConcurrency: 4,
		},
		Run: RunConfig{
			Timeout: 30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:   "info",
			LogFormat:  "json",
			MetricsJob: "sqlsnap",
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Source.Kind != MySQL && c.Source.Kind != PostgreSQL {
		return errors.Newf(errors.ErrorTypeConfig, "unsupported source kind %q", c.Source.Kind)
	}
	prefix := c.Source.Kind.EnvPrefix()
	if c.Source.Host == "" {
		return errors.Newf(errors.ErrorTypeConfig, "%s_HOST is required", prefix)
	}
	if c.Source.Database == "" {
		return errors.Newf(errors.ErrorTypeConfig, "%s_DATABASE is required", prefix)
	}
	if c.Source.Port <= 0 || c.Source.Port > 65535 {
		return errors.Newf(errors.ErrorTypeConfig, "%s_PORT must be between 1 and 65535, got %d", prefix, c.Source.Port)
	}

	switch c.Storage.Backend {
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return errors.Newf(errors.ErrorTypeConfig, "SNAPSHOT_BUCKET is required for the %s backend", c.Storage.Backend)
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New(errors.ErrorTypeConfig, "SNAPSHOT_LOCAL_DIR is required for the local backend")
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported storage backend %q", c.Storage.Backend)
	}

	switch c.Storage.Format {
	case "parquet", "avro", "csv", "jsonl":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported snapshot format %q", c.Storage.Format)
	}

	switch c.Storage.Partition {
	case "none", "hourly", "daily", "monthly", "yearly":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported partition strategy %q", c.Storage.Partition)
	}

	if c.Run.Timeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "run timeout must be positive")
	}
	return nil
}

// Redacted returns a copy safe for logging.
func (c *Config) Redacted() Config {
	out := *c
	if out.Source.Password != "" {
		out.Source.Password = "****"
	}
	return out
}

// String implements fmt.Stringer without leaking the password.
func (s SourceConfig) String() string {
	return fmt.Sprintf("%s://%s@%s:%d/%s", s.Kind, s.User, s.Host, s.Port, s.Database)
}
