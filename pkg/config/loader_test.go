package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

func clearEnv(t *testing.T, kind SourceKind) {
	t.Helper()
	for _, env := range EnvBindings(kind) {
		t.Setenv(env, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t, MySQL)
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("MYSQL_USER", "etl")
	t.Setenv("MYSQL_PASSWORD", "secret")
	t.Setenv("MYSQL_DATABASE", "tienda")
	t.Setenv("SNAPSHOT_BUCKET", "lake")
	t.Setenv("SNAPSHOT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SNAPSHOT_KAFKA_TOPIC", "snapshots")

	cfg, err := Load(Options{Kind: MySQL})
	require.NoError(t, err)

	assert.Equal(t, MySQL, cfg.Source.Kind)
	assert.Equal(t, "db.internal", cfg.Source.Host)
	assert.Equal(t, 3306, cfg.Source.Port)
	assert.Equal(t, "etl", cfg.Source.User)
	assert.Equal(t, "secret", cfg.Source.Password)
	assert.Equal(t, "tienda", cfg.Source.Database)
	assert.Equal(t, 10*time.Second, cfg.Source.ConnectTimeout)
	assert.Equal(t, "lake", cfg.Storage.Bucket)
	assert.Equal(t, "parquet", cfg.Storage.Format)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.True(t, cfg.Notify.Enabled())
}

func TestLoadUsesPostgresPrefix(t *testing.T) {
	clearEnv(t, PostgreSQL)
	clearEnv(t, MySQL)
	t.Setenv("POSTGRES_HOST", "pg.internal")
	t.Setenv("POSTGRES_DATABASE", "catalogo")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("MYSQL_HOST", "ignored")
	t.Setenv("SNAPSHOT_STORAGE", "local")
	t.Setenv("SNAPSHOT_LOCAL_DIR", t.TempDir())

	cfg, err := Load(Options{Kind: PostgreSQL})
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.Source.Host)
	assert.Equal(t, 6543, cfg.Source.Port)
	assert.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadMissingHost(t *testing.T) {
	clearEnv(t, MySQL)
	t.Setenv("MYSQL_DATABASE", "tienda")
	t.Setenv("SNAPSHOT_BUCKET", "lake")

	_, err := Load(Options{Kind: MySQL})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "MYSQL_HOST")
}

func TestLoadRejectsNonNumericPort(t *testing.T) {
	clearEnv(t, MySQL)
	t.Setenv("MYSQL_HOST", "db")
	t.Setenv("MYSQL_DATABASE", "tienda")
	t.Setenv("MYSQL_PORT", "not-a-port")
	t.Setenv("SNAPSHOT_BUCKET", "lake")

	_, err := Load(Options{Kind: MySQL})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadFileThenEnvThenFlags(t *testing.T) {
	clearEnv(t, MySQL)
	t.Setenv("CFG_DB_PASSWORD", "from-file-env")
	t.Setenv("MYSQL_HOST", "env-host")

	path := filepath.Join(t.TempDir(), "sqlsnap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  host: file-host
  database: tienda
  password: ${CFG_DB_PASSWORD}
storage:
  backend: gcs
  bucket: file-bucket
  format: avro
run:
  timeout: 5m
`), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("format", "parquet", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level=debug"}))

	cfg, err := Load(Options{Kind: MySQL, File: path, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Source.Host, "env overrides file")
	assert.Equal(t, "from-file-env", cfg.Source.Password)
	assert.Equal(t, "gcs", cfg.Storage.Backend)
	assert.Equal(t, "avro", cfg.Storage.Format, "unchanged flag does not override file")
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.Run.Timeout)
	assert.Equal(t, 3306, cfg.Source.Port)
}

func TestLoadFileMissing(t *testing.T) {
	clearEnv(t, MySQL)
	_, err := Load(Options{Kind: MySQL, File: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig(PostgreSQL)
		cfg.Source.Host = "h"
		cfg.Source.Database = "d"
		cfg.Storage.Bucket = "b"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.Source.Database = "" }, errMsg: "POSTGRES_DATABASE"},
		{name: "bad port", mutate: func(c *Config) { c.Source.Port = 70000 }, errMsg: "POSTGRES_PORT"},
		{name: "no bucket", mutate: func(c *Config) { c.Storage.Bucket = "" }, errMsg: "SNAPSHOT_BUCKET"},
		{name: "bad backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, errMsg: "backend"},
		{name: "bad format", mutate: func(c *Config) { c.Storage.Format = "xml" }, errMsg: "format"},
		{name: "bad partition", mutate: func(c *Config) { c.Storage.Partition = "weekly" }, errMsg: "partition"},
		{name: "bad kind", mutate: func(c *Config) { c.Source.Kind = "oracle" }, errMsg: "source kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := NewConfig(MySQL)
	cfg.Source.Password = "secret"

	r := cfg.Redacted()
	assert.Equal(t, "****", r.Source.Password)
	assert.Equal(t, "secret", cfg.Source.Password)
}
