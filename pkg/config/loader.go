package config

import (
	"bytes"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

// Options selects what Load reads.
type Options struct {
	// Kind is the source being configured
	Kind SourceKind
	// File is an optional YAML file
	File string
	// Flags are bound over env values when changed
	Flags *pflag.FlagSet
}

// flagBindings maps config keys to CLI flag names.
var flagBindings = map[string]string{
	"observability.log_level":      "log-level",
	"observability.log_format":     "log-format",
	"observability.enable_tracing": "trace",
	"storage.backend":              "storage",
	"storage.format":               "format",
	"storage.compression":          "compression",
	"storage.local_dir":            "local-dir",
	"run.timeout":                  "timeout",
	"run.datasets":                 "datasets",
}

// EnvBindings returns config key -> environment variable for a source kind.
func EnvBindings(kind SourceKind) map[string]string {
	p := kind.EnvPrefix()
	return map[string]string{
		"source.host":            p + "_HOST",
		"source.port":            p + "_PORT",
		"source.user":            p + "_USER",
		"source.password":        p + "_PASSWORD",
		"source.database":        p + "_DATABASE",
		"source.max_conns":       p + "_MAX_CONNS",
		"source.connect_timeout": p + "_CONNECT_TIMEOUT",
		"source.ssl_mode":        p + "_SSLMODE",

		"storage.backend":            "SNAPSHOT_STORAGE",
		"storage.bucket":             "SNAPSHOT_BUCKET",
		"storage.prefix":             "SNAPSHOT_PREFIX",
		"storage.region":             "SNAPSHOT_REGION",
		"storage.endpoint":           "SNAPSHOT_ENDPOINT",
		"storage.path_style":         "SNAPSHOT_PATH_STYLE",
		"storage.credentials_file":   "SNAPSHOT_GCS_CREDENTIALS_FILE",
		"storage.local_dir":          "SNAPSHOT_LOCAL_DIR",
		"storage.format":             "SNAPSHOT_FORMAT",
		"storage.compression":        "SNAPSHOT_COMPRESSION",
		"storage.partition":          "SNAPSHOT_PARTITION",
		"storage.upload_part_size":   "SNAPSHOT_UPLOAD_PART_SIZE",
		"storage.upload_concurrency": "SNAPSHOT_UPLOAD_CONCURRENCY",

		"run.timeout":  "SNAPSHOT_TIMEOUT",
		"run.datasets": "SNAPSHOT_DATASETS",

		"observability.log_level":       "SNAPSHOT_LOG_LEVEL",
		"observability.log_format":      "SNAPSHOT_LOG_FORMAT",
		"observability.pushgateway_url": "SNAPSHOT_PUSHGATEWAY_URL",
		"observability.metrics_job":     "SNAPSHOT_METRICS_JOB",
		"observability.enable_tracing":  "SNAPSHOT_TRACING",

		"notify.kafka_brokers": "SNAPSHOT_KAFKA_BROKERS",
		"notify.kafka_topic":   "SNAPSHOT_KAFKA_TOPIC",
		"notify.timeout":       "SNAPSHOT_KAFKA_TIMEOUT",
	}
}

// Load builds and validates the configuration for one run.
func Load(opts Options) (*Config, error) {
	base := NewConfig(opts.Kind)
	if opts.File != "" {
		if err := LoadFile(opts.File, base); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load config file")
		}
	}

	// Defaults and file values become viper's config layer so env and
	// flags override them with viper's usual precedence.
	layer, err := yaml.Marshal(base)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to encode base config")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(layer)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read base config")
	}

	for key, env := range EnvBindings(opts.Kind) {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind "+env)
		}
	}

	if opts.Flags != nil {
		for key, name := range flagBindings {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind flag --"+name)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration value")
	}
	cfg.Source.Kind = opts.Kind

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
