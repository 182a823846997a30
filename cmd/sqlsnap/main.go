package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/internal/runner"
	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/extract"
	"github.com/ajitpratap0/sqlsnap/pkg/logger"
	"github.com/ajitpratap0/sqlsnap/pkg/observability"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	code := 0
	root := newRootCmd(os.Stdout, &code)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = logger.Sync()
	os.Exit(code)
}

// newRootCmd builds the CLI. Source commands store their exit code in code.
func newRootCmd(stdout io.Writer, code *int) *cobra.Command {
	root := &cobra.Command{
		Use:   "sqlsnap",
		Short: "sqlsnap - snapshot SQL tables into object storage",
		Long: `sqlsnap extracts a fixed set of datasets from a MySQL or PostgreSQL
database, writes each one as a snapshot object and prints a JSON summary
on stdout for the calling orchestrator.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sqlsnap v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "datasets",
		Short: "List the datasets each source extracts",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, kind := range []config.SourceKind{config.MySQL, config.PostgreSQL} {
				fmt.Fprintf(out, "%s:\n", kind)
				for _, ds := range extract.ForSource(kind) {
					fmt.Fprintf(out, "  - %s (tables: %s)\n", ds.Name, strings.Join(ds.Tables, ", "))
				}
			}
		},
	})

	root.AddCommand(sourceCmd(config.MySQL, stdout, code))
	root.AddCommand(sourceCmd(config.PostgreSQL, stdout, code))
	root.SetOut(stdout)
	return root
}

func sourceCmd(kind config.SourceKind, stdout io.Writer, code *int) *cobra.Command {
	var configFile string
	prefix := kind.EnvPrefix()

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Snapshot the %s datasets", kind.DisplayName()),
		Long: fmt.Sprintf(`Snapshot the %s datasets.

Connection settings are read from %s_HOST, %s_PORT, %s_USER,
%s_PASSWORD and %s_DATABASE. Storage settings are read from SNAPSHOT_*
variables, an optional --config YAML file and the flags below.`,
			kind.DisplayName(), prefix, prefix, prefix, prefix, prefix),
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			*code = runSource(cmd.Context(), kind, configFile, cmd, stdout)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "json", "Log encoding (json, console)")
	f.Bool("trace", false, "Write OpenTelemetry spans to stderr")
	f.String("storage", "s3", "Storage backend (s3, gcs, local)")
	f.String("format", "parquet", "Snapshot format (parquet, avro, csv, jsonl)")
	f.String("compression", "snappy", "Compression (none, snappy, gzip, zstd, lz4, s2)")
	f.String("local-dir", "snapshots", "Root directory of the local backend")
	f.Duration("timeout", 30*time.Minute, "Overall run timeout")
	f.StringSlice("datasets", nil, "Only run these datasets")
	return cmd
}

// runSource loads configuration, runs one source and returns the exit code.
func runSource(ctx context.Context, kind config.SourceKind, configFile string, cmd *cobra.Command, stdout io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{Kind: kind, File: configFile, Flags: cmd.Flags()})
	if err != nil {
		logger.Get().Error("Invalid configuration", zap.Error(err))
		return runner.Fail(stdout, kind, err)
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return runner.Fail(stdout, kind, err)
	}
	log := logger.With(zap.String("component", "sqlsnap-cli"))

	tcfg := observability.DefaultConfig(version)
	tcfg.Enabled = cfg.Observability.EnableTracing
	shutdown, err := observability.Init(ctx, tcfg)
	if err != nil {
		return runner.Fail(stdout, kind, err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	redacted := cfg.Redacted()
	log.Debug("Configuration loaded", zap.Any("config", redacted))

	return runner.New(cfg, stdout, runner.WithLogger(log)).Run(ctx)
}
