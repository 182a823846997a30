// Package source opens and queries the relational databases sqlsnap
// extracts from.
//
// A Source lives for exactly one run. Close is idempotent so callers can
// defer it and still close explicitly before printing the summary.
package source

import (
	"context"
	"net/url"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
)

// Source is an open connection to one relational database.
type Source interface {
	// Kind identifies the database engine.
	Kind() config.SourceKind
	// TableExists reports whether table exists in the current schema.
	TableExists(ctx context.Context, table string) (bool, error)
	// Query runs a read query and materializes the full result.
	Query(ctx context.Context, query string) (*frame.Frame, error)
	// Close releases the connection pool.
	Close() error
}

// Open connects to the source described by cfg and validates the
// connection before returning.
func Open(ctx context.Context, cfg config.SourceConfig, log *zap.Logger) (Source, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "source"), zap.String("source", string(cfg.Kind)))

	switch cfg.Kind {
	case config.MySQL:
		return OpenMySQL(ctx, cfg, log)
	case config.PostgreSQL:
		return OpenPostgreSQL(ctx, cfg, log)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported source kind %q", cfg.Kind)
	}
}

// obfuscateConnectionString masks the password of a MySQL DSN or a
// PostgreSQL URL so it can be logged.
func obfuscateConnectionString(kind config.SourceKind, connStr string) string {
	switch kind {
	case config.MySQL:
		dsn, err := mysql.ParseDSN(connStr)
		if err != nil {
			return "***connection_string_obfuscated***"
		}
		if dsn.Passwd != "" {
			dsn.Passwd = "xxxxx"
		}
		return dsn.FormatDSN()
	case config.PostgreSQL:
		u, err := url.Parse(connStr)
		if err != nil {
			return "***connection_string_obfuscated***"
		}
		return u.Redacted()
	default:
		return "***connection_string_obfuscated***"
	}
}
