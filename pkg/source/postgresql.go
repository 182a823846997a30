package source

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
)

const postgreSQLTableExistsQuery = `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1 AND table_type = 'BASE TABLE')`

const defaultPoolSize = 4

// PostgreSQLConnString builds a postgres:// URL from cfg.
func PostgreSQLConnString(cfg config.SourceConfig) string {
	port := cfg.Port
	if port == 0 {
		port = config.PostgreSQL.DefaultPort()
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}

	q := url.Values{}
	q.Set("application_name", "sqlsnap")
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if cfg.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// PostgreSQLSource is a Source over a pgx connection pool.
type PostgreSQLSource struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	closeOnce sync.Once
}

// OpenPostgreSQL creates a pgx pool, validates it with SELECT 1 and logs the
// server version.
func OpenPostgreSQL(ctx context.Context, cfg config.SourceConfig, log *zap.Logger) (*PostgreSQLSource, error) {
	connStr := PostgreSQLConnString(cfg)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse PostgreSQL connection string")
	}

	poolConfig.MaxConns = poolSize(cfg.MaxConns)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create PostgreSQL connection pool")
	}

	s := &PostgreSQLSource{pool: pool, logger: log}

	var version string
	if err := s.validateConnection(ctx, &version); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("Connected to PostgreSQL",
		zap.String("connection_string", obfuscateConnectionString(config.PostgreSQL, connStr)),
		zap.String("version", version),
		zap.Int32("max_connections", poolConfig.MaxConns))

	return s, nil
}

// validateConnection runs the health query and optionally reads the server version.
func (s *PostgreSQLSource) validateConnection(ctx context.Context, version *string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to acquire connection for validation")
	}
	defer conn.Release()

	var result int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "validation query failed")
	}

	if version != nil {
		if err := conn.QueryRow(ctx, "SELECT version()").Scan(version); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to get server version")
		}
	}
	return nil
}

// Kind implements Source.
func (s *PostgreSQLSource) Kind() config.SourceKind {
	return config.PostgreSQL
}

// TableExists implements Source.
func (s *PostgreSQLSource) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, postgreSQLTableExistsQuery, table).Scan(&exists); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to check table "+table)
	}
	return exists, nil
}

// Query implements Source.
func (s *PostgreSQLSource) Query(ctx context.Context, query string) (*frame.Frame, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}

	f := frame.New(names...)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read row values")
		}
		for i, v := range values {
			values[i] = convertPostgreSQLValue(v)
		}
		if err := f.Append(values...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to append row")
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "error iterating rows")
	}

	s.logger.Debug("query completed",
		zap.Int("rows", f.NumRows()),
		zap.Int("columns", f.NumCols()))
	return f, nil
}

// Close implements Source.
func (s *PostgreSQLSource) Close() error {
	s.closeOnce.Do(func() {
		s.pool.Close()
		s.logger.Debug("connection pool closed")
	})
	return nil
}

// convertPostgreSQLValue converts pgx values to types a frame can hold.
func convertPostgreSQLValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return formatUUID(v)
	case pgtype.Time:
		if !v.Valid {
			return nil
		}
		return formatClock(v.Microseconds)
	case pgtype.Interval:
		if !v.Valid {
			return nil
		}
		return formatInterval(v)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return v
	}
}

// poolSize bounds the configured connection count to what pgxpool accepts.
func poolSize(n int) int32 {
	switch {
	case n <= 0:
		return defaultPoolSize
	case n > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(n)
	}
}

func formatUUID(b [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// formatClock renders microseconds as HH:MM:SS with a trimmed fraction,
// the way PostgreSQL prints time values.
func formatClock(us int64) string {
	sign := ""
	if us < 0 {
		sign = "-"
		us = -us
	}
	const (
		second = int64(time.Second / time.Microsecond)
		minute = 60 * second
		hour   = 60 * minute
	)
	out := fmt.Sprintf("%s%02d:%02d:%02d", sign, us/hour, us%hour/minute, us%minute/second)
	if frac := us % second; frac != 0 {
		out += "." + strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	}
	return out
}

// formatInterval renders an interval in PostgreSQL's default output style,
// e.g. "1 year 2 mons 3 days 04:05:06.5".
func formatInterval(v pgtype.Interval) string {
	var parts []string
	unit := func(n int64, singular, plural string) {
		switch {
		case n == 1 || n == -1:
			parts = append(parts, fmt.Sprintf("%d %s", n, singular))
		case n != 0:
			parts = append(parts, fmt.Sprintf("%d %s", n, plural))
		}
	}
	unit(int64(v.Months/12), "year", "years")
	unit(int64(v.Months%12), "mon", "mons")
	unit(int64(v.Days), "day", "days")
	if v.Microseconds != 0 || len(parts) == 0 {
		parts = append(parts, formatClock(v.Microseconds))
	}
	return strings.Join(parts, " ")
}
