package source

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
)

// SQLSource is a Source over a database/sql pool.
type SQLSource struct {
	db          *sql.DB
	kind        config.SourceKind
	existsQuery string
	logger      *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewSQLSource wraps an open pool. existsQuery takes the table name as its
// only placeholder argument and returns a single count or boolean.
func NewSQLSource(db *sql.DB, kind config.SourceKind, existsQuery string, log *zap.Logger) *SQLSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLSource{
		db:          db,
		kind:        kind,
		existsQuery: existsQuery,
		logger:      log,
	}
}

// Kind implements Source.
func (s *SQLSource) Kind() config.SourceKind {
	return s.kind
}

// TableExists implements Source.
func (s *SQLSource) TableExists(ctx context.Context, table string) (bool, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.existsQuery, table).Scan(&n); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to check table "+table)
	}
	return n > 0, nil
}

// Query implements Source.
func (s *SQLSource) Query(ctx context.Context, query string) (*frame.Frame, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed")
	}
	defer rows.Close() // Ignore close error

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read column types")
	}

	names := make([]string, len(colTypes))
	dbTypes := make([]string, len(colTypes))
	for i, ct := range colTypes {
		names[i] = ct.Name()
		dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	f := frame.New(names...)
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan row")
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = convertSQLValue(v, dbTypes[i])
		}
		if err := f.Append(row...); err != nil {
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
func (s *SQLSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
		s.logger.Debug("connection pool closed")
	})
	return s.closeErr
}

// convertSQLValue turns the raw bytes some drivers return into typed values
// according to the declared column type.
func convertSQLValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	switch strings.TrimPrefix(dbType, "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
		return string(b)
	case "FLOAT", "DOUBLE", "REAL":
		if x, err := strconv.ParseFloat(string(b), 64); err == nil {
			return x
		}
		return string(b)
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return b
	default:
		return string(b)
	}
}
