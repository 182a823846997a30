package source

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

// MySQLTableExistsQuery checks the connection's default database. Views
// do not count.
const MySQLTableExistsQuery = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ? AND table_type = 'BASE TABLE'`

// MySQLDSN builds a go-sql-driver DSN from cfg.
func MySQLDSN(cfg config.SourceConfig) string {
	port := cfg.Port
	if port == 0 {
		port = config.MySQL.DefaultPort()
	}

	dsn := mysql.NewConfig()
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.DBName = cfg.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Timeout = cfg.ConnectTimeout
	return dsn.FormatDSN()
}

// OpenMySQL opens a pooled MySQL connection and pings it.
func OpenMySQL(ctx context.Context, cfg config.SourceConfig, log *zap.Logger) (*SQLSource, error) {
	connStr := MySQLDSN(cfg)

	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database connection")
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close() // Ignore close error when connection already failed
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "database ping failed")
	}

	log.Info("Connected to MySQL",
		zap.String("connection_string", obfuscateConnectionString(config.MySQL, connStr)),
		zap.Int("max_connections", maxConns))

	return NewSQLSource(db, config.MySQL, MySQLTableExistsQuery, log), nil
}
