package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/extract"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
	"github.com/ajitpratap0/sqlsnap/pkg/notify"
	"github.com/ajitpratap0/sqlsnap/pkg/source"
	"github.com/ajitpratap0/sqlsnap/pkg/storage"
	"github.com/ajitpratap0/sqlsnap/pkg/testutil"
)

var fixedNow = time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)

// countingSource counts Close calls on top of a real source.
type countingSource struct {
	source.Source
	closes atomic.Int32
}

func (c *countingSource) Close() error {
	c.closes.Add(1)
	return c.Source.Close()
}

// recordingNotifier keeps every event.
type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) { n.events = append(n.events, e) }
func (n *recordingNotifier) Close() error                            { return nil }

func testConfig(t *testing.T, kind config.SourceKind) *config.Config {
	t.Helper()
	cfg := config.NewConfig(kind)
	cfg.Source.Host = "db.internal"
	cfg.Source.Database = "shop"
	cfg.Storage.Backend = "local"
	cfg.Storage.LocalDir = t.TempDir()
	cfg.Storage.Prefix = "raw"
	cfg.Storage.Format = "csv"
	cfg.Storage.Compression = "none"
	cfg.Run.Timeout = time.Minute
	return cfg
}

func sqliteOpener(t *testing.T, src *countingSource, stmts ...string) func(context.Context, config.SourceConfig, *zap.Logger) (source.Source, error) {
	return func(_ context.Context, cfg config.SourceConfig, log *zap.Logger) (source.Source, error) {
		db := testutil.OpenSQLite(t, stmts...)
		src.Source = source.NewSQLSource(db, cfg.Kind, testutil.SQLiteTableExistsQuery, log)
		return src, nil
	}
}

func deps(open func(context.Context, config.SourceConfig, *zap.Logger) (source.Source, error), n notify.Notifier) Dependencies {
	d := DefaultDependencies()
	d.OpenSource = open
	d.Now = func() time.Time { return fixedNow }
	d.NewNotifier = func(config.NotifyConfig, *zap.Logger) (notify.Notifier, error) { return n, nil }
	return d
}

func decode(t *testing.T, out *bytes.Buffer) map[string]map[string]any {
	t.Helper()
	require.Equal(t, 1, strings.Count(out.String(), "\n"), "exactly one JSON document")
	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got), out.String())
	return got
}

func TestRunMySQL(t *testing.T) {
	src := &countingSource{}
	notifier := &recordingNotifier{}
	open := sqliteOpener(t, src,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT, password TEXT)`,
		`INSERT INTO users VALUES (1, 'ana@example.com', 'h1'), (2, 'luis@example.com', 'h2')`,
		`CREATE TABLE compras (id INTEGER PRIMARY KEY, usuario_id INTEGER, fecha_compra TEXT)`,
		`INSERT INTO compras VALUES (10, 1, '2024-01-01')`,
	)

	var out bytes.Buffer
	code := New(testConfig(t, config.MySQL), &out,
		WithDependencies(deps(open, notifier)),
		WithLogger(zaptest.NewLogger(t)),
	).Run(context.Background())

	assert.Equal(t, ExitOK, code)
	assert.Equal(t, int32(1), src.closes.Load())

	got := decode(t, &out)
	require.Contains(t, got, "users")
	assert.Equal(t, 2.0, got["users"]["registros"])
	assert.Contains(t, got["users"]["url"], "file://")
	assert.Contains(t, got["users"]["url"], "/raw/mysql/users/year=2024/month=03/day=02/users_20240302_083000.csv")
	assert.Equal(t, 1.0, got["compras"]["registros"])

	require.Len(t, notifier.events, 2)
	assert.Equal(t, "users", notifier.events[0].Dataset)
	assert.NotEmpty(t, notifier.events[0].RunID)
}

func TestRunKeepsDatasetOrder(t *testing.T) {
	src := &countingSource{}
	open := sqliteOpener(t, src, `CREATE TABLE productos (id INTEGER PRIMARY KEY, nombre TEXT)`)

	var out bytes.Buffer
	code := New(testConfig(t, config.PostgreSQL), &out,
		WithDependencies(deps(open, notify.Nop{})),
		WithLogger(zaptest.NewLogger(t)),
	).Run(context.Background())

	assert.Equal(t, ExitOK, code)
	s := out.String()
	assert.Less(t, strings.Index(s, `"productos"`), strings.Index(s, `"ofertas"`))
}

func TestRunDatasetLogsCarryRunFields(t *testing.T) {
	src := &countingSource{}
	open := sqliteOpener(t, src, `CREATE TABLE productos (id INTEGER PRIMARY KEY, nombre TEXT)`)
	core, logs := observer.New(zapcore.InfoLevel)

	var out bytes.Buffer
	code := New(testConfig(t, config.PostgreSQL), &out,
		WithDependencies(deps(open, notify.Nop{})),
		WithLogger(zap.New(core)),
	).Run(context.Background())
	require.Equal(t, ExitOK, code)

	uploaded := logs.FilterMessage("Snapshot uploaded").All()
	require.Len(t, uploaded, 1)
	fields := uploaded[0].ContextMap()
	assert.NotEmpty(t, fields["run_id"])
	assert.Equal(t, "postgresql", fields["source"])
	assert.Equal(t, "productos", fields["dataset"])

	failed := logs.FilterMessage("Extraction failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "ofertas", failed[0].ContextMap()["dataset"])
	assert.Equal(t, fields["run_id"], failed[0].ContextMap()["run_id"])

	completed := logs.FilterMessage("Run completed").All()
	require.Len(t, completed, 1)
	assert.NotContains(t, completed[0].ContextMap(), "dataset")
}

func TestRunEveryDatasetFailing(t *testing.T) {
	src := &countingSource{}
	open := sqliteOpener(t, src)

	var out bytes.Buffer
	code := New(testConfig(t, config.PostgreSQL), &out,
		WithDependencies(deps(open, notify.Nop{})),
		WithLogger(zaptest.NewLogger(t)),
	).Run(context.Background())

	assert.Equal(t, ExitOK, code)
	assert.Equal(t, int32(1), src.closes.Load(), "source closed exactly once")

	got := decode(t, &out)
	assert.Equal(t, map[string]any{"error": "La tabla 'productos' no existe en PostgreSQL"}, got["productos"])
	assert.Equal(t, map[string]any{"error": "La tabla 'ofertas' no existe en PostgreSQL"}, got["ofertas"])
}

func TestRunConnectionFailure(t *testing.T) {
	open := func(context.Context, config.SourceConfig, *zap.Logger) (source.Source, error) {
		return nil, errors.New(errors.ErrorTypeConnection, "dial tcp 10.0.0.1:3306: connection refused")
	}

	var out bytes.Buffer
	code := New(testConfig(t, config.MySQL), &out,
		WithDependencies(deps(open, notify.Nop{})),
		WithLogger(zaptest.NewLogger(t)),
	).Run(context.Background())

	assert.Equal(t, ExitFailure, code)
	assert.JSONEq(t, `{"error":"Error general en script MySQL: dial tcp 10.0.0.1:3306: connection refused"}`, out.String())
}

func TestRunStorageFailureClosesSource(t *testing.T) {
	src := &countingSource{}
	d := deps(sqliteOpener(t, src), notify.Nop{})
	d.NewStore = func(context.Context, config.StorageConfig, *zap.Logger) (storage.Store, error) {
		return nil, errors.New(errors.ErrorTypeConfig, "no credentials")
	}

	var out bytes.Buffer
	code := New(testConfig(t, config.MySQL), &out, WithDependencies(d), WithLogger(zaptest.NewLogger(t))).Run(context.Background())

	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, int32(1), src.closes.Load())
	assert.JSONEq(t, `{"error":"Error general en script MySQL: no credentials"}`, out.String())
}

func TestRunUnknownDataset(t *testing.T) {
	cfg := testConfig(t, config.MySQL)
	cfg.Run.Datasets = []string{"pedidos"}
	opened := false
	open := func(context.Context, config.SourceConfig, *zap.Logger) (source.Source, error) {
		opened = true
		return nil, nil
	}

	var out bytes.Buffer
	code := New(cfg, &out, WithDependencies(deps(open, notify.Nop{})), WithLogger(zaptest.NewLogger(t))).Run(context.Background())

	assert.Equal(t, ExitFailure, code)
	assert.False(t, opened)
	assert.Contains(t, out.String(), `unknown dataset \"pedidos\"`)
}

func TestRunRecoversPanickingDataset(t *testing.T) {
	src := &countingSource{}
	d := deps(sqliteOpener(t, src), notify.Nop{})
	d.Datasets = func(config.SourceKind) []extract.Dataset {
		return []extract.Dataset{
			{Name: "boom", UploadName: "boom", Extract: func(context.Context, source.Source, *zap.Logger) (*frame.Frame, error) {
				panic("nil map")
			}},
			{Name: "ok", UploadName: "ok", Extract: func(context.Context, source.Source, *zap.Logger) (*frame.Frame, error) {
				f := frame.New("id")
				return f, f.Append(1)
			}},
		}
	}

	var out bytes.Buffer
	code := New(testConfig(t, config.MySQL), &out, WithDependencies(d), WithLogger(zaptest.NewLogger(t))).Run(context.Background())

	assert.Equal(t, ExitOK, code)
	assert.Equal(t, int32(1), src.closes.Load())
	got := decode(t, &out)
	assert.Equal(t, "panic: nil map", got["boom"]["error"])
	assert.Equal(t, 1.0, got["ok"]["registros"])
}

func TestRunSelectsDatasets(t *testing.T) {
	cfg := testConfig(t, config.MySQL)
	cfg.Run.Datasets = []string{"compras"}
	src := &countingSource{}
	open := sqliteOpener(t, src, `CREATE TABLE compras (id INTEGER PRIMARY KEY)`)

	var out bytes.Buffer
	code := New(cfg, &out, WithDependencies(deps(open, notify.Nop{})), WithLogger(zaptest.NewLogger(t))).Run(context.Background())

	assert.Equal(t, ExitOK, code)
	got := decode(t, &out)
	assert.Len(t, got, 1)
	assert.Equal(t, 0.0, got["compras"]["registros"])
}

func TestSummaryMarshalJSON(t *testing.T) {
	s := NewSummary()
	s.Set("users", Result{URL: "s3://b/k?a=1&b=2", Rows: 3})
	s.Set("compras", Result{Error: "La tabla 'compras' no existe en MySQL"})
	s.Set("users", Result{URL: "s3://b/k2", Rows: 4})

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"users":{"url":"s3://b/k2","registros":4},"compras":{"error":"La tabla 'compras' no existe en MySQL"}}`, string(data))
	assert.Equal(t, 1, s.Failures())
	assert.Equal(t, []string{"users", "compras"}, s.Names())
}

func TestSetupFailure(t *testing.T) {
	err := errors.Wrap(errors.New(errors.ErrorTypeConfig, "MYSQL_PORT must be an integer"), errors.ErrorTypeConfig, "invalid configuration value")
	f := SetupFailure(config.MySQL, err)
	assert.Equal(t, "Error general en script MySQL: invalid configuration value: MYSQL_PORT must be an integer", f.Error)
}
