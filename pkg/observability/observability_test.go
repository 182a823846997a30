package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestRunAndDatasetSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := initWithExporter(context.Background(), DefaultConfig("test"), exporter)
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, run := StartRun(context.Background(), "mysql", "run-1")
	_, ds := StartDataset(ctx, "mysql", "users")
	ds.SetAttribute("sqlsnap.rows", 12)
	ds.End(nil)
	_, failed := StartDataset(ctx, "mysql", "compras")
	failed.End(errors.New("La tabla 'compras' no existe en MySQL"))
	run.End(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	users := spans[0]
	assert.Equal(t, "sqlsnap.mysql.users", users.Name)
	assert.Equal(t, codes.Ok, users.Status.Code)
	attrs := attrMap(users.Attributes)
	assert.Equal(t, int64(12), attrs["sqlsnap.rows"].AsInt64())
	assert.Equal(t, "users", attrs["sqlsnap.dataset"].AsString())

	compras := spans[1]
	assert.Equal(t, codes.Error, compras.Status.Code)
	assert.Contains(t, compras.Status.Description, "no existe")

	root := spans[2]
	assert.Equal(t, "sqlsnap.run", root.Name)
	assert.Equal(t, root.SpanContext.TraceID(), users.SpanContext.TraceID())
	assert.Equal(t, root.SpanContext.SpanID(), users.Parent.SpanID())
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig("test"))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartRun(context.Background(), "postgresql", "run-2")
	assert.False(t, span.span.SpanContext().IsValid())
	span.End(nil)
}

func TestInitWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig("test")
	cfg.Enabled = true
	cfg.Writer = &buf

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	_, span := StartRun(context.Background(), "mysql", "run-3")
	span.End(nil)
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "sqlsnap.run")
}
