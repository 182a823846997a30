// Package observability provides OpenTelemetry tracing for snapshot runs.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	mu     sync.RWMutex
	tracer trace.Tracer = noop.NewTracerProvider().Tracer("sqlsnap")
)

func setTracer(t trace.Tracer) {
	mu.Lock()
	tracer = t
	mu.Unlock()
}

// GetTracer returns the global tracer.
func GetTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return tracer
}

// Span wraps a trace span and collects attributes until End.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := GetTracer().Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// StartRun starts the root span of a run against one source.
func StartRun(ctx context.Context, source, runID string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, "sqlsnap.run")
	span.SetAttribute("sqlsnap.source", source)
	span.SetAttribute("sqlsnap.run_id", runID)
	return ctx, span
}

// StartDataset starts the span of one dataset within a run.
func StartDataset(ctx context.Context, source, dataset string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, fmt.Sprintf("sqlsnap.%s.%s", source, dataset))
	span.SetAttribute("sqlsnap.source", source)
	span.SetAttribute("sqlsnap.dataset", dataset)
	return ctx, span
}

// SetAttribute adds an attribute to the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// End records err as the span status and ends the span.
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.attributes = append(s.attributes, attribute.Bool("error", true))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.attributes = append(s.attributes, attribute.Float64("duration_seconds", time.Since(s.startTime).Seconds()))
	s.span.SetAttributes(s.attributes...)
	s.span.End()
}
