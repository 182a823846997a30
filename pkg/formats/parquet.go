package formats

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/sqlsnap/pkg/compression"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
)

// parquetEncoder writes a frame as a single row group.
type parquetEncoder struct {
	codec compression.Algorithm
}

func (e *parquetEncoder) Format() Format { return Parquet }

func (e *parquetEncoder) Encode(w io.Writer, f *frame.Frame) error {
	prepare(f)

	schema := arrowSchema(f)
	mem := memory.NewGoAllocator()

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for ci, col := range f.Columns {
		fb := builder.Field(ci)
		for _, row := range f.Rows {
			if err := appendArrowValue(fb, row[ci]); err != nil {
				return fmt.Errorf("column %s: %w", col.Name, err)
			}
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(parquetCodec(e.codec)),
		parquet.WithCreatedBy("sqlsnap"),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(schema, w, props, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}
	if err := fw.Write(record); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}

func arrowSchema(f *frame.Frame) *arrow.Schema {
	fields := make([]arrow.Field, len(f.Columns))
	for i, c := range f.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t frame.Type) arrow.DataType {
	switch t {
	case frame.TypeBool:
		return arrow.FixedWidthTypes.Boolean
	case frame.TypeInt:
		return arrow.PrimitiveTypes.Int64
	case frame.TypeFloat:
		return arrow.PrimitiveTypes.Float64
	case frame.TypeBinary:
		return arrow.BinaryTypes.Binary
	case frame.TypeTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

func appendArrowValue(b array.Builder, value any) error {
	if value == nil {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)
	case *array.Int64Builder:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", value)
		}
		b.Append(v)
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case int64:
			b.Append(float64(v))
		default:
			return fmt.Errorf("expected float64, got %T", value)
		}
	case *array.BinaryBuilder:
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.Append([]byte(v))
		default:
			return fmt.Errorf("expected []byte, got %T", value)
		}
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))
	case *array.StringBuilder:
		b.Append(stringValue(value))
	default:
		return fmt.Errorf("unsupported builder type: %T", b)
	}
	return nil
}

// parquetCodec maps an object codec to a Parquet page codec.
func parquetCodec(a compression.Algorithm) compress.Compression {
	switch a {
	case compression.None:
		return compress.Codecs.Uncompressed
	case compression.Gzip:
		return compress.Codecs.Gzip
	case compression.Zstd:
		return compress.Codecs.Zstd
	case compression.LZ4:
		return compress.Codecs.Lz4Raw
	default:
		return compress.Codecs.Snappy
	}
}
