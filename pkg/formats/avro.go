package formats

import (
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/sqlsnap/pkg/compression"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
)

// avroEncoder writes an object container file with one record per row.
// Timestamps are stored as long microseconds since the epoch.
type avroEncoder struct {
	codec compression.Algorithm
}

func (e *avroEncoder) Format() Format { return Avro }

func (e *avroEncoder) Encode(w io.Writer, f *frame.Frame) error {
	prepare(f)

	schema, err := avroSchema(f)
	if err != nil {
		return err
	}

	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return fmt.Errorf("failed to create Avro codec: %w", err)
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: avroCompression(e.codec),
	})
	if err != nil {
		return fmt.Errorf("failed to create Avro writer: %w", err)
	}

	names := avroFieldNames(f)
	batch := make([]any, 0, 1000)
	for _, row := range f.Rows {
		native := make(map[string]any, len(row))
		for i, v := range row {
			native[names[i]] = avroNative(f.Columns[i].Type, v)
		}
		batch = append(batch, native)
		if len(batch) == cap(batch) {
			if err := ocf.Append(batch); err != nil {
				return fmt.Errorf("failed to write Avro records: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := ocf.Append(batch); err != nil {
			return fmt.Errorf("failed to write Avro records: %w", err)
		}
	}
	return nil
}

var invalidAvroName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// avroFieldNames makes column names legal, unique Avro names. A name that
// is already taken gets the first free _2, _3, ... suffix, left to right.
func avroFieldNames(f *frame.Frame) []string {
	names := make([]string, len(f.Columns))
	seen := make(map[string]bool, len(f.Columns))
	for i, c := range f.Columns {
		n := invalidAvroName.ReplaceAllString(c.Name, "_")
		if n == "" || (n[0] >= '0' && n[0] <= '9') {
			n = "_" + n
		}
		if seen[n] {
			base := n
			for k := 2; seen[n]; k++ {
				n = fmt.Sprintf("%s_%d", base, k)
			}
		}
		seen[n] = true
		names[i] = n
	}
	return names
}

func avroSchema(f *frame.Frame) (string, error) {
	names := avroFieldNames(f)
	fields := make([]map[string]any, len(f.Columns))
	for i, c := range f.Columns {
		fields[i] = map[string]any{
			"name":    names[i],
			"type":    []any{"null", avroType(c.Type)},
			"default": nil,
		}
	}

	b, err := json.Marshal(map[string]any{
		"type":      "record",
		"name":      "snapshot",
		"namespace": "sqlsnap",
		"fields":    fields,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode Avro schema: %w", err)
	}
	return string(b), nil
}

func avroType(t frame.Type) string {
	switch t {
	case frame.TypeBool:
		return "boolean"
	case frame.TypeInt, frame.TypeTimestamp:
		return "long"
	case frame.TypeFloat:
		return "double"
	case frame.TypeBinary:
		return "bytes"
	default:
		return "string"
	}
}

func avroNative(t frame.Type, v any) any {
	if v == nil {
		return nil
	}

	switch t {
	case frame.TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return goavro.Union("long", ts.UnixMicro())
		}
	case frame.TypeFloat:
		if n, ok := v.(int64); ok {
			return goavro.Union("double", float64(n))
		}
	case frame.TypeString:
		return goavro.Union("string", stringValue(v))
	case frame.TypeBinary:
		if s, ok := v.(string); ok {
			return goavro.Union("bytes", []byte(s))
		}
	}
	return goavro.Union(avroType(t), v)
}

// avroCompression maps an object codec to an OCF codec. OCF supports null,
// deflate and snappy; other codecs use deflate.
func avroCompression(a compression.Algorithm) string {
	switch a {
	case compression.None:
		return goavro.CompressionNullLabel
	case compression.Snappy, compression.S2:
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionDeflateLabel
	}
}
