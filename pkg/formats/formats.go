// Package formats serializes frames into snapshot files.
//
// Parquet and Avro apply the configured codec to their own blocks. CSV and
// JSONL are plain row formats; the uploader compresses them as a whole.
package formats

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/sqlsnap/pkg/compression"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
)

// Format is a snapshot file format.
type Format string

const (
	// Parquet is Apache Parquet, the default
	Parquet Format = "parquet"
	// Avro is an Avro object container file
	Avro Format = "avro"
	// CSV is comma separated values with a header row
	CSV Format = "csv"
	// JSONL is one JSON object per line
	JSONL Format = "jsonl"
)

// ParseFormat validates a configured format name. The empty string means Parquet.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case "":
		return Parquet, nil
	case Parquet, Avro, CSV, JSONL:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format: %s", name)
	}
}

// FormatInfo describes how a format is stored.
type FormatInfo struct {
	Format        Format
	FileExtension string
	MIMEType      string
	// BlockCompressed formats apply the codec internally
	BlockCompressed bool
}

// Info returns the storage details of the format.
func (f Format) Info() FormatInfo {
	switch f {
	case Parquet:
		return FormatInfo{Format: Parquet, FileExtension: ".parquet", MIMEType: "application/vnd.apache.parquet", BlockCompressed: true}
	case Avro:
		return FormatInfo{Format: Avro, FileExtension: ".avro", MIMEType: "application/avro", BlockCompressed: true}
	case CSV:
		return FormatInfo{Format: CSV, FileExtension: ".csv", MIMEType: "text/csv"}
	case JSONL:
		return FormatInfo{Format: JSONL, FileExtension: ".jsonl", MIMEType: "application/x-ndjson"}
	default:
		return FormatInfo{Format: f, FileExtension: "." + string(f), MIMEType: "application/octet-stream"}
	}
}

// Encoder writes a complete frame to w.
type Encoder interface {
	Encode(w io.Writer, f *frame.Frame) error
	Format() Format
}

// NewEncoder returns the encoder for format. codec is only used by block
// compressed formats.
func NewEncoder(format Format, codec compression.Algorithm) (Encoder, error) {
	switch format {
	case Parquet, "":
		return &parquetEncoder{codec: codec}, nil
	case Avro:
		return &avroEncoder{codec: codec}, nil
	case CSV:
		return csvEncoder{}, nil
	case JSONL:
		return jsonlEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s", format)
	}
}

// prepare infers column types on a frame that has not been typed yet.
func prepare(f *frame.Frame) {
	for _, c := range f.Columns {
		if c.Type == frame.TypeUnknown {
			f.InferTypes()
			return
		}
	}
}
