package formats

import (
	"bufio"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/sqlsnap/pkg/frame"
)

// stringValue renders a normalized value as text.
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// csvEncoder writes a header row followed by one line per row. NULL is
// written as an empty field.
type csvEncoder struct{}

func (csvEncoder) Format() Format { return CSV }

func (csvEncoder) Encode(w io.Writer, f *frame.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, f.NumCols())
	for _, row := range f.Rows {
		for i, v := range row {
			record[i] = stringValue(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// jsonlEncoder writes one object per row with keys in column order.
type jsonlEncoder struct{}

func (jsonlEncoder) Format() Format { return JSONL }

func (jsonlEncoder) Encode(w io.Writer, f *frame.Frame) error {
	bw := bufio.NewWriter(w)

	keys := make([][]byte, f.NumCols())
	for i, name := range f.Names() {
		k, err := json.Marshal(name)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	for _, row := range f.Rows {
		bw.WriteByte('{')
		for i, v := range row {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.Write(keys[i])
			bw.WriteByte(':')

			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode column %s: %w", f.Columns[i].Name, err)
			}
			bw.Write(b)
		}
		bw.WriteString("}\n")
	}
	return bw.Flush()
}
