// Package frame holds the in-memory tabular result of one extraction query.
//
// A Frame is column-ordered metadata plus row-major values. Values are the
// Go types produced by the database drivers after normalization: nil, bool,
// int64, float64, string, []byte and time.Time.
package frame

import (
	"fmt"
	"math/big"
	"time"
)

// Type is the logical type of a column.
type Type string

const (
	TypeUnknown   Type = "unknown"
	TypeBool      Type = "bool"
	TypeInt       Type = "int"
	TypeFloat     Type = "float"
	TypeString    Type = "string"
	TypeBinary    Type = "binary"
	TypeTimestamp Type = "timestamp"
)

// Column describes one column of a Frame.
type Column struct {
	Name string
	Type Type
}

// Frame is a tabular result set.
type Frame struct {
	Columns []Column
	Rows    [][]any
}

// New creates an empty frame with the given column names. Types are left
// unknown until InferTypes runs.
func New(names ...string) *Frame {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: TypeUnknown}
	}
	return &Frame{Columns: cols}
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// NumCols returns the number of columns.
func (f *Frame) NumCols() int {
	if f == nil {
		return 0
	}
	return len(f.Columns)
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column.
func (f *Frame) Column(name string) ([]any, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Append adds a row. The row length must match the number of columns.
func (f *Frame) Append(values ...any) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.Columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = Normalize(v)
	}
	f.Rows = append(f.Rows, row)
	return nil
}

// DropColumn removes the named column from the frame in place. Dropping a
// column that does not exist is a no-op; the return value reports whether
// anything was removed.
func (f *Frame) DropColumn(name string) bool {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return false
	}

	f.Columns = append(f.Columns[:idx:idx], f.Columns[idx+1:]...)
	for i, row := range f.Rows {
		f.Rows[i] = append(row[:idx:idx], row[idx+1:]...)
	}
	return true
}

// InferTypes sets the type of every unknown column from its first non-nil
// value. Columns whose values disagree on type degrade to TypeString, and
// columns that are entirely null become TypeString as well.
func (f *Frame) InferTypes() {
	for ci := range f.Columns {
		if f.Columns[ci].Type != TypeUnknown {
			continue
		}

		inferred := TypeUnknown
		for _, row := range f.Rows {
			t := TypeOf(row[ci])
			if t == TypeUnknown {
				continue
			}
			if inferred == TypeUnknown {
				inferred = t
				continue
			}
			if inferred != t {
				inferred = widen(inferred, t)
			}
		}
		if inferred == TypeUnknown {
			inferred = TypeString
		}
		f.Columns[ci].Type = inferred
	}
}

// widen picks a type able to hold both a and b.
func widen(a, b Type) Type {
	if (a == TypeInt && b == TypeFloat) || (a == TypeFloat && b == TypeInt) {
		return TypeFloat
	}
	return TypeString
}

// TypeOf maps a normalized value to its logical type. nil is TypeUnknown.
func TypeOf(v any) Type {
	switch v.(type) {
	case nil:
		return TypeUnknown
	case bool:
		return TypeBool
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case string:
		return TypeString
	case []byte:
		return TypeBinary
	case time.Time:
		return TypeTimestamp
	default:
		return TypeString
	}
}

// Normalize converts driver values to the small set of types a Frame holds.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > 1<<63-1 {
			return fmt.Sprintf("%d", x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case bool:
		return x
	case string:
		return x
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp
	case time.Time:
		return x
	case *big.Int:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
