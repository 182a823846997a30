// Package json wraps goccy/go-json with pooled buffers and an ordered
// object writer for output whose key order matters.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal encodes v without HTML escaping, so locations such as
// presigned URLs keep their '&' characters.
func Marshal(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return append([]byte(nil), out...), nil
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalToWriter writes v followed by a newline.
func MarshalToWriter(w io.Writer, v interface{}) error {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// ObjectWriter builds a JSON object one field at a time, keeping the
// order in which fields were written.
type ObjectWriter struct {
	buffer []byte
	fields int
}

// NewObjectWriter creates a writer with the given initial capacity.
func NewObjectWriter(initialSize int) *ObjectWriter {
	w := &ObjectWriter{buffer: make([]byte, 0, initialSize)}
	w.buffer = append(w.buffer, '{')
	return w
}

// WriteField appends "key":value. Keys are escaped like any JSON string.
func (w *ObjectWriter) WriteField(key string, value interface{}) error {
	k, err := Marshal(key)
	if err != nil {
		return err
	}
	v, err := Marshal(value)
	if err != nil {
		return err
	}

	if w.fields > 0 {
		w.buffer = append(w.buffer, ',')
	}
	w.buffer = append(w.buffer, k...)
	w.buffer = append(w.buffer, ':')
	w.buffer = append(w.buffer, v...)
	w.fields++
	return nil
}

// Bytes returns the closed object.
func (w *ObjectWriter) Bytes() []byte {
	out := make([]byte, len(w.buffer), len(w.buffer)+1)
	copy(out, w.buffer)
	return append(out, '}')
}

// Reset resets the writer for reuse
func (w *ObjectWriter) Reset() {
	w.buffer = append(w.buffer[:0], '{')
	w.fields = 0
}
