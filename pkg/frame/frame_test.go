package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersFrame(t *testing.T) *Frame {
	t.Helper()
	f := New("id", "email", "password", "created_at")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.Append(1, "a@example.com", "hash-a", now))
	require.NoError(t, f.Append(int32(2), "b@example.com", nil, now))
	return f
}

func TestAppendNormalizes(t *testing.T) {
	f := usersFrame(t)

	assert.Equal(t, 2, f.NumRows())
	assert.Equal(t, 4, f.NumCols())
	assert.Equal(t, int64(1), f.Rows[0][0])
	assert.Equal(t, int64(2), f.Rows[1][0])
}

func TestAppendRejectsWrongWidth(t *testing.T) {
	f := New("a", "b")
	assert.Error(t, f.Append(1))
}

func TestDropColumn(t *testing.T) {
	f := usersFrame(t)

	assert.True(t, f.DropColumn("password"))
	assert.Equal(t, []string{"id", "email", "created_at"}, f.Names())
	for _, row := range f.Rows {
		assert.Len(t, row, 3)
	}
	assert.Equal(t, "b@example.com", f.Rows[1][1])

	assert.False(t, f.DropColumn("password"), "second drop is a no-op")
	assert.Equal(t, 3, f.NumCols())
}

func TestDropColumnDoesNotAliasRows(t *testing.T) {
	f := New("a", "b", "c")
	require.NoError(t, f.Append(1, 2, 3))
	original := f.Rows[0]

	f.DropColumn("a")

	assert.Equal(t, []any{int64(2), int64(3)}, f.Rows[0])
	assert.Equal(t, int64(1), original[0], "source row slice is left untouched")
}

func TestColumn(t *testing.T) {
	f := usersFrame(t)

	emails, err := f.Column("email")
	require.NoError(t, err)
	assert.Equal(t, []any{"a@example.com", "b@example.com"}, emails)

	_, err = f.Column("missing")
	assert.Error(t, err)
}

func TestInferTypes(t *testing.T) {
	f := New("id", "price", "name", "blob", "at", "empty", "mixed")
	now := time.Now()
	require.NoError(t, f.Append(1, 1, "x", []byte{1}, now, nil, 1))
	require.NoError(t, f.Append(2, 2.5, nil, nil, nil, nil, "two"))

	f.InferTypes()

	want := []Type{TypeInt, TypeFloat, TypeString, TypeBinary, TypeTimestamp, TypeString, TypeString}
	for i, c := range f.Columns {
		assert.Equal(t, want[i], c.Type, c.Name)
	}
}

func TestNilFrame(t *testing.T) {
	var f *Frame
	assert.Zero(t, f.NumRows())
	assert.Zero(t, f.NumCols())
}
