package chunkinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/chunkd/digest"
)

func ids(parts ...string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = digest.Digest([]byte(p))
	}
	return out
}

func TestFileRoundTrip(t *testing.T) {
	f, err := NewFile(ids("a", "b", "c"), 3)
	require.NoError(t, err)
	data, err := f.Encode()
	require.NoError(t, err)
	assert.True(t, IsInfo(data))

	kind, err := Kind(data)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, kind)

	got, err := DecodeFile(data)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeFileRejectsTampering(t *testing.T) {
	f, err := NewFile(ids("a", "b"), 2)
	require.NoError(t, err)
	f.Chunks[0], f.Chunks[1] = f.Chunks[1], f.Chunks[0]
	data, err := f.Encode()
	require.NoError(t, err)

	_, err = DecodeFile(data)
	assert.ErrorIs(t, err, ErrRootMismatch)
}

func TestDecodeRejectsPlainChunks(t *testing.T) {
	_, err := DecodeFile([]byte(`{"type":"file"}`))
	assert.ErrorIs(t, err, ErrNotInfo)

	_, err = DecodeFile(append(append([]byte{}, Prologue...), "{"...))
	assert.ErrorIs(t, err, ErrMalformed)

	d := &Dir{Type: TypeDir}
	data, err := d.Encode()
	require.NoError(t, err)
	_, err = DecodeFile(data)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDir(t *testing.T) {
	d := &Dir{Type: TypeDir, Files: []Entry{
		{Type: TypeFile, Name: "a.txt", Size: 1, ID: ids("a")[0]},
		{Type: TypeDir, Name: "sub", ID: ids("sub")[0]},
	}}
	data, err := d.Encode()
	require.NoError(t, err)

	got, err := DecodeDir(data)
	require.NoError(t, err)
	e, ok := got.Find("sub")
	require.True(t, ok)
	assert.Equal(t, TypeDir, e.Type)
	_, ok = got.Find("missing")
	assert.False(t, ok)
}

func TestDirRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		d := &Dir{Type: TypeDir, Files: []Entry{{Name: name, ID: ids("x")[0]}}}
		_, err := d.Encode()
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
	d := &Dir{Type: TypeDir, Files: []Entry{{Name: "a", ID: ids("x")[0]}, {Name: "a", ID: ids("y")[0]}}}
	_, err := d.Encode()
	assert.ErrorIs(t, err, ErrDuplicateName)
}
