package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStreamReadWrite(t *testing.T) {
	s := NewMemoryStream()
	_, err := s.Write([]byte("hello world"))
	require.NoError(t, err)

	_, err = s.Seek(6, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	_, err = s.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestMemoryStreamSparseWrite(t *testing.T) {
	s := NewMemoryStream()
	_, err := s.Seek(10, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, append(make([]byte, 10), 'a', 'b', 'c'), s.Bytes())
}

func TestMemoryStreamSetLength(t *testing.T) {
	s := NewMemoryStreamOf([]byte("abcdef"))
	require.NoError(t, s.SetLength(3))
	assert.Equal(t, []byte("abc"), s.Bytes())

	require.NoError(t, s.SetLength(5))
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0}, s.Bytes())

	_, err := s.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	l, err := s.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(5), l)
}

func TestMemoryStreamClosed(t *testing.T) {
	s := NewMemoryStream()
	require.NoError(t, s.Close())
	_, err := s.Write([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.CanSeek())
}

func TestIOStreamCapabilities(t *testing.T) {
	r := FromReader(bytes.NewReader([]byte("abc")))
	assert.True(t, r.CanRead())
	assert.False(t, r.CanWrite())
	assert.False(t, r.CanSeek())
	_, err := r.Write([]byte{1})
	assert.ErrorIs(t, err, ErrWriteNotSupported)
	_, err = r.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrSeekNotSupported)

	var buf bytes.Buffer
	w := FromWriter(&buf)
	assert.False(t, w.CanRead())
	assert.True(t, w.CanWrite())
	_, err = w.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrReadNotSupported)
	assert.ErrorIs(t, w.SetLength(1), ErrSetLengthNotSupported)
}
