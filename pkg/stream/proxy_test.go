package stream

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

// newSink returns a write-only, forward-only stream plus the buffer
// receiving its bytes.
func newSink() (Stream, *bytes.Buffer) {
	var buf bytes.Buffer
	return FromWriter(&buf), &buf
}

func newSource(data []byte) Stream {
	return FromReader(bytes.NewReader(data))
}

type noCap struct{ Stream }

func (noCap) CanRead() bool  { return false }
func (noCap) CanWrite() bool { return false }

func TestNewProxyValidation(t *testing.T) {
	_, err := NewProxy(nil, nil)
	require.Error(t, err)

	_, err = NewProxy(noCap{}, nil)
	require.Error(t, err)

	p, err := NewProxy(NewMemoryStream(), nil)
	require.NoError(t, err)
	assert.True(t, p.CanRead())
	assert.True(t, p.CanWrite())
	assert.True(t, p.CanSeek())
}

func TestWriteReadRoundTrip(t *testing.T) {
	data := randBytes(t, 3*StorageSize+7)
	sink, buf := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	// uneven request sizes so unit boundaries fall mid-request
	for off, step := 0, 1; off < len(data); off += step {
		if off+step > len(data) {
			step = len(data) - off
		}
		n, err := wp.Write(data[off : off+step])
		require.NoError(t, err)
		require.Equal(t, step, n)
		step = step*2 + 1
	}
	require.NoError(t, wp.Close())
	require.Equal(t, data, buf.Bytes())

	rp, err := NewProxy(newSource(buf.Bytes()), nil)
	require.NoError(t, err)
	got, err := io.ReadAll(rp)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.NoError(t, rp.Close())
}

func TestSingleUseRejectsReread(t *testing.T) {
	data := randBytes(t, 1000)
	rp, err := NewProxy(newSource(data), nil)
	require.NoError(t, err)

	buf := make([]byte, 100)
	_, err = io.ReadFull(rp, buf)
	require.NoError(t, err)

	_, err = rp.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = rp.Read(buf)
	require.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestSharedModeAllowsReread(t *testing.T) {
	data := randBytes(t, 1000)
	rp, err := NewProxy(newSource(data), &Config{SingleUse: false})
	require.NoError(t, err)

	first := make([]byte, 100)
	_, err = io.ReadFull(rp, first)
	require.NoError(t, err)

	_, err = rp.Seek(0, io.SeekStart)
	require.NoError(t, err)
	second := make([]byte, 100)
	_, err = io.ReadFull(rp, second)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, data[:100], second)
}

func TestImplicitEviction(t *testing.T) {
	data := randBytes(t, StorageSize+1)
	sink, buf := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	_, err = wp.Write(data[:StorageSize])
	require.NoError(t, err)
	require.Equal(t, StorageSize, buf.Len())
	require.NotContains(t, wp.units, int64(0))

	_, err = wp.Write(data[StorageSize:])
	require.NoError(t, err)
	require.Equal(t, StorageSize, buf.Len())
	require.Contains(t, wp.units, int64(1))
	require.Len(t, wp.units, 1)

	require.NoError(t, wp.Close())
	require.Equal(t, data, buf.Bytes())
}

func TestFlushIdempotent(t *testing.T) {
	data := randBytes(t, 2*StorageSize+StorageSize/2)
	sink, buf := newSink()
	wp, err := NewProxy(sink, &Config{SingleUse: false})
	require.NoError(t, err)

	_, err = wp.Write(data)
	require.NoError(t, err)
	require.Zero(t, buf.Len())

	require.NoError(t, wp.Flush())
	require.Equal(t, data, buf.Bytes())

	require.NoError(t, wp.Flush())
	require.Equal(t, len(data), buf.Len())
}

func TestFlushResumesPartialUnit(t *testing.T) {
	sink, buf := newSink()
	wp, err := NewProxy(sink, &Config{SingleUse: false})
	require.NoError(t, err)

	first := randBytes(t, StorageSize/2)
	_, err = wp.Write(first)
	require.NoError(t, err)
	require.NoError(t, wp.Flush())
	require.Equal(t, first, buf.Bytes())

	second := randBytes(t, StorageSize)
	_, err = wp.Write(second)
	require.NoError(t, err)
	require.NoError(t, wp.Flush())
	require.Equal(t, append(append([]byte{}, first...), second...), buf.Bytes())
	require.NoError(t, wp.Close())
}

func TestSparseWriteZeroFill(t *testing.T) {
	head := randBytes(t, 10)
	tail := []byte{0xAA, 0xBB, 0xCC}
	target := int64(2*StorageSize + 5)

	sink, buf := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	_, err = wp.Write(head)
	require.NoError(t, err)
	_, err = wp.Seek(target, io.SeekStart)
	require.NoError(t, err)
	_, err = wp.Write(tail)
	require.NoError(t, err)
	require.NoError(t, wp.Flush())

	out := buf.Bytes()
	require.Len(t, out, int(target)+len(tail))
	assert.Equal(t, head, out[:10])
	assert.Equal(t, make([]byte, int(target)-10), out[10:target])
	assert.Equal(t, tail, out[target:])
}

func TestPassthrough(t *testing.T) {
	data := randBytes(t, 5000)
	direct := NewMemoryStream()
	proxied := NewMemoryStream()
	p, err := NewProxy(proxied, nil)
	require.NoError(t, err)

	_, err = direct.Write(data)
	require.NoError(t, err)
	_, err = p.Write(data)
	require.NoError(t, err)
	require.Empty(t, p.units)

	for _, s := range []Stream{direct, p} {
		_, err = s.Seek(1234, io.SeekStart)
		require.NoError(t, err)
	}
	a := make([]byte, 100)
	b := make([]byte, 100)
	_, err = io.ReadFull(direct, a)
	require.NoError(t, err)
	_, err = io.ReadFull(p, b)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Empty(t, p.units)
	require.Equal(t, data, proxied.Bytes())

	pos, err := p.Position()
	require.NoError(t, err)
	require.Equal(t, int64(1334), pos)
}

func TestForcedBuffering(t *testing.T) {
	base := NewMemoryStream()
	p, err := NewProxy(base, &Config{SingleUse: false, Forced: true})
	require.NoError(t, err)

	data := randBytes(t, 100)
	_, err = p.Write(data)
	require.NoError(t, err)
	require.NotEmpty(t, p.units)
	require.Zero(t, len(base.Bytes()))

	require.NoError(t, p.Close())
	require.Equal(t, data, base.Bytes())
}

func TestCloseFlushes(t *testing.T) {
	data := randBytes(t, 100)
	sink, buf := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	_, err = wp.Write(data)
	require.NoError(t, err)
	require.Zero(t, buf.Len())

	require.NoError(t, wp.Close())
	require.Equal(t, data, buf.Bytes())
}

func TestCloseIdempotent(t *testing.T) {
	wp, err := NewProxy(NewMemoryStream(), nil)
	require.NoError(t, err)
	require.NoError(t, wp.Close())
	require.NoError(t, wp.Close())

	_, err = wp.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrClosed)
	_, err = wp.Write([]byte{1})
	require.ErrorIs(t, err, ErrClosed)
	_, err = wp.Seek(0, io.SeekStart)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, wp.Flush(), ErrClosed)
	_, err = wp.Length()
	require.ErrorIs(t, err, ErrClosed)
	assert.False(t, wp.CanRead())
	assert.False(t, wp.CanWrite())
	assert.False(t, wp.CanSeek())
}

func TestModeCommits(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProxy(FromReadWriter(&buf), nil)
	require.NoError(t, err)
	assert.True(t, p.CanRead())
	assert.True(t, p.CanWrite())

	_, err = p.Write([]byte("hello"))
	require.NoError(t, err)
	assert.False(t, p.CanRead())
	assert.True(t, p.CanWrite())

	_, err = p.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrReadNotSupported)
	require.NoError(t, p.Close())
}

func TestWriteToReadOnly(t *testing.T) {
	rp, err := NewProxy(newSource([]byte("abc")), nil)
	require.NoError(t, err)
	_, err = rp.Write([]byte{1})
	require.ErrorIs(t, err, ErrWriteNotSupported)
}

func TestSeekMaterializes(t *testing.T) {
	data := randBytes(t, 2*StorageSize+500)
	rp, err := NewProxy(newSource(data), &Config{SingleUse: false})
	require.NoError(t, err)

	target := int64(StorageSize + 10)
	pos, err := rp.Seek(target, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, target, pos)

	buf := make([]byte, 20)
	_, err = io.ReadFull(rp, buf)
	require.NoError(t, err)
	require.Equal(t, data[target:target+20], buf)

	// skipped bytes were cached, not lost
	_, err = rp.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(rp, buf)
	require.NoError(t, err)
	require.Equal(t, data[:20], buf)
}

func TestSeekEndDrainsSource(t *testing.T) {
	data := randBytes(t, 1000)
	rp, err := NewProxy(newSource(data), nil)
	require.NoError(t, err)

	pos, err := rp.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(995), pos)

	buf := make([]byte, 10)
	n, err := rp.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, data[995:], buf[:5])

	_, err = rp.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestSingleUseSeekForwardThenBack(t *testing.T) {
	// materializing is not consuming: bytes skipped by a forward seek
	// may still be read once
	data := randBytes(t, 300)
	rp, err := NewProxy(newSource(data), nil)
	require.NoError(t, err)

	_, err = rp.Seek(200, io.SeekStart)
	require.NoError(t, err)
	_, err = rp.Seek(0, io.SeekStart)
	require.NoError(t, err)

	got, err := io.ReadAll(rp)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestSingleUseReadEvicts(t *testing.T) {
	data := randBytes(t, 2*StorageSize)
	rp, err := NewProxy(newSource(data), nil)
	require.NoError(t, err)

	buf := make([]byte, StorageSize)
	_, err = io.ReadFull(rp, buf)
	require.NoError(t, err)
	require.NotContains(t, rp.units, int64(0))
	require.Contains(t, rp.units, int64(1))
}

func TestWriteBelowWatermark(t *testing.T) {
	sink, _ := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	_, err = wp.Write(randBytes(t, StorageSize))
	require.NoError(t, err)

	_, err = wp.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = wp.Write([]byte{1})
	require.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestDoubleWriteSameRange(t *testing.T) {
	sink, _ := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	_, err = wp.Write(randBytes(t, 10))
	require.NoError(t, err)
	_, err = wp.Seek(5, io.SeekStart)
	require.NoError(t, err)
	_, err = wp.Write([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestSharedModeOverwrite(t *testing.T) {
	sink, buf := newSink()
	wp, err := NewProxy(sink, &Config{SingleUse: false})
	require.NoError(t, err)

	_, err = wp.Write([]byte("aaaaaaaaaa"))
	require.NoError(t, err)
	_, err = wp.Seek(5, io.SeekStart)
	require.NoError(t, err)
	_, err = wp.Write([]byte("bbb"))
	require.NoError(t, err)
	require.NoError(t, wp.Close())
	require.Equal(t, []byte("aaaaabbbaa"), buf.Bytes())
}

func TestSeekUsageErrors(t *testing.T) {
	sink, _ := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	_, err = wp.Seek(0, 42)
	require.ErrorIs(t, err, ErrInvalidWhence)
	_, err = wp.Seek(-1, io.SeekStart)
	require.ErrorIs(t, err, ErrNegativePosition)
}

func TestLengthWritable(t *testing.T) {
	sink, _ := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	_, err = wp.Write(randBytes(t, 12345))
	require.NoError(t, err)
	l, err := wp.Length()
	require.NoError(t, err)
	require.Equal(t, int64(12345), l)

	pos, err := wp.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(12345), pos)
}

func TestSetLength(t *testing.T) {
	base := NewMemoryStream()
	p, err := NewProxy(base, &Config{SingleUse: false, Forced: true})
	require.NoError(t, err)
	require.NoError(t, p.SetLength(50))
	l, err := base.Length()
	require.NoError(t, err)
	require.Equal(t, int64(50), l)

	sink, _ := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)
	require.ErrorIs(t, wp.SetLength(10), ErrSetLengthNotSupported)

	rp, err := NewProxy(newSource([]byte("abc")), nil)
	require.NoError(t, err)
	require.ErrorIs(t, rp.SetLength(10), ErrSetLengthNotSupported)
}

func TestUsedMemoryBounded(t *testing.T) {
	sink, _ := newSink()
	wp, err := NewProxy(sink, nil)
	require.NoError(t, err)

	block := randBytes(t, StorageSize/3)
	for i := 0; i < 100; i++ {
		_, err = wp.Write(block)
		require.NoError(t, err)
		// at most the unit under the cursor plus one completed one
		require.LessOrEqual(t, wp.UsedMemory(), int64(3*StorageSize))
	}
	require.NoError(t, wp.Close())
}

func TestTransportErrorSurfaces(t *testing.T) {
	rp, err := NewProxy(FromReader(iotest{}), nil)
	require.NoError(t, err)
	_, err = rp.Read(make([]byte, 10))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read underlying stream")
}

type iotest struct{}

func (iotest) Read([]byte) (int, error) { return 0, errors.New("boom") }
