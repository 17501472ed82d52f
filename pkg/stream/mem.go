package stream

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// MemoryStream is a growable, seekable in-memory stream supporting both
// directions. Writing past the end grows the buffer, writing past a
// previous Seek zero-fills the gap.
type MemoryStream struct {
	data   []byte
	pos    int64
	closed bool
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{}
}

// NewMemoryStreamOf wraps data without copying it.
func NewMemoryStreamOf(data []byte) *MemoryStream {
	return &MemoryStream{data: data}
}

// Bytes returns the current content without copying it.
func (s *MemoryStream) Bytes() []byte { return s.data }

func (s *MemoryStream) CanRead() bool  { return !s.closed }
func (s *MemoryStream) CanWrite() bool { return !s.closed }
func (s *MemoryStream) CanSeek() bool  { return !s.closed }

func (s *MemoryStream) Length() (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return int64(len(s.data)), nil
}

func (s *MemoryStream) SetLength(value int64) error {
	if s.closed {
		return ErrClosed
	}
	if value < 0 {
		return ErrNegativePosition
	}
	if n := int64(len(s.data)); value <= n {
		s.data = s.data[:value]
	} else {
		s.data = append(s.data, make([]byte, value-n)...)
	}
	if s.pos > value {
		s.pos = value
	}
	return nil
}

func (s *MemoryStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *MemoryStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if gap := s.pos - int64(len(s.data)); gap > 0 {
		s.data = append(s.data, make([]byte, gap)...)
	}
	n := copy(s.data[s.pos:], p)
	if n < len(p) {
		s.data = append(s.data, p[n:]...)
	}
	s.pos += int64(len(p))
	return len(p), nil
}

func (s *MemoryStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = int64(len(s.data)) + offset
	default:
		return 0, ErrInvalidWhence
	}
	if target < 0 {
		return 0, ErrNegativePosition
	}
	s.pos = target
	return target, nil
}

func (s *MemoryStream) Flush() error { return nil }

func (s *MemoryStream) Close() error {
	s.closed = true
	return nil
}

// ioStream lifts plain io values into the Stream contract. Pipes and
// sockets arrive this way: sequential, one direction known, no length.
type ioStream struct {
	r io.Reader
	w io.Writer
	c io.Closer
}

// FromReader wraps r as a read-only, forward-only Stream.
func FromReader(r io.Reader) Stream {
	c, _ := r.(io.Closer)
	return &ioStream{r: r, c: c}
}

// FromWriter wraps w as a write-only, forward-only Stream.
func FromWriter(w io.Writer) Stream {
	c, _ := w.(io.Closer)
	return &ioStream{w: w, c: c}
}

// FromReadWriter wraps rw as a bidirectional, forward-only Stream.
func FromReadWriter(rw io.ReadWriter) Stream {
	c, _ := rw.(io.Closer)
	return &ioStream{r: rw, w: rw, c: c}
}

func (s *ioStream) CanRead() bool  { return s.r != nil }
func (s *ioStream) CanWrite() bool { return s.w != nil }
func (s *ioStream) CanSeek() bool  { return false }

func (s *ioStream) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, ErrReadNotSupported
	}
	return s.r.Read(p)
}

func (s *ioStream) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrWriteNotSupported
	}
	return s.w.Write(p)
}

func (s *ioStream) Seek(int64, int) (int64, error) { return 0, ErrSeekNotSupported }
func (s *ioStream) Length() (int64, error)         { return 0, ErrSeekNotSupported }
func (s *ioStream) SetLength(int64) error          { return ErrSetLengthNotSupported }
func (s *ioStream) Flush() error                   { return nil }

func (s *ioStream) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// fileStream exposes an os.File as a Stream with full capabilities.
type fileStream struct {
	f        *os.File
	readable bool
	writable bool
}

// OpenFile opens path as a seekable Stream, deriving the capabilities
// from flag the way os.OpenFile interprets it.
func OpenFile(path string, flag int, perm os.FileMode) (Stream, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return FromFile(f, flag), nil
}

// FromFile wraps an already opened file, flag tells the directions it
// was opened with.
func FromFile(f *os.File, flag int) Stream {
	acc := flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR)
	return &fileStream{
		f:        f,
		readable: acc == os.O_RDONLY || acc == os.O_RDWR,
		writable: acc == os.O_WRONLY || acc == os.O_RDWR,
	}
}

func (s *fileStream) CanRead() bool  { return s.readable }
func (s *fileStream) CanWrite() bool { return s.writable }
func (s *fileStream) CanSeek() bool  { return true }

func (s *fileStream) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *fileStream) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *fileStream) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

func (s *fileStream) Length() (int64, error) {
	st, err := s.f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", s.f.Name())
	}
	return st.Size(), nil
}

func (s *fileStream) SetLength(value int64) error {
	if !s.writable {
		return ErrSetLengthNotSupported
	}
	return s.f.Truncate(value)
}

func (s *fileStream) Flush() error {
	if !s.writable {
		return nil
	}
	return s.f.Sync()
}

func (s *fileStream) Close() error { return s.f.Close() }
