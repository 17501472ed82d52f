package stream

import (
	"io"

	"SeekStream/pkg/utils"
)

var logger = utils.GetLogger("seekstream")

// Stream is the byte-stream contract consumed and re-exposed by this
// package. It extends the io interfaces with capability probes, so a
// wrapper can tell which operations the transport underneath supports
// without trying them.
//
// A non-seekable Stream moves strictly forward: Seek returns
// ErrSeekNotSupported and Length may be unknown until the stream is
// exhausted. Wrap such a stream in a ProxyStream to get random access.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// CanRead reports whether the stream supports reading.
	CanRead() bool
	// CanWrite reports whether the stream supports writing.
	CanWrite() bool
	// CanSeek reports whether the stream supports random access natively.
	CanSeek() bool

	// Length returns the total size of the stream in bytes.
	Length() (int64, error)
	// SetLength truncates or extends the stream.
	SetLength(int64) error
	// Flush forces buffered bytes down to the transport.
	Flush() error
}
