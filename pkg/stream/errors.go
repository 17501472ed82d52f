package stream

import "github.com/pkg/errors"

var (
	// ErrClosed is returned by every operation on a closed stream.
	ErrClosed = errors.New("stream is closed")

	// ErrReadNotSupported is returned when reading from a stream whose
	// direction was resolved to writing, or whose transport cannot read.
	ErrReadNotSupported = errors.New("stream does not support reading")

	// ErrWriteNotSupported is the write-direction counterpart of
	// ErrReadNotSupported.
	ErrWriteNotSupported = errors.New("stream does not support writing")

	// ErrSeekNotSupported is returned by forward-only transports.
	ErrSeekNotSupported = errors.New("stream does not support seeking")

	// ErrSetLengthNotSupported is returned when the stream is not
	// write-capable or its transport cannot seek.
	ErrSetLengthNotSupported = errors.New("stream does not support setting its length")

	// ErrAlreadyConsumed signals a protocol violation under single-use
	// mode: the byte range was already read, already written, or lies
	// below the flush watermark.
	ErrAlreadyConsumed = errors.New("byte range was already consumed")

	// ErrNegativePosition is returned when a seek would move the cursor
	// before the start of the stream.
	ErrNegativePosition = errors.New("seek before start of stream")

	// ErrInvalidWhence is returned for an unknown seek origin.
	ErrInvalidWhence = errors.New("invalid seek origin")
)
