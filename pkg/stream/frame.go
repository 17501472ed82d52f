package stream

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// DefaultBlockSize is the plaintext block size of framed streams.
const DefaultBlockSize = 1 << 16

// frameHeaderSize is the raw length plus the encoded length, both
// uint32 big endian.
const frameHeaderSize = 8

// blockCodec transforms whole blocks on their way through a framed
// stream.
type blockCodec interface {
	encode(src []byte) ([]byte, error)
	decode(src []byte, rawLen int) ([]byte, error)
}

// framedStream carries codec-transformed blocks over an inner stream,
// each prefixed with its raw and encoded lengths. The result is
// sequential in both directions, so it is a natural candidate for a
// ProxyStream when random access is needed.
type framedStream struct {
	inner     Stream
	codec     blockCodec
	blockSize int

	wbuf []byte // plaintext collected for the next block
	rbuf []byte // decoded bytes not yet handed out
	roff int
}

// NewCompressed frames blocks of blockSize bytes (DefaultBlockSize when
// zero or negative) compressed with c over inner. Closing the returned
// stream flushes the trailing partial block and closes inner.
func NewCompressed(inner Stream, c Compressor, blockSize int) Stream {
	return newFramed(inner, compressCodec{c}, blockSize)
}

// NewEncrypted is NewCompressed with sealing instead of compression.
func NewEncrypted(inner Stream, e Encryptor, blockSize int) Stream {
	return newFramed(inner, encryptCodec{e}, blockSize)
}

func newFramed(inner Stream, codec blockCodec, blockSize int) *framedStream {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &framedStream{inner: inner, codec: codec, blockSize: blockSize}
}

func (f *framedStream) CanRead() bool  { return f.inner.CanRead() }
func (f *framedStream) CanWrite() bool { return f.inner.CanWrite() }
func (f *framedStream) CanSeek() bool  { return false }

func (f *framedStream) Seek(int64, int) (int64, error) { return 0, ErrSeekNotSupported }
func (f *framedStream) Length() (int64, error)         { return 0, ErrSeekNotSupported }
func (f *framedStream) SetLength(int64) error          { return ErrSetLengthNotSupported }

func (f *framedStream) Write(p []byte) (int, error) {
	f.wbuf = append(f.wbuf, p...)
	for len(f.wbuf) >= f.blockSize {
		if err := f.writeBlock(f.wbuf[:f.blockSize]); err != nil {
			return 0, err
		}
		f.wbuf = f.wbuf[:copy(f.wbuf, f.wbuf[f.blockSize:])]
	}
	return len(p), nil
}

func (f *framedStream) writeBlock(block []byte) error {
	enc, err := f.codec.encode(block)
	if err != nil {
		return err
	}
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(len(block)))
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(enc)))
	if _, err := f.inner.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := f.inner.Write(enc); err != nil {
		return errors.Wrap(err, "write frame payload")
	}
	return nil
}

func (f *framedStream) Read(p []byte) (int, error) {
	if f.roff >= len(f.rbuf) {
		if err := f.readBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, f.rbuf[f.roff:])
	f.roff += n
	return n, nil
}

func (f *framedStream) readBlock() error {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(f.inner, hdr[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.Wrap(err, "read frame header")
	}
	rawLen := int(binary.BigEndian.Uint32(hdr[0:]))
	encLen := int(binary.BigEndian.Uint32(hdr[4:]))
	enc := make([]byte, encLen)
	if _, err := io.ReadFull(f.inner, enc); err != nil {
		return errors.Wrap(err, "read frame payload")
	}
	dec, err := f.codec.decode(enc, rawLen)
	if err != nil {
		return err
	}
	f.rbuf = dec
	f.roff = 0
	return nil
}

// Flush emits the pending partial block. Blocks of uneven length are
// fine, readers size each block from its header.
func (f *framedStream) Flush() error {
	if len(f.wbuf) > 0 {
		if err := f.writeBlock(f.wbuf); err != nil {
			return err
		}
		f.wbuf = f.wbuf[:0]
	}
	return f.inner.Flush()
}

func (f *framedStream) Close() error {
	var err error
	if f.inner.CanWrite() && len(f.wbuf) > 0 {
		err = f.Flush()
	}
	if cerr := f.inner.Close(); err == nil {
		err = cerr
	}
	return err
}

type compressCodec struct {
	c Compressor
}

func (cc compressCodec) encode(src []byte) ([]byte, error) {
	dst := make([]byte, cc.c.CompressBound(len(src)))
	n, err := cc.c.Compress(dst, src)
	if err != nil {
		return nil, errors.Wrapf(err, "compress block with %s", cc.c.Name())
	}
	return dst[:n], nil
}

func (cc compressCodec) decode(src []byte, rawLen int) ([]byte, error) {
	dst := make([]byte, rawLen)
	n, err := cc.c.Decompress(dst, src)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress block with %s", cc.c.Name())
	}
	if n != rawLen {
		return nil, errors.Errorf("decompressed %d bytes, frame header says %d", n, rawLen)
	}
	return dst[:n], nil
}

type encryptCodec struct {
	e Encryptor
}

func (ec encryptCodec) encode(src []byte) ([]byte, error) {
	return ec.e.Encrypt(src)
}

func (ec encryptCodec) decode(src []byte, rawLen int) ([]byte, error) {
	dec, err := ec.e.Decrypt(src)
	if err != nil {
		return nil, err
	}
	if len(dec) != rawLen {
		return nil, errors.Errorf("decrypted %d bytes, frame header says %d", len(dec), rawLen)
	}
	return dec, nil
}
