package stream

import (
	"github.com/DataDog/zstd"
	lz4 "github.com/hungys/go-lz4"
	"github.com/pkg/errors"
)

// Compressor compresses and decompresses whole blocks.
type Compressor interface {
	Name() string
	CompressBound(len int) int
	Compress(dst, src []byte) (int, error)
	Decompress(dst, src []byte) (int, error)
}

// NewCompressor returns the compressor named by algr ("none", "lz4" or
// "zstd"), or nil for an unknown name.
func NewCompressor(algr string) Compressor {
	switch algr {
	case "", "none":
		return noOp{}
	case "lz4":
		return LZ4{}
	case "zstd":
		return ZStandard{level: 1}
	default:
		return nil
	}
}

type noOp struct{}

func (noOp) Name() string            { return "none" }
func (noOp) CompressBound(l int) int { return l }
func (noOp) Compress(dst, src []byte) (int, error) {
	if len(src) > len(dst) {
		return 0, errors.New("compressor: buffer too short")
	}
	return copy(dst, src), nil
}
func (noOp) Decompress(dst, src []byte) (int, error) {
	if len(src) > len(dst) {
		return 0, errors.New("compressor: buffer too short")
	}
	return copy(dst, src), nil
}

type LZ4 struct{}

func (LZ4) Name() string            { return "lz4" }
func (LZ4) CompressBound(l int) int { return lz4.CompressBound(l) }
func (LZ4) Compress(dst, src []byte) (int, error) {
	return lz4.CompressDefault(src, dst)
}
func (LZ4) Decompress(dst, src []byte) (int, error) {
	return lz4.DecompressSafe(src, dst)
}

type ZStandard struct {
	level int
}

func (ZStandard) Name() string            { return "zstd" }
func (ZStandard) CompressBound(l int) int { return zstd.CompressBound(l) }

func (z ZStandard) Compress(dst, src []byte) (int, error) {
	d, err := zstd.CompressLevel(dst[:0], src, z.level)
	if err != nil {
		return 0, err
	}
	if len(d) > len(dst) {
		return 0, errors.New("zstd: buffer too short")
	}
	if len(d) > 0 && &d[0] != &dst[0] {
		copy(dst, d)
	}
	return len(d), nil
}

func (ZStandard) Decompress(dst, src []byte) (int, error) {
	d, err := zstd.Decompress(dst[:0], src)
	if err != nil {
		return 0, err
	}
	if len(d) > len(dst) {
		return 0, errors.New("zstd: buffer too short")
	}
	if len(d) > 0 && &d[0] != &dst[0] {
		copy(dst, d)
	}
	return len(d), nil
}
