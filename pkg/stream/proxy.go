package stream

import (
	"io"
	"math"
	"sort"

	"github.com/pkg/errors"

	"SeekStream/pkg/utils"
)

// StorageSize is the number of bytes held by a single storage unit.
const StorageSize = 10000

// zeroes backs the flush path for units that were never touched.
var zeroes = make([]byte, StorageSize)

// Config controls how a ProxyStream stages data.
type Config struct {
	// SingleUse declares that every logical byte is read or written at
	// most once, which lets the proxy evict storage units as soon as
	// they are fully consumed. Violating the declaration fails with
	// ErrAlreadyConsumed.
	SingleUse bool
	// Forced buffers through storage units even when the underlying
	// stream seeks natively.
	Forced bool
	// CloseUnderlying closes the underlying stream when the proxy is
	// closed.
	CloseUnderlying bool
}

// DefaultConfig is what NewProxy uses for a nil config.
func DefaultConfig() *Config {
	return &Config{SingleUse: true}
}

type accessMode int

const (
	modeUndefined accessMode = iota
	modeReadable
	modeWritable
)

// ProxyStream virtualizes a forward-only underlying stream into a
// seekable one. Data is staged in fixed-size in-memory storage units:
// reads materialize bytes from the source into units so the cursor can
// move back over them, writes collect bytes in units until they are
// flushed down to the sink. Under SingleUse the proxy drops every unit
// the moment it is fully consumed, so memory stays bounded by the span
// the caller actually revisits.
//
// The proxy commits to one direction on the first Read or Write and
// keeps it for its lifetime. It is not safe for concurrent use.
type ProxyStream struct {
	base Stream
	conf Config

	mode   accessMode
	closed bool

	position    int64 // cursor in the logical stream
	maxPosition int64 // highest logical position ever reached

	units map[int64][]byte  // storage unit index -> staged bytes
	marks map[int64]*bitmap // storage unit index -> consumed bytes

	flushIndex    int64 // last unit fully committed to the underlying stream
	flushPosition int64 // bytes below this are committed to the underlying stream

	exhausted  bool  // the underlying source hit EOF
	baseLength int64 // discovered source length, valid once exhausted
}

// NewProxy wraps base. A nil conf means DefaultConfig.
func NewProxy(base Stream, conf *Config) (*ProxyStream, error) {
	if base == nil {
		return nil, errors.New("underlying stream is nil")
	}
	if !base.CanRead() && !base.CanWrite() {
		return nil, errors.New("underlying stream supports neither reading nor writing")
	}
	if conf == nil {
		conf = DefaultConfig()
	}
	p := &ProxyStream{
		base:       base,
		conf:       *conf,
		units:      make(map[int64][]byte),
		marks:      make(map[int64]*bitmap),
		flushIndex: -1,
	}
	switch {
	case base.CanRead() && base.CanWrite():
		p.mode = modeUndefined
	case base.CanWrite():
		p.mode = modeWritable
	default:
		p.mode = modeReadable
	}
	return p, nil
}

// CanRead reports whether the proxy reads. Once the direction is
// resolved it no longer consults the underlying stream.
func (p *ProxyStream) CanRead() bool {
	if p.closed {
		return false
	}
	switch p.mode {
	case modeReadable:
		return true
	case modeWritable:
		return false
	default:
		return p.base.CanRead()
	}
}

// CanWrite reports whether the proxy writes.
func (p *ProxyStream) CanWrite() bool {
	if p.closed {
		return false
	}
	switch p.mode {
	case modeWritable:
		return true
	case modeReadable:
		return false
	default:
		return p.base.CanWrite()
	}
}

// CanSeek always reports true, that is the point of the proxy.
func (p *ProxyStream) CanSeek() bool {
	return !p.closed
}

// Position returns the cursor in the logical stream.
func (p *ProxyStream) Position() (int64, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if !p.conf.Forced && p.base.CanSeek() {
		return p.base.Seek(0, io.SeekCurrent)
	}
	return p.position, nil
}

// Length returns the size of the logical stream. Against a forward-only
// readable source the size is unknown until the source is exhausted, so
// Length drains the remainder into the cache first.
func (p *ProxyStream) Length() (int64, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if p.base.CanSeek() {
		l, err := p.base.Length()
		if err != nil {
			return 0, errors.Wrap(err, "length of underlying stream")
		}
		if p.mode == modeWritable && p.maxPosition > l {
			l = p.maxPosition
		}
		return l, nil
	}
	if p.mode != modeReadable {
		return p.maxPosition, nil
	}
	if err := p.materialize(math.MaxInt64); err != nil {
		return 0, err
	}
	return p.baseLength, nil
}

// Seek moves the cursor. In readable mode a forward seek materializes
// the skipped bytes from the source (they may be read later after
// seeking back); in writable mode it is a pure cursor move and the gap
// is zero-filled at flush time.
func (p *ProxyStream) Seek(offset int64, whence int) (int64, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if !p.conf.Forced && p.base.CanSeek() {
		n, err := p.base.Seek(offset, whence)
		return n, errors.Wrap(err, "seek underlying stream")
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = p.position + offset
	case io.SeekEnd:
		l, err := p.Length()
		if err != nil {
			return 0, err
		}
		target = l + offset
	default:
		return 0, ErrInvalidWhence
	}
	if target < 0 {
		return 0, ErrNegativePosition
	}
	if p.mode == modeReadable {
		if err := p.materialize(target); err != nil {
			return 0, err
		}
	}
	p.position = target
	return target, nil
}

// Read copies bytes from the staged cache into buf, materializing them
// from the source first when needed. Under SingleUse every byte may be
// read only once and fully consumed units are dropped on the way out.
func (p *ProxyStream) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if !p.conf.Forced && p.base.CanSeek() && p.base.CanRead() {
		n, err := p.base.Read(buf)
		if err != nil && err != io.EOF {
			err = errors.Wrap(err, "read underlying stream")
		}
		return n, err
	}
	if err := p.resolveMode(modeReadable); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if err := p.materialize(p.position + int64(len(buf))); err != nil {
		return 0, err
	}
	avail := p.maxPosition - p.position
	if avail <= 0 {
		return 0, io.EOF
	}
	count := int64(len(buf))
	if count > avail {
		count = avail
	}
	if p.conf.SingleUse {
		if err := p.checkUnread(p.position, count); err != nil {
			return 0, err
		}
	}
	read := 0
	pos := p.position
	for int64(read) < count {
		idx := pos / StorageSize
		off := int(pos % StorageSize)
		span := StorageSize - off
		if rest := int(count) - read; span > rest {
			span = rest
		}
		unit, ok := p.units[idx]
		if !ok {
			return read, ErrAlreadyConsumed
		}
		copy(buf[read:read+span], unit[off:off+span])
		if p.conf.SingleUse {
			p.mark(idx).setRange(off, off+span)
		}
		pos += int64(span)
		read += span
	}
	first, last := p.position/StorageSize, (pos-1)/StorageSize
	p.position = pos
	if p.conf.SingleUse {
		p.evictConsumed(first, last)
	}
	return read, nil
}

// Write copies buf into lazily allocated storage units and advances the
// cursor. Nothing reaches the underlying stream until Flush, Close, or,
// under SingleUse, the implicit eviction of fully written units.
func (p *ProxyStream) Write(buf []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if !p.conf.Forced && p.base.CanSeek() && p.base.CanWrite() {
		n, err := p.base.Write(buf)
		return n, errors.Wrap(err, "write underlying stream")
	}
	if err := p.resolveMode(modeWritable); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if p.conf.SingleUse {
		if err := p.checkUnwritten(p.position, int64(len(buf))); err != nil {
			return 0, err
		}
	}
	written := 0
	pos := p.position
	for written < len(buf) {
		idx := pos / StorageSize
		off := int(pos % StorageSize)
		span := utils.Min(StorageSize-off, len(buf)-written)
		unit, ok := p.units[idx]
		if !ok {
			unit = utils.Alloc(StorageSize)
			p.units[idx] = unit
		}
		copy(unit[off:off+span], buf[written:written+span])
		if p.conf.SingleUse {
			p.mark(idx).setRange(off, off+span)
		}
		pos += int64(span)
		written += span
	}
	p.position = pos
	if p.position > p.maxPosition {
		p.maxPosition = p.position
	}
	if p.conf.SingleUse {
		if err := p.evictFlushed(); err != nil {
			return written, err
		}
	}
	return written, nil
}

// Flush commits every staged byte up to max(position, maxPosition) to
// the underlying stream. Calling it again without intervening writes is
// a no-op.
func (p *ProxyStream) Flush() error {
	if p.closed {
		return ErrClosed
	}
	if !p.conf.Forced && p.base.CanSeek() {
		return p.base.Flush()
	}
	if p.mode != modeWritable {
		return nil
	}
	return p.flushTo(max(p.position, p.maxPosition))
}

// SetLength truncates or extends the logical stream. It needs a
// write-capable mode and a seekable underlying stream.
func (p *ProxyStream) SetLength(value int64) error {
	if p.closed {
		return ErrClosed
	}
	if p.mode == modeReadable || !p.base.CanWrite() || !p.base.CanSeek() {
		return ErrSetLengthNotSupported
	}
	return errors.Wrap(p.base.SetLength(value), "set length of underlying stream")
}

// Close flushes staged writes, releases the cache and, when configured,
// closes the underlying stream. It is idempotent.
func (p *ProxyStream) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	if p.mode == modeWritable && (p.conf.Forced || !p.base.CanSeek()) {
		err = p.flushTo(max(p.position, p.maxPosition))
	}
	for idx, unit := range p.units {
		utils.Free(unit)
		delete(p.units, idx)
	}
	p.units, p.marks = nil, nil
	if p.conf.CloseUnderlying {
		if cerr := p.base.Close(); err == nil {
			err = errors.Wrap(cerr, "close underlying stream")
		}
	}
	return err
}

// UsedMemory returns the bytes currently staged in storage units and
// their bitmaps.
func (p *ProxyStream) UsedMemory() int64 {
	var used int64
	for range p.units {
		used += StorageSize
	}
	for _, m := range p.marks {
		used += int64(len(m.bits))
	}
	return used
}

// resolveMode commits the proxy to a direction on the first Read or
// Write; afterwards the other direction fails for its lifetime.
func (p *ProxyStream) resolveMode(want accessMode) error {
	if p.mode == want {
		return nil
	}
	if p.mode != modeUndefined {
		if want == modeReadable {
			return ErrReadNotSupported
		}
		return ErrWriteNotSupported
	}
	if want == modeReadable && !p.base.CanRead() {
		return ErrReadNotSupported
	}
	if want == modeWritable && !p.base.CanWrite() {
		return ErrWriteNotSupported
	}
	p.mode = want
	if want == modeReadable {
		logger.Debugf("proxy committed to read mode")
	} else {
		logger.Debugf("proxy committed to write mode")
	}
	return nil
}

func (p *ProxyStream) mark(idx int64) *bitmap {
	m, ok := p.marks[idx]
	if !ok {
		m = newBitmap(StorageSize)
		p.marks[idx] = m
	}
	return m
}

// materialize pulls bytes from the forward-only source into storage
// units until the cache covers the logical stream up to target or the
// source is exhausted.
func (p *ProxyStream) materialize(target int64) error {
	for p.maxPosition < target && !p.exhausted {
		idx := p.maxPosition / StorageSize
		off := int(p.maxPosition % StorageSize)
		unit, ok := p.units[idx]
		if !ok {
			unit = utils.Alloc(StorageSize)
			p.units[idx] = unit
		}
		n, err := p.base.Read(unit[off:])
		p.maxPosition += int64(n)
		if err == io.EOF || (n == 0 && err == nil) {
			p.exhausted = true
			p.baseLength = p.maxPosition
			if !ok && n == 0 && off == 0 {
				// the unit never received a byte
				utils.Free(unit)
				delete(p.units, idx)
			}
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read underlying stream")
		}
	}
	return nil
}

// checkUnread rejects a read of any byte already consumed. A missing
// unit below the materialized frontier means the bytes were read and
// the unit evicted.
func (p *ProxyStream) checkUnread(pos, count int64) error {
	for count > 0 {
		idx := pos / StorageSize
		off := int(pos % StorageSize)
		span := int64(StorageSize - off)
		if span > count {
			span = count
		}
		if _, cached := p.units[idx]; !cached {
			logger.Debugf("storage unit %d was already consumed and evicted", idx)
			return ErrAlreadyConsumed
		}
		if m, ok := p.marks[idx]; ok && m.anySet(off, off+int(span)) {
			return ErrAlreadyConsumed
		}
		pos += span
		count -= span
	}
	return nil
}

// checkUnwritten rejects a write below the flush watermark or over a
// byte already written. The two conditions are independent: a byte may
// be unreachable because it was committed downstream even though its
// unit (and bitmap) is long gone.
func (p *ProxyStream) checkUnwritten(pos, count int64) error {
	if pos < p.flushPosition {
		logger.Debugf("write at %d is below the flush watermark %d", pos, p.flushPosition)
		return ErrAlreadyConsumed
	}
	for count > 0 {
		idx := pos / StorageSize
		off := int(pos % StorageSize)
		span := int64(StorageSize - off)
		if span > count {
			span = count
		}
		if m, ok := p.marks[idx]; ok && m.anySet(off, off+int(span)) {
			return ErrAlreadyConsumed
		}
		pos += span
		count -= span
	}
	return nil
}

// evictConsumed drops the storage units in [first, last] whose every
// byte has been read.
func (p *ProxyStream) evictConsumed(first, last int64) {
	for idx := first; idx <= last; idx++ {
		m, ok := p.marks[idx]
		if !ok || !m.allSet(0, StorageSize) {
			continue
		}
		utils.Free(p.units[idx])
		delete(p.units, idx)
		delete(p.marks, idx)
	}
}

// selectFlushable returns the longest run of cached unit indices,
// starting right after the flush watermark, whose bytes are all
// written. The run stops at the first gap or partial unit: committing
// past either would misplace bytes on the forward-only sink.
func (p *ProxyStream) selectFlushable() []int64 {
	idxs := make([]int64, 0, len(p.units))
	for idx := range p.units {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	var out []int64
	next := p.flushIndex + 1
	for _, idx := range idxs {
		if idx != next {
			break
		}
		start := 0
		// a previous flush may have committed a prefix of this unit
		if s := p.flushPosition - idx*StorageSize; s > 0 {
			start = int(s)
		}
		m, ok := p.marks[idx]
		if !ok || !m.allSet(start, StorageSize) {
			break
		}
		out = append(out, idx)
		next++
	}
	return out
}

// evictFlushed writes the fully completed prefix of staged units to the
// underlying stream and drops them, advancing the watermark.
func (p *ProxyStream) evictFlushed() error {
	for _, idx := range p.selectFlushable() {
		start := 0
		if s := p.flushPosition - idx*StorageSize; s > 0 {
			start = int(s)
		}
		unit := p.units[idx]
		if err := p.writeBase(unit[start:StorageSize]); err != nil {
			return err
		}
		utils.Free(unit)
		delete(p.units, idx)
		delete(p.marks, idx)
		p.flushIndex = idx
		p.flushPosition = (idx + 1) * StorageSize
	}
	return nil
}

// flushTo commits every staged byte below target to the underlying
// stream, zero-filling units that were never touched so the sink stays
// positionally aligned, and drops the units it completed.
func (p *ProxyStream) flushTo(target int64) error {
	if target <= p.flushPosition {
		return nil
	}
	lastIdx := (target - 1) / StorageSize
	for idx := p.flushIndex + 1; idx <= lastIdx; idx++ {
		start := 0
		if s := p.flushPosition - idx*StorageSize; s > 0 {
			start = int(s)
		}
		end := StorageSize
		if idx == lastIdx {
			if e := target - idx*StorageSize; e < StorageSize {
				end = int(e)
			}
		}
		unit, cached := p.units[idx]
		if !cached {
			unit = zeroes
		}
		if err := p.writeBase(unit[start:end]); err != nil {
			return err
		}
		if end == StorageSize {
			if cached {
				utils.Free(unit)
				delete(p.units, idx)
				delete(p.marks, idx)
			}
			p.flushIndex = idx
		}
		p.flushPosition = idx*StorageSize + int64(end)
	}
	return nil
}

func (p *ProxyStream) writeBase(b []byte) error {
	_, err := p.base.Write(b)
	return errors.Wrap(err, "write underlying stream")
}
