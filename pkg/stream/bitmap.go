package stream

// bitmap tracks which bytes of a storage unit have been consumed, one bit
// per byte. Bit i of the bitmap corresponds to the byte at logical
// position unit*StorageSize+i.
type bitmap struct {
	bits []byte
	size int
}

func newBitmap(size int) *bitmap {
	return &bitmap{bits: make([]byte, (size+7)/8), size: size}
}

func (b *bitmap) get(i int) bool {
	return b.bits[i>>3]&(1<<uint(i&7)) != 0
}

// setRange sets the bits in [from, to).
func (b *bitmap) setRange(from, to int) {
	for ; from < to && from&7 != 0; from++ {
		b.bits[from>>3] |= 1 << uint(from&7)
	}
	for ; from+8 <= to; from += 8 {
		b.bits[from>>3] = 0xFF
	}
	for ; from < to; from++ {
		b.bits[from>>3] |= 1 << uint(from&7)
	}
}

// anySet reports whether any bit in [from, to) is set.
func (b *bitmap) anySet(from, to int) bool {
	for i := from; i < to; i++ {
		if i&7 == 0 && i+8 <= to {
			if b.bits[i>>3] != 0 {
				return true
			}
			i += 7
			continue
		}
		if b.get(i) {
			return true
		}
	}
	return false
}

// allSet reports whether every bit in [from, to) is set.
func (b *bitmap) allSet(from, to int) bool {
	for i := from; i < to; i++ {
		if i&7 == 0 && i+8 <= to {
			if b.bits[i>>3] != 0xFF {
				return false
			}
			i += 7
			continue
		}
		if !b.get(i) {
			return false
		}
	}
	return true
}
