package utils

import "sync"

var pools sync.Map // size -> *sync.Pool

// Alloc returns a zeroed buffer of the given size, reusing freed ones of
// the same size when possible.
func Alloc(size int) []byte {
	v, ok := pools.Load(size)
	if !ok {
		v, _ = pools.LoadOrStore(size, &sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		})
	}
	b := v.(*sync.Pool).Get().([]byte)
	for i := range b {
		b[i] = 0
	}
	return b
}

// Free returns a buffer obtained from Alloc to its pool.
func Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:cap(b)]
	if v, ok := pools.Load(len(b)); ok {
		v.(*sync.Pool).Put(b)
	}
}
