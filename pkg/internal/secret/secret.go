// Package secret provides pooled scratch buffers for sensitive bytes such as
// signing inputs, unwrapped content encryption keys and decrypted payloads.
//
// Every buffer obtained with Get must be released with Release, normally via
// defer, which zeroes the contents before the buffer goes back to the pool.
package secret

import "sync"

// maxPooledCap bounds the capacity of buffers returned to the pool so that a
// single large token does not pin memory forever.
const maxPooledCap = 64 << 10

var pool = sync.Pool{
	New: func() any {
		return &Buffer{b: make([]byte, 0, 512)}
	},
}

// Buffer is a scoped byte buffer.
type Buffer struct {
	b []byte
}

// Get returns an empty buffer with at least the given capacity.
func Get(capacity int) *Buffer {
	buf := pool.Get().(*Buffer)
	if cap(buf.b) < capacity {
		buf.b = make([]byte, 0, capacity)
	}
	return buf
}

// Bytes returns the buffer contents. The slice is only valid until Release.
func (b *Buffer) Bytes() []byte {
	return b.b
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.b)
}

// Write appends p to the buffer. It never returns an error.
func (b *Buffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

// WriteString appends s to the buffer. It never returns an error.
func (b *Buffer) WriteString(s string) (int, error) {
	b.b = append(b.b, s...)
	return len(s), nil
}

// WriteByte appends c to the buffer. It never returns an error.
func (b *Buffer) WriteByte(c byte) error {
	b.b = append(b.b, c)
	return nil
}

// Grow extends the buffer by n zero bytes and returns the extension, for
// callers that encode in place.
func (b *Buffer) Grow(n int) []byte {
	start := len(b.b)
	if cap(b.b)-start < n {
		grown := make([]byte, start, start+n)
		copy(grown, b.b)
		Zero(b.b)
		b.b = grown
	}
	b.b = b.b[:start+n]
	return b.b[start:]
}

// Release zeroes the buffer and returns it to the pool. The buffer must not
// be used afterwards. Release on a nil buffer is a no-op.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	Zero(b.b[:cap(b.b)])
	b.b = b.b[:0]
	if cap(b.b) > maxPooledCap {
		return
	}
	pool.Put(b)
}

// Zero overwrites p with zeros.
func Zero(p []byte) {
	clear(p)
}
