package bytebuffer

import (
	"encoding/binary"
)

// Buffer is a leased, append-only byte buffer.
//
// Bytes() always returns the readable slice: it starts at position zero and ends at the
// number of bytes written so far, so a freshly serialized buffer can be handed to the
// engine without another copy. Writing past the capacity moves the content into a larger
// size class from the same pool.
//
// A Buffer must not be used after it was released. Reads and writes panic in that case.
type Buffer struct {
	pool *Pool
	buf  []byte // backing array, len(buf) is the size class
	n    int    // bytes written
}

func (b *Buffer) check() {
	if b.buf == nil {
		panic("bytebuffer: use of released buffer")
	}
}

// Bytes returns the written bytes. The slice aliases the buffer and is only valid
// until the next write or the release of the buffer.
func (b *Buffer) Bytes() []byte {
	b.check()
	return b.buf[:b.n]
}

// Len returns the number of written bytes
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the size class of the current backing array
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Reset discards the content but keeps the backing array
func (b *Buffer) Reset() {
	b.check()
	b.n = 0
}

// Truncate discards all but the first n written bytes
func (b *Buffer) Truncate(n int) {
	b.check()
	if n < 0 || n > b.n {
		panic("bytebuffer: truncation out of range")
	}
	b.n = n
}

// Grow makes sure that another n bytes fit without moving the content again
func (b *Buffer) Grow(n int) {
	b.check()
	if b.n+n <= len(b.buf) {
		return
	}
	next := b.pool.take(ClassSize(b.n + n))
	copy(next, b.buf[:b.n])
	b.pool.put(b.buf)
	b.buf = next
}

// Extend appends n bytes and returns them for the caller to fill in
func (b *Buffer) Extend(n int) []byte {
	b.Grow(n)
	out := b.buf[b.n : b.n+n]
	b.n += n
	return out
}

// Write implements io.Writer, it never fails
func (b *Buffer) Write(p []byte) (int, error) {
	copy(b.Extend(len(p)), p)
	return len(p), nil
}

// WriteString appends the bytes of s
func (b *Buffer) WriteString(s string) (int, error) {
	copy(b.Extend(len(s)), s)
	return len(s), nil
}

// WriteByte implements io.ByteWriter
func (b *Buffer) WriteByte(c byte) error {
	b.Extend(1)[0] = c
	return nil
}

// PutUint32 appends v as 4 big-endian bytes
func (b *Buffer) PutUint32(v uint32) {
	binary.BigEndian.PutUint32(b.Extend(4), v)
}

// PutUint64 appends v as 8 big-endian bytes
func (b *Buffer) PutUint64(v uint64) {
	binary.BigEndian.PutUint64(b.Extend(8), v)
}
