package serde

import (
	"encoding/binary"

	"github.com/ValentinKolb/planb/lib/db"
)

// Decoder reads fixed-width fields from a byte slice. The first short read sets a
// sticky error, all later reads return zero values. Finish reports that error or
// rejects unread trailing bytes.
type Decoder struct {
	b    []byte
	pos  int
	what string
	err  error
}

// NewDecoder creates a decoder for b. what names the decoded type in error messages.
func NewDecoder(b []byte, what string) *Decoder {
	return &Decoder{b: b, what: what}
}

func (d *Decoder) take(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	if d.pos+n > len(d.b) {
		d.err = db.SerdeErrorf("%s: data too short for %s (need %d bytes at offset %d, have %d)", d.what, field, n, d.pos, len(d.b))
		return nil
	}
	out := d.b[d.pos : d.pos+n]
	d.pos += n
	return out
}

// Byte reads one byte
func (d *Decoder) Byte(field string) byte {
	if b := d.take(1, field); b != nil {
		return b[0]
	}
	return 0
}

// Uint32 reads 4 big-endian bytes
func (d *Decoder) Uint32(field string) uint32 {
	if b := d.take(4, field); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

// Uint64 reads 8 big-endian bytes
func (d *Decoder) Uint64(field string) uint64 {
	if b := d.take(8, field); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// Uint reads an unsigned big-endian integer of the given width (1 to 8 bytes)
func (d *Decoder) Uint(width int, field string) uint64 {
	b := d.take(width, field)
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Bytes returns the next n bytes without copying
func (d *Decoder) Bytes(n int, field string) []byte {
	return d.take(n, field)
}

// Rest returns all unread bytes without copying
func (d *Decoder) Rest() []byte {
	if d.err != nil {
		return nil
	}
	out := d.b[d.pos:]
	d.pos = len(d.b)
	return out
}

// Finish returns the sticky error, or an error if bytes are left unread
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.pos != len(d.b) {
		return db.SerdeErrorf("%s: %d trailing bytes", d.what, len(d.b)-d.pos)
	}
	return nil
}
