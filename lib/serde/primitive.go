package serde

import (
	"math"
	"time"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
)

// --------------------------------------------------------------------------
// Fixed width integers
// --------------------------------------------------------------------------

// Uint64 encodes a uint64 as 8 big-endian bytes, byte order equals numeric order
type Uint64 struct{}

func (Uint64) Serialize(buf *bytebuffer.Buffer, v uint64) error {
	buf.PutUint64(v)
	return nil
}

func (Uint64) Deserialize(b []byte) (uint64, error) {
	d := NewDecoder(b, "uint64")
	v := d.Uint64("value")
	return v, d.Finish()
}

func (Uint64) EncodedSize(uint64) int { return 8 }

// Uint32 encodes a uint32 as 4 big-endian bytes, byte order equals numeric order
type Uint32 struct{}

func (Uint32) Serialize(buf *bytebuffer.Buffer, v uint32) error {
	buf.PutUint32(v)
	return nil
}

func (Uint32) Deserialize(b []byte) (uint32, error) {
	d := NewDecoder(b, "uint32")
	v := d.Uint32("value")
	return v, d.Finish()
}

func (Uint32) EncodedSize(uint32) int { return 4 }

// signBit flips the ordering of negative numbers so that byte order equals numeric order
const signBit = uint64(1) << 63

// Int64 encodes an int64 as 8 big-endian bytes with the sign bit flipped
type Int64 struct{}

func (Int64) Serialize(buf *bytebuffer.Buffer, v int64) error {
	buf.PutUint64(uint64(v) ^ signBit)
	return nil
}

func (Int64) Deserialize(b []byte) (int64, error) {
	d := NewDecoder(b, "int64")
	v := d.Uint64("value")
	return int64(v ^ signBit), d.Finish()
}

func (Int64) EncodedSize(int64) int { return 8 }

// --------------------------------------------------------------------------
// Instants
// --------------------------------------------------------------------------

const (
	// InstantWidth is the encoded size of an instant
	InstantWidth = 8
	// InstantPrecision is the resolution that survives a round trip
	InstantPrecision = time.Millisecond
)

// MinInstant and MaxInstant bound the times whose epoch milliseconds fit an int64
var (
	MinInstant = time.UnixMilli(math.MinInt64).UTC()
	MaxInstant = time.UnixMilli(math.MaxInt64).Add(time.Millisecond - time.Nanosecond).UTC()
)

// Instant encodes a time as signed epoch milliseconds (sign bit flipped, big-endian),
// so byte order equals chronological order. Sub-millisecond parts are truncated.
type Instant struct{}

func (Instant) Serialize(buf *bytebuffer.Buffer, v time.Time) error {
	if v.Before(MinInstant) || v.After(MaxInstant) {
		return db.SerdeErrorf("instant: %v outside of [%v, %v]", v, MinInstant, MaxInstant)
	}
	buf.PutUint64(uint64(v.UnixMilli()) ^ signBit)
	return nil
}

func (Instant) Deserialize(b []byte) (time.Time, error) {
	if len(b) != InstantWidth {
		return time.Time{}, db.SerdeErrorf("instant: expected %d bytes, got %d", InstantWidth, len(b))
	}
	d := NewDecoder(b, "instant")
	ms := int64(d.Uint64("millis") ^ signBit)
	return time.UnixMilli(ms).UTC(), d.Finish()
}

func (Instant) EncodedSize(time.Time) int { return InstantWidth }

// --------------------------------------------------------------------------
// Variable width values
// --------------------------------------------------------------------------

// String stores the UTF-8 bytes of a string without a length prefix,
// the value always occupies the whole key or value slot.
type String struct{}

func (String) Serialize(buf *bytebuffer.Buffer, v string) error {
	_, _ = buf.WriteString(v)
	return nil
}

func (String) Deserialize(b []byte) (string, error) {
	return string(b), nil
}

func (String) EncodedSize(v string) int { return len(v) }

// Bytes stores a byte slice as is. Deserialize returns a copy.
type Bytes struct{}

func (Bytes) Serialize(buf *bytebuffer.Buffer, v []byte) error {
	_, _ = buf.Write(v)
	return nil
}

func (Bytes) Deserialize(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (Bytes) EncodedSize(v []byte) int { return len(v) }
