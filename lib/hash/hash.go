package hash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
)

// --------------------------------------------------------------------------
// Hash
// --------------------------------------------------------------------------

// Hash is a fixed-width surrogate computed from arbitrary bytes.
// The value is kept right-aligned in a uint64, width is 4 or 8 bytes.
type Hash struct {
	value uint64
	width int
}

// FromBytes builds a hash from its big-endian encoding
func FromBytes(b []byte) (Hash, error) {
	switch len(b) {
	case 4:
		return Hash{value: uint64(binary.BigEndian.Uint32(b)), width: 4}, nil
	case 8:
		return Hash{value: binary.BigEndian.Uint64(b), width: 8}, nil
	default:
		return Hash{}, db.SerdeErrorf("hash: invalid length %d", len(b))
	}
}

// Uint64 returns the hash value
func (h Hash) Uint64() uint64 {
	return h.value
}

// Len returns the encoded width in bytes
func (h Hash) Len() int {
	return h.width
}

// Write appends the big-endian encoding of the hash
func (h Hash) Write(buf *bytebuffer.Buffer) {
	if h.width == 4 {
		buf.PutUint32(uint32(h.value))
		return
	}
	buf.PutUint64(h.value)
}

// Bytes returns the big-endian encoding of the hash
func (h Hash) Bytes() []byte {
	out := make([]byte, h.width)
	h.PutBytes(out)
	return out
}

// PutBytes writes the big-endian encoding into dst, which must hold Len() bytes
func (h Hash) PutBytes(dst []byte) {
	if h.width == 4 {
		binary.BigEndian.PutUint32(dst, uint32(h.value))
		return
	}
	binary.BigEndian.PutUint64(dst, h.value)
}

// Add returns the hash advanced by n, wrapping around at the hash width.
// It is used to derive the probe sequence of a hash slot.
func (h Hash) Add(n uint64) Hash {
	v := h.value + n
	if h.width == 4 {
		v = uint64(uint32(v))
	}
	return Hash{value: v, width: h.width}
}

func (h Hash) String() string {
	return hex.EncodeToString(h.Bytes())
}

// --------------------------------------------------------------------------
// Factories
// --------------------------------------------------------------------------

// Factory computes fixed-width hashes. The width of a store's hashes is fixed for
// the lifetime of its data, mixing widths in one store breaks key lengths.
type Factory interface {
	// Create hashes b
	Create(b []byte) Hash
	// CreateFrom hashes the written bytes of buf
	CreateFrom(buf *bytebuffer.Buffer) Hash
	// HashLength returns the width of the produced hashes in bytes
	HashLength() int
}

// NewFactory returns the factory for the configured width (4 or 8 bytes)
func NewFactory(width int) (Factory, error) {
	switch width {
	case 8:
		return NewLongFactory(), nil
	case 4:
		return NewIntegerFactory(), nil
	default:
		return nil, db.NewError(db.ErrCodeConfig, fmt.Sprintf("hash width must be 4 or 8, got %d", width))
	}
}

// longFactory produces 8 byte xxhash64 hashes
type longFactory struct{}

// NewLongFactory creates the 8 byte factory
func NewLongFactory() Factory {
	return longFactory{}
}

func (longFactory) Create(b []byte) Hash {
	return Hash{value: xxhash.Sum64(b), width: 8}
}

func (f longFactory) CreateFrom(buf *bytebuffer.Buffer) Hash {
	return f.Create(buf.Bytes())
}

func (longFactory) HashLength() int { return 8 }

// integerFactory produces 4 byte hashes by folding xxhash64
type integerFactory struct{}

// NewIntegerFactory creates the 4 byte factory
func NewIntegerFactory() Factory {
	return integerFactory{}
}

func (integerFactory) Create(b []byte) Hash {
	h := xxhash.Sum64(b)
	return Hash{value: uint64(uint32(h) ^ uint32(h>>32)), width: 4}
}

func (f integerFactory) CreateFrom(buf *bytebuffer.Buffer) Hash {
	return f.Create(buf.Bytes())
}

func (integerFactory) HashLength() int { return 4 }

// FixedFactory returns a factory that maps every input to the same hash.
// It exists to exercise collision handling in tests of code built on hashes.
func FixedFactory(value uint64, width int) Factory {
	return fixedFactory{h: Hash{value: value, width: width}.Add(0)}
}

type fixedFactory struct {
	h Hash
}

func (f fixedFactory) Create([]byte) Hash                 { return f.h }
func (f fixedFactory) CreateFrom(*bytebuffer.Buffer) Hash { return f.h }
func (f fixedFactory) HashLength() int                    { return f.h.width }
