package serde

import (
	"github.com/ValentinKolb/planb/lib/bytebuffer"
)

// Serializer appends the encoding of a value to a buffer.
// After Serialize returns, buf.Bytes() is ready to be handed to the engine.
type Serializer[T any] interface {
	Serialize(buf *bytebuffer.Buffer, v T) (err error)
}

// Deserializer decodes a value from the whole of b. Implementations must copy
// everything they keep, b usually points into a memory map that is only valid
// for the current transaction. Malformed, truncated or over-long input fails
// with an error matching db.ErrSerde.
type Deserializer[T any] interface {
	Deserialize(b []byte) (v T, err error)
}

// Serde is the combined serializer/deserializer for one domain type
type Serde[T any] interface {
	Serializer[T]
	Deserializer[T]
}

// Sizer is implemented by serdes that can tell the encoded size of a value up front.
// It is only used to pick a buffer size class.
type Sizer[T any] interface {
	EncodedSize(v T) int
}

// DefaultSizeHint is the buffer size requested for serdes without a Sizer
const DefaultSizeHint = 256

// SizeHint returns the expected encoded size of v
func SizeHint[T any](s Serializer[T], v T) int {
	if sizer, ok := s.(Sizer[T]); ok {
		return sizer.EncodedSize(v)
	}
	return DefaultSizeHint
}

// Marshal serializes v into a pooled buffer and passes the encoded bytes to fn.
// The buffer is released when fn returns, fn must not retain the slice.
func Marshal[T any](pool *bytebuffer.Pool, s Serializer[T], v T, fn func(b []byte) error) error {
	return pool.With(SizeHint(s, v), func(buf *bytebuffer.Buffer) error {
		if err := s.Serialize(buf, v); err != nil {
			return err
		}
		return fn(buf.Bytes())
	})
}
