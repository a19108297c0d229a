package serde

import (
	"github.com/golang/snappy"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
)

// maxSnappyExpansion bounds decoded/encoded size. A snappy copy element of at least
// 2 bytes yields at most 64 bytes, so larger claimed lengths are corrupt.
const maxSnappyExpansion = 32

// snappySerde compresses the output of another serde with snappy block compression
type snappySerde[T any] struct {
	inner Serde[T]
	pool  *bytebuffer.Pool
}

// Snappy wraps inner so that its encoding is stored snappy-compressed.
// Compressed encodings do not preserve ordering, use it for values, not for keys.
func Snappy[T any](inner Serde[T], pool *bytebuffer.Pool) Serde[T] {
	return &snappySerde[T]{inner: inner, pool: pool}
}

func (s *snappySerde[T]) Serialize(buf *bytebuffer.Buffer, v T) error {
	return s.pool.With(SizeHint[T](s.inner, v), func(raw *bytebuffer.Buffer) error {
		if err := s.inner.Serialize(raw, v); err != nil {
			return err
		}
		start := buf.Len()
		dst := buf.Extend(snappy.MaxEncodedLen(raw.Len()))
		encoded := snappy.Encode(dst, raw.Bytes())
		buf.Truncate(start + len(encoded))
		return nil
	})
}

func (s *snappySerde[T]) Deserialize(b []byte) (T, error) {
	n, err := snappy.DecodedLen(b)
	if err != nil {
		var zero T
		return zero, db.WrapError(db.ErrCodeSerde, err, "snappy: corrupt header")
	}
	if n > maxSnappyExpansion*len(b) {
		var zero T
		return zero, db.SerdeErrorf("snappy: header claims %d bytes for %d compressed bytes", n, len(b))
	}
	var v T
	err = s.pool.With(n, func(raw *bytebuffer.Buffer) error {
		decoded, err := snappy.Decode(raw.Extend(n), b)
		if err != nil {
			return db.WrapError(db.ErrCodeSerde, err, "snappy: corrupt block")
		}
		// inner copies out, the pooled buffer goes back when we return
		v, err = s.inner.Deserialize(decoded)
		return err
	})
	return v, err
}
