package composite

import (
	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/serde"
	"github.com/ValentinKolb/planb/lib/uid"
)

const (
	tagInline byte = 0
	tagLookup byte = 1

	DefaultInlineLimit = 32 // Encodings up to this size are stored inline
)

// VariantSerde stores small values inline and replaces large ones by their lookup id.
// Every encoding starts with a tag byte, so readers know which form they hold
// without knowing the value.
type VariantSerde[T any] struct {
	inner       serde.Serde[T]
	lookup      uid.Lookup
	pool        *bytebuffer.Pool
	inlineLimit int
}

// NewVariantSerde creates a variant serde. inlineLimit <= 0 selects DefaultInlineLimit.
func NewVariantSerde[T any](inner serde.Serde[T], lookup uid.Lookup, pool *bytebuffer.Pool, inlineLimit int) *VariantSerde[T] {
	if inlineLimit <= 0 {
		inlineLimit = DefaultInlineLimit
	}
	return &VariantSerde[T]{inner: inner, lookup: lookup, pool: pool, inlineLimit: inlineLimit}
}

// UsesLookup reports whether the encoding b refers to the lookup table
func (s *VariantSerde[T]) UsesLookup(b []byte) bool {
	return len(b) > 0 && b[0] == tagLookup
}

// Write encodes v and hands the bytes to fn. The slice is only valid during fn.
func (s *VariantSerde[T]) Write(w db.Writer, v T, fn func(b []byte) error) error {
	return s.pool.With(serde.SizeHint[T](s.inner, v), func(raw *bytebuffer.Buffer) error {
		if err := s.inner.Serialize(raw, v); err != nil {
			return err
		}
		if raw.Len() <= s.inlineLimit {
			return s.emit(tagInline, raw.Bytes(), fn)
		}
		return s.lookup.Put(w, raw.Bytes(), func(id []byte) error {
			return s.emit(tagLookup, id, fn)
		})
	})
}

// Read decodes an encoding produced by Write. r is only used for lookup encodings.
func (s *VariantSerde[T]) Read(r db.Reader, b []byte) (T, error) {
	var zero T
	d := serde.NewDecoder(b, "variant")
	tag := d.Byte("tag")
	body := d.Rest()
	if err := d.Finish(); err != nil {
		return zero, err
	}

	switch tag {
	case tagInline:
		return s.inner.Deserialize(body)
	case tagLookup:
		id := body
		if len(id) != s.lookup.IDLength() {
			return zero, db.SerdeErrorf("variant: id has %d bytes, want %d", len(id), s.lookup.IDLength())
		}
		raw, found, err := s.lookup.GetValue(r, id)
		if err != nil {
			return zero, err
		}
		if !found {
			return zero, db.SerdeErrorf("variant: unknown surrogate %x in %s", id, s.lookup.Table())
		}
		return s.inner.Deserialize(raw)
	default:
		return zero, db.SerdeErrorf("variant: unknown tag %d", tag)
	}
}

func (s *VariantSerde[T]) emit(tag byte, body []byte, fn func(b []byte) error) error {
	return s.pool.With(1+len(body), func(out *bytebuffer.Buffer) error {
		_ = out.WriteByte(tag)
		_, _ = out.Write(body)
		return fn(out.Bytes())
	})
}
