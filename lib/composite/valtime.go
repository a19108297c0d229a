package composite

import (
	"time"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/serde"
	"github.com/ValentinKolb/planb/lib/uid"
)

// TimeWidth is the number of trailing bytes holding the instant of a ValTime encoding
const TimeWidth = serde.InstantWidth

// ValTime is a value stamped with the instant it was recorded
type ValTime[T any] struct {
	Value T
	Time  time.Time
}

// ValTimeSerde encodes a ValTime as surrogate ++ instant. The value is serialized
// with the value serde and replaced by its id in the lookup table, so the encoding
// has a fixed length of IDLength()+TimeWidth regardless of the value.
//
// Write needs the write transaction (it may insert into the lookup table),
// Read only needs a read transaction.
type ValTimeSerde[T any] struct {
	value  serde.Serde[T]
	lookup uid.Lookup
	pool   *bytebuffer.Pool
	clock  func() time.Time
}

// NewValTimeSerde creates a ValTime serde, the clock defaults to time.Now
func NewValTimeSerde[T any](value serde.Serde[T], lookup uid.Lookup, pool *bytebuffer.Pool) *ValTimeSerde[T] {
	return &ValTimeSerde[T]{value: value, lookup: lookup, pool: pool, clock: time.Now}
}

// WithClock replaces the clock used by Stamp
func (s *ValTimeSerde[T]) WithClock(clock func() time.Time) *ValTimeSerde[T] {
	s.clock = clock
	return s
}

// Stamp pairs v with the current instant, truncated to the encoding precision
func (s *ValTimeSerde[T]) Stamp(v T) ValTime[T] {
	return ValTime[T]{Value: v, Time: s.clock().Truncate(serde.InstantPrecision)}
}

// Len returns the length of every encoding produced by this serde
func (s *ValTimeSerde[T]) Len() int {
	return s.lookup.IDLength() + TimeWidth
}

// Write encodes v and hands the bytes to fn. The slice is only valid during fn.
func (s *ValTimeSerde[T]) Write(w db.Writer, v ValTime[T], fn func(b []byte) error) error {
	return s.pool.With(serde.SizeHint[T](s.value, v.Value), func(raw *bytebuffer.Buffer) error {
		if err := s.value.Serialize(raw, v.Value); err != nil {
			return err
		}
		return s.lookup.Put(w, raw.Bytes(), func(id []byte) error {
			return s.pool.With(len(id)+TimeWidth, func(out *bytebuffer.Buffer) error {
				_, _ = out.Write(id)
				if err := (serde.Instant{}).Serialize(out, v.Time); err != nil {
					return err
				}
				return fn(out.Bytes())
			})
		})
	})
}

// Read decodes an encoding produced by Write
func (s *ValTimeSerde[T]) Read(r db.Reader, b []byte) (ValTime[T], error) {
	var zero ValTime[T]
	d := serde.NewDecoder(b, "valtime")
	id := d.Bytes(s.lookup.IDLength(), "surrogate")
	stamp := d.Bytes(TimeWidth, "time")
	if err := d.Finish(); err != nil {
		return zero, err
	}

	t, err := serde.Instant{}.Deserialize(stamp)
	if err != nil {
		return zero, err
	}
	raw, found, err := s.lookup.GetValue(r, id)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, db.SerdeErrorf("valtime: unknown surrogate %x in %s", id, s.lookup.Table())
	}
	v, err := s.value.Deserialize(raw)
	if err != nil {
		return zero, err
	}
	return ValTime[T]{Value: v, Time: t}, nil
}

// ValueSlice returns the value portion of an encoding without parsing it
func ValueSlice(b []byte) []byte {
	if len(b) < TimeWidth {
		return nil
	}
	return b[:len(b)-TimeWidth]
}

// TimeSlice returns the trailing instant of an encoding without parsing it
func TimeSlice(b []byte) []byte {
	if len(b) < TimeWidth {
		return nil
	}
	return b[len(b)-TimeWidth:]
}
