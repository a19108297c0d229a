package composite

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
	"github.com/ValentinKolb/planb/lib/serde"
)

// Range is the half-open interval [Start, End)
type Range struct {
	Start uint64
	End   uint64
}

// Contains reports whether p lies inside the range
func (r Range) Contains(p uint64) bool {
	return p >= r.Start && p < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// RangeSerde encodes a Range as two fixed-width big-endian fields, so the byte order
// of encodings is the numeric order of (Start, End).
type RangeSerde struct {
	width int
	max   uint64
	pool  *bytebuffer.Pool
}

// NewRangeSerde creates a range serde with fields of width bytes (4 or 8)
func NewRangeSerde(width int, pool *bytebuffer.Pool) (*RangeSerde, error) {
	var max uint64
	switch width {
	case 4:
		max = 1<<32 - 1
	case 8:
		max = 1<<64 - 1
	default:
		return nil, db.NewError(db.ErrCodeConfig, fmt.Sprintf("range field width must be 4 or 8, got %d", width))
	}
	return &RangeSerde{width: width, max: max, pool: pool}, nil
}

// KeyLength returns the length of a full range encoding
func (s *RangeSerde) KeyLength() int {
	return 2 * s.width
}

func (s *RangeSerde) EncodedSize(Range) int {
	return s.KeyLength()
}

func (s *RangeSerde) Serialize(buf *bytebuffer.Buffer, r Range) error {
	if r.Start > r.End {
		return db.SerdeErrorf("range: start %d is after end %d", r.Start, r.End)
	}
	if r.End > s.max {
		return db.SerdeErrorf("range: end %d does not fit %d bytes", r.End, s.width)
	}
	s.put(buf, r.Start)
	s.put(buf, r.End)
	return nil
}

func (s *RangeSerde) Deserialize(b []byte) (Range, error) {
	d := serde.NewDecoder(b, "range")
	r := Range{
		Start: d.Uint(s.width, "start"),
		End:   d.Uint(s.width, "end"),
	}
	if err := d.Finish(); err != nil {
		return Range{}, err
	}
	if r.Start > r.End {
		return Range{}, db.SerdeErrorf("range: start %d is after end %d", r.Start, r.End)
	}
	return r, nil
}

// ToKeyStart encodes only the start field. Used as a seek key it is the inclusive
// lower bound of all ranges starting at or after start.
func (s *RangeSerde) ToKeyStart(start uint64, fn func(b []byte) error) error {
	if start > s.max {
		return db.SerdeErrorf("range: start %d does not fit %d bytes", start, s.width)
	}
	return s.pool.With(s.width, func(buf *bytebuffer.Buffer) error {
		s.put(buf, start)
		return fn(buf.Bytes())
	})
}

// ToKeyStartPadded encodes start followed by an end field of 0xFF bytes. The result
// sorts after every full key beginning with start, which makes it the inclusive upper
// bound among all ranges starting at start.
func (s *RangeSerde) ToKeyStartPadded(start uint64, fn func(b []byte) error) error {
	if start > s.max {
		return db.SerdeErrorf("range: start %d does not fit %d bytes", start, s.width)
	}
	return s.pool.With(s.KeyLength(), func(buf *bytebuffer.Buffer) error {
		s.put(buf, start)
		pad := buf.Extend(s.width)
		for i := range pad {
			pad[i] = 0xFF
		}
		return fn(buf.Bytes())
	})
}

// FindContaining returns the range of table that contains point together with a copy
// of its value. The table is expected to hold non-overlapping ranges: the candidate is
// the greatest range starting at or before point.
func (s *RangeSerde) FindContaining(r db.Reader, table db.Table, point uint64) (Range, []byte, bool, error) {
	var (
		found Range
		value []byte
		ok    bool
	)
	if point > s.max {
		// no storable range reaches past the field width
		return found, nil, false, nil
	}
	err := s.ToKeyStartPadded(point, func(seek []byte) error {
		cur, err := r.Cursor(table)
		if err != nil {
			return err
		}
		defer cur.Close()

		k, v := cur.Seek(seek)
		switch {
		case k == nil:
			k, v = cur.Last()
		case !bytes.Equal(k, seek):
			k, v = cur.Prev()
		}
		if k == nil {
			return nil
		}

		rng, err := s.Deserialize(k)
		if err != nil {
			return err
		}
		if rng.Contains(point) {
			found, value, ok = rng, append([]byte{}, v...), true
		}
		return nil
	})
	return found, value, ok, err
}

func (s *RangeSerde) put(buf *bytebuffer.Buffer, v uint64) {
	if s.width == 4 {
		buf.PutUint32(uint32(v))
		return
	}
	buf.PutUint64(v)
}
