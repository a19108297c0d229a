package composite

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
	_ "github.com/ValentinKolb/planb/lib/db/engines/bolt"
	"github.com/ValentinKolb/planb/lib/hash"
	"github.com/ValentinKolb/planb/lib/serde"
	"github.com/ValentinKolb/planb/lib/uid"
)

type fixture struct {
	env    db.Env
	pool   *bytebuffer.Pool
	lookup uid.Lookup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env, err := db.Open(db.ImplBolt, db.Options{Dir: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	pool := bytebuffer.NewPool(nil)
	t.Cleanup(func() {
		pool.Close()
		_ = env.Close()
	})
	return &fixture{
		env:    env,
		pool:   pool,
		lookup: uid.NewHashLookup("values", hash.NewLongFactory(), nil),
	}
}

func (f *fixture) update(t *testing.T, fn func(w db.Writer) error) {
	t.Helper()
	txn, err := f.env.BeginWrite()
	require.NoError(t, err)
	if err := fn(txn); err != nil {
		txn.Abort()
		t.Fatalf("write failed: %v", err)
	}
	require.NoError(t, txn.Commit())
}

func (f *fixture) view(t *testing.T, fn func(r db.Reader)) {
	t.Helper()
	txn, err := f.env.BeginRead()
	require.NoError(t, err)
	defer txn.Release()
	fn(txn)
}

func encodeRange(t *testing.T, s *RangeSerde, pool *bytebuffer.Pool, r Range) []byte {
	t.Helper()
	var out []byte
	require.NoError(t, serde.Marshal[Range](pool, s, r, func(b []byte) error {
		out = append([]byte(nil), b...)
		return nil
	}))
	return out
}

// --------------------------------------------------------------------------
// ValTime
// --------------------------------------------------------------------------

func TestValTimeRoundTrip(t *testing.T) {
	f := newFixture(t)
	s := NewValTimeSerde[uint64](serde.Uint64{}, f.lookup, f.pool)

	instant := time.Date(2024, 5, 17, 13, 45, 12, 987_654_321, time.UTC)
	var encoded []byte
	f.update(t, func(w db.Writer) error {
		return s.Write(w, ValTime[uint64]{Value: 42, Time: instant}, func(b []byte) error {
			encoded = append([]byte(nil), b...)
			return nil
		})
	})
	require.Len(t, encoded, s.Len())
	assert.Len(t, ValueSlice(encoded), f.lookup.IDLength())
	assert.Len(t, TimeSlice(encoded), TimeWidth)

	f.view(t, func(r db.Reader) {
		got, err := s.Read(r, encoded)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), got.Value)
		assert.True(t, got.Time.Equal(instant.Truncate(serde.InstantPrecision)), "got %v", got.Time)
	})
}

func TestValTimeTimeSliceOrdersByTime(t *testing.T) {
	f := newFixture(t)
	s := NewValTimeSerde[string](serde.String{}, f.lookup, f.pool)

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var early, late []byte
	f.update(t, func(w db.Writer) error {
		if err := s.Write(w, ValTime[string]{Value: "same", Time: base}, func(b []byte) error {
			early = append([]byte(nil), b...)
			return nil
		}); err != nil {
			return err
		}
		return s.Write(w, ValTime[string]{Value: "same", Time: base.Add(time.Second)}, func(b []byte) error {
			late = append([]byte(nil), b...)
			return nil
		})
	})
	assert.Equal(t, ValueSlice(early), ValueSlice(late), "equal values share the surrogate")
	assert.Negative(t, bytes.Compare(early, late))
}

func TestValTimeStampUsesClock(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2001, 2, 3, 4, 5, 6, 7_000_123, time.UTC)
	s := NewValTimeSerde[string](serde.String{}, f.lookup, f.pool).WithClock(func() time.Time { return fixed })

	v := s.Stamp("x")
	assert.Equal(t, "x", v.Value)
	assert.True(t, v.Time.Equal(time.Date(2001, 2, 3, 4, 5, 6, 7_000_000, time.UTC)))
}

func TestValTimeTruncatedInput(t *testing.T) {
	f := newFixture(t)
	s := NewValTimeSerde[uint64](serde.Uint64{}, f.lookup, f.pool)

	var encoded []byte
	f.update(t, func(w db.Writer) error {
		return s.Write(w, s.Stamp(42), func(b []byte) error {
			encoded = append([]byte(nil), b...)
			return nil
		})
	})

	f.view(t, func(r db.Reader) {
		_, err := s.Read(r, encoded[:len(encoded)-1])
		require.Error(t, err)
		assert.ErrorIs(t, err, db.ErrSerde)
		_, err = s.Read(r, append(append([]byte(nil), encoded...), 0))
		assert.ErrorIs(t, err, db.ErrSerde, "trailing bytes are rejected")

		unknown := append(bytes.Repeat([]byte{0xEE}, f.lookup.IDLength()), TimeSlice(encoded)...)
		_, err = s.Read(r, unknown)
		assert.ErrorIs(t, err, db.ErrSerde, "an unknown surrogate is a decoding failure")
	})
}

// --------------------------------------------------------------------------
// Range
// --------------------------------------------------------------------------

func TestRangeOrdering(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()

	for _, width := range []int{4, 8} {
		s, err := NewRangeSerde(width, pool)
		require.NoError(t, err)

		a := encodeRange(t, s, pool, Range{Start: 10, End: 20})
		b := encodeRange(t, s, pool, Range{Start: 10, End: 21})
		assert.Len(t, a, 2*width)
		assert.Negative(t, bytes.Compare(a, b), "width %d", width)

		rnd := rand.New(rand.NewSource(1))
		for i := 0; i < 500; i++ {
			s1 := uint64(rnd.Uint32() / 2)
			s2 := s1 + 1 + uint64(rnd.Intn(1000))
			r1 := Range{Start: s1, End: s1 + uint64(rnd.Intn(1<<20))}
			r2 := Range{Start: s2, End: s2 + uint64(rnd.Intn(10))}
			assert.Negative(t, bytes.Compare(encodeRange(t, s, pool, r1), encodeRange(t, s, pool, r2)))
		}
	}
}

func TestRangeSerdeErrors(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()

	_, err := NewRangeSerde(3, pool)
	assert.ErrorIs(t, err, db.ErrConfig)

	s, err := NewRangeSerde(4, pool)
	require.NoError(t, err)

	err = serde.Marshal[Range](pool, s, Range{Start: 5, End: 4}, func([]byte) error { return nil })
	assert.ErrorIs(t, err, db.ErrSerde)
	err = serde.Marshal[Range](pool, s, Range{Start: 0, End: 1 << 40}, func([]byte) error { return nil })
	assert.ErrorIs(t, err, db.ErrSerde)

	encoded := encodeRange(t, s, pool, Range{Start: 1, End: 2})
	got, err := s.Deserialize(encoded)
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 1, End: 2}, got)

	_, err = s.Deserialize(encoded[:len(encoded)-1])
	assert.ErrorIs(t, err, db.ErrSerde)
	_, err = s.Deserialize([]byte{0, 0, 0, 9, 0, 0, 0, 1})
	assert.ErrorIs(t, err, db.ErrSerde, "start after end")
}

func TestRangeKeyStart(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()
	s, err := NewRangeSerde(4, pool)
	require.NoError(t, err)

	var start, padded []byte
	require.NoError(t, s.ToKeyStart(10, func(b []byte) error {
		start = append([]byte(nil), b...)
		return nil
	}))
	require.NoError(t, s.ToKeyStartPadded(10, func(b []byte) error {
		padded = append([]byte(nil), b...)
		return nil
	}))
	assert.Equal(t, []byte{0, 0, 0, 10}, start)
	assert.Equal(t, []byte{0, 0, 0, 10, 0xFF, 0xFF, 0xFF, 0xFF}, padded)

	for _, r := range []Range{{10, 10}, {10, 11}, {10, 1<<32 - 1}} {
		full := encodeRange(t, s, pool, r)
		assert.LessOrEqual(t, bytes.Compare(start, full), 0, "start key is a lower bound of %v", r)
		assert.GreaterOrEqual(t, bytes.Compare(padded, full), 0, "padded key is an upper bound of %v", r)
	}
	assert.Negative(t, bytes.Compare(padded, encodeRange(t, s, pool, Range{Start: 11, End: 11})))
	assert.Positive(t, bytes.Compare(start, encodeRange(t, s, pool, Range{Start: 9, End: 1<<32 - 1})))
}

func TestRangeFindContaining(t *testing.T) {
	f := newFixture(t)
	s, err := NewRangeSerde(8, f.pool)
	require.NoError(t, err)
	const table db.Table = "ranges"

	ranges := map[Range]string{
		{Start: 0, End: 10}:   "a",
		{Start: 10, End: 20}:  "b",
		{Start: 30, End: 40}:  "c",
		{Start: 40, End: 100}: "d",
	}
	f.update(t, func(w db.Writer) error {
		for r, v := range ranges {
			if err := serde.Marshal[Range](f.pool, s, r, func(k []byte) error {
				return w.Put(table, k, []byte(v))
			}); err != nil {
				return err
			}
		}
		return nil
	})

	cases := map[uint64]string{0: "a", 9: "a", 10: "b", 19: "b", 20: "", 25: "", 30: "c", 40: "d", 99: "d", 100: "", 1 << 40: ""}
	f.view(t, func(r db.Reader) {
		for point, expected := range cases {
			rng, value, found, err := s.FindContaining(r, table, point)
			require.NoError(t, err)
			if expected == "" {
				assert.False(t, found, "point %d should not be covered, got %v", point, rng)
				continue
			}
			require.True(t, found, "point %d", point)
			assert.True(t, rng.Contains(point))
			assert.Equal(t, expected, string(value), "point %d", point)
		}

		_, _, found, err := s.FindContaining(r, "empty", 5)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestRangeFindContainingNarrowFields(t *testing.T) {
	f := newFixture(t)
	s, err := NewRangeSerde(4, f.pool)
	require.NoError(t, err)
	const table db.Table = "narrow"

	top := Range{Start: 1<<32 - 10, End: 1<<32 - 1}
	f.update(t, func(w db.Writer) error {
		return serde.Marshal[Range](f.pool, s, top, func(k []byte) error {
			return w.Put(table, k, []byte("top"))
		})
	})

	f.view(t, func(r db.Reader) {
		rng, value, found, err := s.FindContaining(r, table, 1<<32-1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, top, rng)
		assert.Equal(t, "top", string(value))

		for _, point := range []uint64{1 << 32, 1<<32 + 5, 1<<64 - 1} {
			_, _, found, err := s.FindContaining(r, table, point)
			assert.NoError(t, err, "point %d lies outside every storable range", point)
			assert.False(t, found)
		}
	})
}

// --------------------------------------------------------------------------
// Variant
// --------------------------------------------------------------------------

func TestVariantSerde(t *testing.T) {
	f := newFixture(t)
	s := NewVariantSerde[string](serde.String{}, f.lookup, f.pool, 8)

	encode := func(v string) []byte {
		var out []byte
		f.update(t, func(w db.Writer) error {
			return s.Write(w, v, func(b []byte) error {
				out = append([]byte(nil), b...)
				return nil
			})
		})
		return out
	}

	short := encode("tiny")
	long := encode(strings.Repeat("long value ", 10))
	assert.False(t, s.UsesLookup(short))
	assert.True(t, s.UsesLookup(long))
	assert.Len(t, long, 1+f.lookup.IDLength())
	assert.Equal(t, long, encode(strings.Repeat("long value ", 10)), "equal values share the surrogate")

	f.view(t, func(r db.Reader) {
		got, err := s.Read(r, short)
		require.NoError(t, err)
		assert.Equal(t, "tiny", got)

		got, err = s.Read(r, long)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("long value ", 10), got)

		_, err = s.Read(r, nil)
		assert.ErrorIs(t, err, db.ErrSerde)
		_, err = s.Read(r, []byte{7, 1, 2})
		assert.ErrorIs(t, err, db.ErrSerde)
		_, err = s.Read(r, long[:len(long)-1])
		assert.ErrorIs(t, err, db.ErrSerde)
	})

	// inline values never touch the lookup table
	_, err := s.Read(nil, short)
	assert.NoError(t, err)
}
