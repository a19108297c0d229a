package serde

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
)

func encode[T any](t *testing.T, pool *bytebuffer.Pool, s Serializer[T], v T) []byte {
	t.Helper()
	var out []byte
	require.NoError(t, Marshal(pool, s, v, func(b []byte) error {
		out = append([]byte(nil), b...)
		return nil
	}))
	return out
}

func roundTrip[T any](t *testing.T, pool *bytebuffer.Pool, s Serde[T], v T) T {
	t.Helper()
	got, err := s.Deserialize(encode[T](t, pool, s, v))
	require.NoError(t, err)
	return got
}

func TestRoundTrip(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()

	for _, v := range []uint64{0, 1, 42, math.MaxUint32, math.MaxUint64} {
		assert.Equal(t, v, roundTrip[uint64](t, pool, Uint64{}, v))
	}
	for _, v := range []uint32{0, 7, math.MaxUint32} {
		assert.Equal(t, v, roundTrip[uint32](t, pool, Uint32{}, v))
	}
	for _, v := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64} {
		assert.Equal(t, v, roundTrip[int64](t, pool, Int64{}, v))
	}
	for _, v := range []string{"", "PARENT", strings.Repeat("x", 5000)} {
		assert.Equal(t, v, roundTrip[string](t, pool, String{}, v))
	}
	assert.Equal(t, []byte{1, 2, 3}, roundTrip[[]byte](t, pool, Bytes{}, []byte{1, 2, 3}))

	now := time.Now()
	got := roundTrip[time.Time](t, pool, Instant{}, now)
	assert.True(t, got.Equal(now.Truncate(InstantPrecision)), "expected %v, got %v", now, got)
	before := time.Date(1901, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	assert.True(t, roundTrip[time.Time](t, pool, Instant{}, before).Equal(before))
}

func TestInstantRange(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()

	for _, v := range []time.Time{MinInstant, MaxInstant} {
		got := roundTrip[time.Time](t, pool, Instant{}, v)
		assert.True(t, got.Equal(v.Truncate(InstantPrecision)), "expected %v, got %v", v, got)
	}

	for _, v := range []time.Time{
		time.Date(300_000_000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(-300_000_000, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxInstant.Add(time.Nanosecond),
		MinInstant.Add(-time.Nanosecond),
	} {
		err := Marshal[time.Time](pool, Instant{}, v, func([]byte) error { return nil })
		assert.ErrorIs(t, err, db.ErrSerde, "%v must not wrap around", v)
	}
}

func TestOrderPreserving(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()

	ints := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}
	for i := 1; i < len(ints); i++ {
		a := encode[int64](t, pool, Int64{}, ints[i-1])
		b := encode[int64](t, pool, Int64{}, ints[i])
		assert.Negative(t, bytes.Compare(a, b), "%d should sort before %d", ints[i-1], ints[i])
	}

	t1 := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Negative(t, bytes.Compare(
		encode[time.Time](t, pool, Instant{}, t1),
		encode[time.Time](t, pool, Instant{}, t2)))
}

func TestTruncatedInputFails(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()

	b := encode[uint64](t, pool, Uint64{}, 42)
	_, err := Uint64{}.Deserialize(b[:len(b)-1])
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrSerde)

	_, err = Uint32{}.Deserialize([]byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, db.ErrSerde, "trailing bytes must be rejected")

	_, err = Instant{}.Deserialize([]byte{1, 2, 3})
	assert.ErrorIs(t, err, db.ErrSerde)
}

func TestDecoder(t *testing.T) {
	d := NewDecoder([]byte{0, 0, 0, 9, 1, 2}, "test")
	assert.EqualValues(t, 9, d.Uint32("a"))
	assert.EqualValues(t, 0x0102, d.Uint(2, "b"))
	assert.NoError(t, d.Finish())

	d = NewDecoder([]byte{1}, "test")
	assert.EqualValues(t, 0, d.Uint64("a"))
	assert.EqualValues(t, 0, d.Byte("b"), "reads after an error return zero")
	assert.ErrorIs(t, d.Finish(), db.ErrSerde)

	d = NewDecoder([]byte{7, 1, 2, 3}, "test")
	assert.EqualValues(t, 7, d.Byte("tag"))
	assert.Equal(t, []byte{1, 2}, d.Bytes(2, "body"))
	assert.Equal(t, []byte{3}, d.Rest())
	assert.NoError(t, d.Finish())

	d = NewDecoder([]byte{1, 2}, "test")
	assert.Nil(t, d.Bytes(3, "body"))
	assert.Nil(t, d.Rest(), "rest after an error is empty")
	assert.ErrorIs(t, d.Finish(), db.ErrSerde)
}

func TestSnappy(t *testing.T) {
	pool := bytebuffer.NewPool(nil)
	defer pool.Close()

	s := Snappy[string](String{}, pool)
	value := strings.Repeat("reference data ", 1000)

	encoded := encode[string](t, pool, s, value)
	assert.Less(t, len(encoded), len(value), "repetitive input should compress")

	got, err := s.Deserialize(encoded)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	_, err = s.Deserialize([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, db.ErrSerde)
	assert.EqualValues(t, 0, pool.Stats().Outstanding)

	// a 4 GiB length claim in a 5 byte input is rejected before any buffer is leased
	allocs := pool.Stats().Allocations
	_, err = s.Deserialize([]byte{0xff, 0xff, 0xff, 0xff, 0x0f})
	assert.ErrorIs(t, err, db.ErrSerde)
	assert.Equal(t, allocs, pool.Stats().Allocations)
	assert.EqualValues(t, 0, pool.Stats().Outstanding)
}
