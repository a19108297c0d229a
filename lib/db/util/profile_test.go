package util

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/planb/lib/db"
	_ "github.com/ValentinKolb/planb/lib/db/engines/bolt"
)

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	assert.Zero(t, h.Percentile(50))
	assert.Zero(t, h.Average())

	for i := 0; i < 90; i++ {
		h.AddSample(10)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(5000)
	}

	assert.Equal(t, int64(100), h.Count())
	assert.Equal(t, int64(90*10+10*5000), h.Total())
	assert.Equal(t, 509, h.Average())
	assert.Equal(t, 5000, h.Max())
	assert.Equal(t, 16, h.Percentile(50))
	assert.Equal(t, 16, h.Percentile(90))
	assert.Equal(t, 5000, h.Percentile(99), "capped at the largest sample")
	assert.Zero(t, h.Percentile(101))

	bounds, shares := h.Distribution()
	require.Len(t, shares, len(bounds)+1)
	assert.Equal(t, 16, bounds[0])
	assert.InDelta(t, 90.0, shares[0], 0.001)
	assert.InDelta(t, 10.0, shares[5], 0.001, "5000 falls into the (4096, 16384] bucket")

	h.AddSample(1<<30 + 1)
	_, shares = h.Distribution()
	assert.Greater(t, shares[len(shares)-1], 0.0)
}

func TestProfileTable(t *testing.T) {
	env, err := db.Open(db.ImplBolt, db.Options{Dir: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	defer env.Close()

	txn, err := env.BeginWrite()
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, txn.Put("profiled", []byte(fmt.Sprintf("key-%03d", i)), make([]byte, 100)))
	}
	require.NoError(t, txn.Commit())

	r, err := env.BeginRead()
	require.NoError(t, err)
	defer r.Release()

	p, err := ProfileTable(r, "profiled")
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Keys.Count())
	assert.Equal(t, 7, p.Keys.Average())
	assert.Equal(t, 100, p.Values.Percentile(50))

	empty, err := ProfileTable(r, "missing")
	require.NoError(t, err)
	assert.Zero(t, empty.Values.Count())
}
