package planb

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/planb/lib/common"
	"github.com/ValentinKolb/planb/lib/composite"
	"github.com/ValentinKolb/planb/lib/db"
	_ "github.com/ValentinKolb/planb/lib/db/engines/bolt"
	"github.com/ValentinKolb/planb/lib/serde"
	"github.com/ValentinKolb/planb/lib/store"
)

func open(t *testing.T, modify func(c *common.Config)) *PlanB {
	t.Helper()
	cfg := common.DefaultConfig(t.TempDir())
	cfg.NoSync = true
	cfg.MaxSizeBytes = 64 << 20
	if modify != nil {
		modify(&cfg)
	}
	pb, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pb.Close() })
	return pb
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := common.DefaultConfig(t.TempDir())
	cfg.HashWidth = 5
	_, err := Open(cfg)
	assert.ErrorIs(t, err, db.ErrConfig)

	cfg = common.DefaultConfig(t.TempDir())
	cfg.Engine = "unknown"
	_, err = Open(cfg)
	assert.ErrorIs(t, err, db.ErrConfig)
}

func TestLookupIsCached(t *testing.T) {
	for _, strategy := range []common.LookupStrategy{common.LookupHash, common.LookupSequence} {
		t.Run(string(strategy), func(t *testing.T) {
			pb := open(t, func(c *common.Config) { c.LookupStrategy = strategy })

			a, err := pb.Lookup("values")
			require.NoError(t, err)
			b, err := pb.Lookup("values")
			require.NoError(t, err)
			assert.Same(t, a, b)
			assert.Equal(t, db.Table("values"), a.Table())
			assert.Equal(t, 8, a.IDLength())
		})
	}
}

func TestLookupThroughWriter(t *testing.T) {
	pb := open(t, nil)
	l, err := pb.Lookup("values")
	require.NoError(t, err)

	var id []byte
	require.NoError(t, pb.Update(context.Background(), func(txn db.Writer) error {
		return l.Put(txn, []byte("hello"), func(b []byte) error {
			id = append([]byte(nil), b...)
			return nil
		})
	}))

	require.NoError(t, pb.Read(func(r db.Reader) error {
		raw, found, err := l.GetValue(r, id)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("hello"), raw)
		return nil
	}))
}

func TestStoreOnPlanB(t *testing.T) {
	pb := open(t, nil)
	var backend store.Backend = pb
	events := store.New[uint64, string](backend, "events", serde.Uint64{}, serde.String{})

	ctx := context.Background()
	require.NoError(t, events.Put(ctx, 7, "started"))
	v, found, err := events.Get(7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "started", v)
}

func TestValTimeOnPlanB(t *testing.T) {
	pb := open(t, func(c *common.Config) { c.HashWidth = 4 })
	l, err := pb.Lookup("names")
	require.NoError(t, err)
	s := composite.NewValTimeSerde[string](serde.String{}, l, pb.Pool())
	readings := store.New[uint64, []byte](pb, "readings", serde.Uint64{}, serde.Bytes{})

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, pb.Update(context.Background(), func(txn db.Writer) error {
		return s.Write(txn, composite.ValTime[string]{Value: "sensor-a", Time: at}, func(b []byte) error {
			return txn.Put(readings.Table(), []byte{0, 0, 0, 0, 0, 0, 0, 1}, b)
		})
	}))

	require.NoError(t, pb.Read(func(r db.Reader) error {
		raw, found, err := readings.GetTx(r, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Len(t, raw, 4+composite.TimeWidth)
		vt, err := s.Read(r, raw)
		require.NoError(t, err)
		assert.Equal(t, "sensor-a", vt.Value)
		assert.True(t, vt.Time.Equal(at))
		return nil
	}))
}

func TestMetricsAndStats(t *testing.T) {
	pb := open(t, nil)
	require.NoError(t, pb.Update(context.Background(), func(txn db.Writer) error {
		return txn.Put("t", []byte("k"), []byte("v"))
	}))

	var buf bytes.Buffer
	pb.Metrics(&buf)
	assert.Contains(t, buf.String(), "planb_writer_ops_total 1")
	assert.Contains(t, buf.String(), "planb_pool_outstanding")

	stats := pb.Stats()
	assert.Equal(t, uint64(1), stats.Writer.Commits)
	assert.Equal(t, db.ImplBolt, stats.Info.DbType)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := common.DefaultConfig(t.TempDir())
	cfg.NoSync = true
	pb, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, pb.Writer().PutAsync(true, func(txn db.Writer) error {
		return txn.Put("t", []byte("k"), []byte("v"))
	}))
	require.NoError(t, pb.Close())
	require.NoError(t, pb.Close())

	// queued ops were committed before the engine was closed
	pb, err = Open(cfg)
	require.NoError(t, err)
	defer pb.Close()
	require.NoError(t, pb.Read(func(r db.Reader) error {
		v, found, err := r.Get("t", []byte("k"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v"), v)
		return nil
	}))
}
