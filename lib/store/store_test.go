package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/planb/lib/bytebuffer"
	"github.com/ValentinKolb/planb/lib/db"
	_ "github.com/ValentinKolb/planb/lib/db/engines/bolt"
	"github.com/ValentinKolb/planb/lib/serde"
	"github.com/ValentinKolb/planb/lib/writer"
)

type testBackend struct {
	env  db.Env
	w    *writer.Writer
	pool *bytebuffer.Pool
}

func (b *testBackend) Writer() *writer.Writer { return b.w }
func (b *testBackend) Pool() *bytebuffer.Pool { return b.pool }
func (b *testBackend) Read(fn func(r db.Reader) error) error {
	txn, err := b.env.BeginRead()
	if err != nil {
		return err
	}
	defer txn.Release()
	return fn(txn)
}

func newBackend(t *testing.T) *testBackend {
	t.Helper()
	env, err := db.Open(db.ImplBolt, db.Options{Dir: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	b := &testBackend{env: env, w: writer.New(env, nil), pool: bytebuffer.NewPool(nil)}
	t.Cleanup(func() {
		_ = b.w.Shutdown(context.Background())
		_ = env.Close()
		b.pool.Close()
	})
	return b
}

func newUsers(b Backend) *Store[uint64, string] {
	return New[uint64, string](b, "users", serde.Uint64{}, serde.String{})
}

func TestPutGet(t *testing.T) {
	b := newBackend(t)
	s := newUsers(b)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, 1, "alice"))
	v, found, err := s.Get(1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", v)

	_, found, err = s.Get(2)
	require.NoError(t, err)
	assert.False(t, found)

	has, err := s.Has(1)
	require.NoError(t, err)
	assert.True(t, has)

	assert.Zero(t, b.pool.Stats().Outstanding, "all encodings are released")
}

func TestPutIfAbsentAndDelete(t *testing.T) {
	b := newBackend(t)
	s := newUsers(b)
	ctx := context.Background()

	require.NoError(t, s.PutIfAbsent(ctx, 1, "first"))
	require.NoError(t, s.PutIfAbsent(ctx, 1, "second"))
	v, _, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	require.NoError(t, s.Delete(ctx, 1))
	has, err := s.Has(1)
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, s.Delete(ctx, 1), "deleting a missing key is fine")
	assert.Zero(t, b.pool.Stats().Outstanding)
}

func TestPutAsync(t *testing.T) {
	b := newBackend(t)
	s := newUsers(b)

	var mu sync.Mutex
	var outcomes []error
	for i := uint64(0); i < 20; i++ {
		require.NoError(t, s.PutAsync(i, fmt.Sprintf("user-%d", i), func(err error) {
			mu.Lock()
			outcomes = append(outcomes, err)
			mu.Unlock()
		}))
	}
	require.NoError(t, b.w.CommitSync(context.Background()))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	mu.Lock()
	assert.Len(t, outcomes, 20)
	for _, e := range outcomes {
		assert.NoError(t, e)
	}
	mu.Unlock()
	assert.Zero(t, b.pool.Stats().Outstanding)
}

func TestScanAndForEach(t *testing.T) {
	b := newBackend(t)
	s := newUsers(b)
	ctx := context.Background()

	for _, k := range []uint64{300, 5, 42, 1 << 40, 7} {
		require.NoError(t, s.Put(ctx, k, fmt.Sprint(k)))
	}

	var all []uint64
	require.NoError(t, s.ForEach(func(k uint64, v string) error {
		assert.Equal(t, fmt.Sprint(k), v)
		all = append(all, k)
		return nil
	}))
	assert.Equal(t, []uint64{5, 7, 42, 300, 1 << 40}, all)

	var fromSix []uint64
	require.NoError(t, s.Scan(6, func(k uint64, _ string) bool {
		fromSix = append(fromSix, k)
		return len(fromSix) < 2
	}))
	assert.Equal(t, []uint64{7, 42}, fromSix)

	stop := errors.New("stop")
	err := s.ForEach(func(uint64, string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestGetTxSharesSnapshot(t *testing.T) {
	b := newBackend(t)
	users := newUsers(b)
	ages := New[uint64, uint32](b, "ages", serde.Uint64{}, serde.Uint32{})
	ctx := context.Background()

	require.NoError(t, users.Put(ctx, 1, "alice"))
	require.NoError(t, ages.Put(ctx, 1, 31))

	require.NoError(t, b.Read(func(r db.Reader) error {
		name, found, err := users.GetTx(r, 1)
		require.NoError(t, err)
		require.True(t, found)
		age, found, err := ages.GetTx(r, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "alice", name)
		assert.Equal(t, uint32(31), age)
		return nil
	}))
}

func TestEmptyTable(t *testing.T) {
	s := newUsers(newBackend(t))
	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, s.Scan(0, func(uint64, string) bool {
		t.Fatal("empty table yields nothing")
		return false
	}))
}

func TestWritesAfterShutdown(t *testing.T) {
	b := newBackend(t)
	s := newUsers(b)
	require.NoError(t, b.w.Shutdown(context.Background()))

	assert.ErrorIs(t, s.Put(context.Background(), 1, "x"), db.ErrWriterShutdown)
	assert.ErrorIs(t, s.PutAsync(1, "x"), db.ErrWriterShutdown)
	assert.ErrorIs(t, s.Delete(context.Background(), 1), db.ErrWriterShutdown)
	assert.Zero(t, b.pool.Stats().Outstanding, "rejected writes release their buffers")
}
