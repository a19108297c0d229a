package uid

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/planb/lib/db"
	_ "github.com/ValentinKolb/planb/lib/db/engines/bolt"
	"github.com/ValentinKolb/planb/lib/hash"
)

const table db.Table = "uid"

func openEnv(t *testing.T) db.Env {
	t.Helper()
	env, err := db.Open(db.ImplBolt, db.Options{Dir: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

// put inserts raw in its own write transaction and returns a copy of the id
func put(t *testing.T, env db.Env, l Lookup, raw []byte) ([]byte, error) {
	t.Helper()
	txn, err := env.BeginWrite()
	require.NoError(t, err)

	var id []byte
	err = l.Put(txn, raw, func(b []byte) error {
		id = append([]byte(nil), b...)
		return nil
	})
	if err != nil {
		txn.Abort()
		return nil, err
	}
	require.NoError(t, txn.Commit())
	return id, nil
}

func getValue(t *testing.T, env db.Env, l Lookup, id []byte) ([]byte, bool) {
	t.Helper()
	txn, err := env.BeginRead()
	require.NoError(t, err)
	defer txn.Release()

	v, found, err := l.GetValue(txn, id)
	require.NoError(t, err)
	return append([]byte(nil), v...), found
}

func lookups(t *testing.T) map[string]Lookup {
	seq, err := NewSequenceLookup(table, hash.NewLongFactory(), 4, nil)
	require.NoError(t, err)
	return map[string]Lookup{
		"Hash":     NewHashLookup(table, hash.NewLongFactory(), nil),
		"Sequence": seq,
	}
}

func TestParentRoundTrip(t *testing.T) {
	factory := hash.NewLongFactory()
	require.Equal(t, 8, factory.HashLength())

	env := openEnv(t)
	l := NewHashLookup(table, factory, nil)

	first, err := put(t, env, l, []byte("PARENT"))
	require.NoError(t, err)
	second, err := put(t, env, l, []byte("PARENT"))
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-inserting the same content must return the same surrogate")
	assert.Len(t, first, 8)

	value, found := getValue(t, env, l, first)
	require.True(t, found)
	assert.Equal(t, []byte("PARENT"), value)
}

func TestBijection(t *testing.T) {
	for name, l := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			env := openEnv(t)

			ids := make(map[string]string)
			for i := 0; i < 200; i++ {
				raw := []byte(fmt.Sprintf("value-%d", i))
				id, err := put(t, env, l, raw)
				require.NoError(t, err)
				assert.Len(t, id, l.IDLength())
				if other, dup := ids[string(id)]; dup {
					t.Fatalf("values %q and %q share id %x", other, raw, id)
				}
				ids[string(id)] = string(raw)
			}

			for id, raw := range ids {
				again, err := put(t, env, l, []byte(raw))
				require.NoError(t, err)
				assert.Equal(t, []byte(id), again)

				value, found := getValue(t, env, l, []byte(id))
				require.True(t, found)
				assert.Equal(t, raw, string(value))
			}
		})
	}
}

func TestGetID(t *testing.T) {
	for name, l := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			env := openEnv(t)
			id, err := put(t, env, l, []byte("known"))
			require.NoError(t, err)

			txn, err := env.BeginRead()
			require.NoError(t, err)
			defer txn.Release()

			got, found, err := l.GetID(txn, []byte("known"))
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, id, got)

			_, found, err = l.GetID(txn, []byte("unknown"))
			require.NoError(t, err)
			assert.False(t, found)

			_, found, err = l.GetValue(txn, bytes.Repeat([]byte{0xAB}, l.IDLength()))
			require.NoError(t, err)
			assert.False(t, found)

			_, _, err = l.GetValue(txn, []byte{1})
			assert.ErrorIs(t, err, db.ErrSerde, "ids of the wrong width are rejected")
		})
	}
}

func TestCollisionProbing(t *testing.T) {
	env := openEnv(t)
	// every value hashes to the same slot
	l := NewHashLookup(table, hash.FixedFactory(42, 8), &Options{MaxProbes: 3})

	a, err := put(t, env, l, []byte("a"))
	require.NoError(t, err)
	b, err := put(t, env, l, []byte("b"))
	require.NoError(t, err)
	c, err := put(t, env, l, []byte("c"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, a, c)

	// verify-before-reuse finds the right slot for each value
	for raw, id := range map[string][]byte{"a": a, "b": b, "c": c} {
		again, err := put(t, env, l, []byte(raw))
		require.NoError(t, err)
		assert.Equal(t, id, again)

		value, found := getValue(t, env, l, id)
		require.True(t, found)
		assert.Equal(t, raw, string(value))
	}

	// all probe slots are taken by other content
	_, err = put(t, env, l, []byte("d"))
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrCollision)
	assert.Equal(t, db.ErrCodeCollision, db.CodeOf(err))
}

func TestSequenceCollisions(t *testing.T) {
	env := openEnv(t)
	l, err := NewSequenceLookup(table, hash.FixedFactory(7, 4), 4, nil)
	require.NoError(t, err)

	var ids [][]byte
	for _, raw := range []string{"x", "y", "z"} {
		id, err := put(t, env, l, []byte(raw))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, [][]byte{{0, 0, 0, 0}, {0, 0, 0, 1}, {0, 0, 0, 2}}, ids, "ids are assigned sequentially")

	id, err := put(t, env, l, []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, ids[1], id)
}

func TestSequenceWidth(t *testing.T) {
	_, err := NewSequenceLookup(table, hash.NewLongFactory(), 3, nil)
	assert.ErrorIs(t, err, db.ErrConfig)
}

func TestPutInsideOneTransaction(t *testing.T) {
	for name, l := range lookups(t) {
		t.Run(name, func(t *testing.T) {
			env := openEnv(t)
			txn, err := env.BeginWrite()
			require.NoError(t, err)

			var first, second []byte
			require.NoError(t, l.Put(txn, []byte("same"), func(id []byte) error {
				first = append([]byte(nil), id...)
				return nil
			}))
			// the second put must see the uncommitted row of the first
			require.NoError(t, l.Put(txn, []byte("same"), func(id []byte) error {
				second = append([]byte(nil), id...)
				return nil
			}))
			require.NoError(t, txn.Commit())
			assert.Equal(t, first, second)
		})
	}
}
