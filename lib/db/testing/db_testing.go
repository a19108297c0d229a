package testing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/planb/lib/db"
)

// RunEnvTests runs the conformance suite for an engine. Every sub-test opens a fresh
// environment in its own temporary directory through factory.
func RunEnvTests(t *testing.T, name string, factory db.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, open(t, factory, db.Options{}))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory, db.Options{}))
		})

		t.Run("AbortDiscards", func(t *testing.T) {
			testAbortDiscards(t, open(t, factory, db.Options{}))
		})

		t.Run("TablesAreIsolated", func(t *testing.T) {
			testTablesAreIsolated(t, open(t, factory, db.Options{}))
		})

		t.Run("CursorOrder", func(t *testing.T) {
			testCursorOrder(t, open(t, factory, db.Options{}))
		})

		t.Run("SnapshotReads", func(t *testing.T) {
			testSnapshotReads(t, open(t, factory, db.Options{}))
		})

		t.Run("ConcurrentReaders", func(t *testing.T) {
			testConcurrentReaders(t, open(t, factory, db.Options{}))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory)
		})

		t.Run("CapacityLimit", func(t *testing.T) {
			testCapacityLimit(t, open(t, factory, db.Options{MaxSizeBytes: 4 << 20}))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, open(t, factory, db.Options{}))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// open creates an environment in a temporary directory, it is closed with the test
func open(t testing.TB, factory db.Factory, opts db.Options) db.Env {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	if opts.MaxTables == 0 {
		opts.MaxTables = 16
	}
	opts.NoSync = true
	env, err := factory(opts)
	if err != nil {
		t.Fatalf("Failed to open environment: %v", err)
	}
	t.Cleanup(func() { _ = env.Close() })
	return env
}

// Checks if the environment supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, env db.Env, feature db.Feature) {
	if !env.SupportsFeature(feature) {
		t.Skipf("engine does not support %s", feature)
	}
}

// update runs fn in a write transaction and commits it
func update(t testing.TB, env db.Env, fn func(w db.Writer) error) error {
	t.Helper()
	txn, err := env.BeginWrite()
	if err != nil {
		t.Fatalf("Failed to begin write transaction: %v", err)
	}
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}

// view runs fn in a read transaction
func view(t testing.TB, env db.Env, fn func(r db.Reader)) {
	t.Helper()
	txn, err := env.BeginRead()
	if err != nil {
		t.Fatalf("Failed to begin read transaction: %v", err)
	}
	defer txn.Release()
	fn(txn)
}

func expectValue(t testing.TB, r db.Reader, table db.Table, key, expected []byte) {
	t.Helper()
	value, found, err := r.Get(table, key)
	if err != nil {
		t.Fatalf("Get(%s, %q) failed: %v", table, key, err)
	}
	if !found {
		t.Errorf("Expected key %q to exist in %s", key, table)
		return
	}
	if !bytes.Equal(value, expected) {
		t.Errorf("Expected value %q for key %q, got %q", expected, key, value)
	}
}

func expectMissing(t testing.TB, r db.Reader, table db.Table, key []byte) {
	t.Helper()
	_, found, err := r.Get(table, key)
	if err != nil {
		t.Fatalf("Get(%s, %q) failed: %v", table, key, err)
	}
	if found {
		t.Errorf("Expected key %q to be absent from %s", key, table)
	}
}

func uint64Key(i uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, i)
	return k
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

const table db.Table = "test"

func testPutGet(t *testing.T, env db.Env) {
	key := []byte("test-key")
	buf := []byte("test-value1")

	err := update(t, env, func(w db.Writer) error {
		if err := w.Put(table, key, buf); err != nil {
			return err
		}
		// the engine must have copied the value
		copy(buf, "XXXXXXXXXXX")
		expectValue(t, w, table, key, []byte("test-value1"))
		return w.Put(table, []byte("empty"), []byte{})
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	view(t, env, func(r db.Reader) {
		expectValue(t, r, table, key, []byte("test-value1"))
		expectValue(t, r, table, []byte("empty"), []byte{})
		expectMissing(t, r, table, []byte("nonexistent-key"))
		expectMissing(t, r, "never-written", key)
	})

	if err := update(t, env, func(w db.Writer) error {
		return w.Put(table, key, []byte("test-value2"))
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	view(t, env, func(r db.Reader) {
		expectValue(t, r, table, key, []byte("test-value2"))
	})
}

func testDelete(t *testing.T, env db.Env) {
	err := update(t, env, func(w db.Writer) error {
		if err := w.Put(table, []byte("a"), []byte("1")); err != nil {
			return err
		}
		return w.Put(table, []byte("b"), []byte("2"))
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	err = update(t, env, func(w db.Writer) error {
		if err := w.Delete(table, []byte("a")); err != nil {
			return err
		}
		if err := w.Delete(table, []byte("missing")); err != nil {
			return fmt.Errorf("deleting a missing key: %w", err)
		}
		return w.Delete("never-written", []byte("a"))
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	view(t, env, func(r db.Reader) {
		expectMissing(t, r, table, []byte("a"))
		expectValue(t, r, table, []byte("b"), []byte("2"))
	})
}

func testAbortDiscards(t *testing.T, env db.Env) {
	errBoom := errors.New("boom")
	err := update(t, env, func(w db.Writer) error {
		if err := w.Put(table, []byte("a"), []byte("1")); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}

	view(t, env, func(r db.Reader) {
		expectMissing(t, r, table, []byte("a"))
	})

	// the write slot must be free again
	if err := update(t, env, func(w db.Writer) error {
		return w.Put(table, []byte("b"), []byte("2"))
	}); err != nil {
		t.Fatalf("Commit after abort failed: %v", err)
	}
}

func testTablesAreIsolated(t *testing.T, env db.Env) {
	err := update(t, env, func(w db.Writer) error {
		if err := w.Put("one", []byte("k"), []byte("1")); err != nil {
			return err
		}
		return w.Put("two", []byte("k"), []byte("2"))
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	view(t, env, func(r db.Reader) {
		expectValue(t, r, "one", []byte("k"), []byte("1"))
		expectValue(t, r, "two", []byte("k"), []byte("2"))

		cur, err := r.Cursor("one")
		if err != nil {
			t.Fatalf("Cursor failed: %v", err)
		}
		defer cur.Close()
		n := 0
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			n++
		}
		if n != 1 {
			t.Errorf("Expected 1 row in table one, got %d", n)
		}
	})
}

func testCursorOrder(t *testing.T, env db.Env) {
	order := []uint64{5, 1, 9, 3, 7, 256, 0}
	err := update(t, env, func(w db.Writer) error {
		for _, i := range order {
			if err := w.Put(table, uint64Key(i), []byte(fmt.Sprint(i))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	expected := []uint64{0, 1, 3, 5, 7, 9, 256}
	view(t, env, func(r db.Reader) {
		cur, err := r.Cursor(table)
		if err != nil {
			t.Fatalf("Cursor failed: %v", err)
		}
		defer cur.Close()

		var forward []uint64
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			i := binary.BigEndian.Uint64(k)
			if string(v) != fmt.Sprint(i) {
				t.Errorf("Expected value %d, got %s", i, v)
			}
			forward = append(forward, i)
		}
		if fmt.Sprint(forward) != fmt.Sprint(expected) {
			t.Errorf("Expected forward order %v, got %v", expected, forward)
		}

		var backward []uint64
		for k, _ := cur.Last(); k != nil; k, _ = cur.Prev() {
			backward = append(backward, binary.BigEndian.Uint64(k))
		}
		if len(backward) != len(expected) || backward[0] != 256 || backward[len(backward)-1] != 0 {
			t.Errorf("Expected reverse order of %v, got %v", expected, backward)
		}

		k, _ := cur.Seek(uint64Key(4))
		if k == nil || binary.BigEndian.Uint64(k) != 5 {
			t.Errorf("Expected Seek(4) to land on 5, got %x", k)
		}
		k, _ = cur.Prev()
		if k == nil || binary.BigEndian.Uint64(k) != 3 {
			t.Errorf("Expected Prev after Seek(4) to land on 3, got %x", k)
		}
		if k, _ = cur.Seek(uint64Key(1000)); k != nil {
			t.Errorf("Expected Seek past the end to return nil, got %x", k)
		}
	})
}

func testSnapshotReads(t *testing.T, env db.Env) {
	requireFeature(t, env, db.FeatureSnapshotReads)

	if err := update(t, env, func(w db.Writer) error {
		return w.Put(table, []byte("k"), []byte("old"))
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	snapshot, err := env.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead failed: %v", err)
	}
	defer snapshot.Release()

	if err := update(t, env, func(w db.Writer) error {
		if err := w.Put(table, []byte("k"), []byte("new")); err != nil {
			return err
		}
		return w.Put(table, []byte("other"), []byte("1"))
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	expectValue(t, snapshot, table, []byte("k"), []byte("old"))
	expectMissing(t, snapshot, table, []byte("other"))

	view(t, env, func(r db.Reader) {
		expectValue(t, r, table, []byte("k"), []byte("new"))
	})
}

func testConcurrentReaders(t *testing.T, env db.Env) {
	const n = 100
	if err := update(t, env, func(w db.Writer) error {
		for i := uint64(0); i < n; i++ {
			if err := w.Put(table, uint64Key(i), uint64Key(i*2)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := env.BeginRead()
			if err != nil {
				t.Errorf("BeginRead failed: %v", err)
				return
			}
			defer txn.Release()
			for i := uint64(0); i < n; i++ {
				v, found, err := txn.Get(table, uint64Key(i))
				if err != nil || !found || binary.BigEndian.Uint64(v) != i*2 {
					t.Errorf("Unexpected read of key %d: %x %v %v", i, v, found, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func testReopen(t *testing.T, factory db.Factory) {
	opts := db.Options{Dir: t.TempDir(), MaxTables: 16, NoSync: true}

	env, err := factory(opts)
	if err != nil {
		t.Fatalf("Failed to open environment: %v", err)
	}
	if err := update(t, env, func(w db.Writer) error {
		return w.Put(table, []byte("persistent"), []byte("yes"))
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	env = open(t, factory, opts)
	view(t, env, func(r db.Reader) {
		expectValue(t, r, table, []byte("persistent"), []byte("yes"))
	})
}

func testCapacityLimit(t *testing.T, env db.Env) {
	requireFeature(t, env, db.FeatureCapacityLimit)

	if err := update(t, env, func(w db.Writer) error {
		return w.Put(table, []byte("small"), []byte("value"))
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// 8 MiB into a 4 MiB environment, the error may surface on Put or on Commit
	value := make([]byte, 128<<10)
	err := update(t, env, func(w db.Writer) error {
		for i := uint64(0); i < 64; i++ {
			if err := w.Put(table, uint64Key(i), value); err != nil {
				return err
			}
		}
		return nil
	})
	if !errors.Is(err, db.ErrCapacity) {
		t.Fatalf("Expected a capacity error, got %v", err)
	}

	view(t, env, func(r db.Reader) {
		expectValue(t, r, table, []byte("small"), []byte("value"))
		expectMissing(t, r, table, uint64Key(0))
	})
}

func testInfo(t *testing.T, env db.Env) {
	info := env.Info()
	if info.DbType == "" {
		t.Errorf("Expected a db type")
	}
	if info.Path == "" {
		t.Errorf("Expected a path")
	}
	for _, f := range info.SupportedFeatures {
		if !env.SupportsFeature(f) {
			t.Errorf("Info lists %s but SupportsFeature denies it", f)
		}
	}
}
