package testing

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/planb/lib/db"
)

// RunEnvBenchmarks runs all benchmarks for an engine
func RunEnvBenchmarks(b *testing.B, name string, factory db.Factory) {

	b.Run("PutSingleTxn", func(b *testing.B) {
		benchmarkPutSingleTxn(b, open(b, factory, db.Options{}))
	})

	b.Run("PutBatch100", func(b *testing.B) {
		benchmarkPutBatch(b, open(b, factory, db.Options{}), 100)
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, open(b, factory, db.Options{}))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, open(b, factory, db.Options{}))
	})

	b.Run("CursorScan", func(b *testing.B) {
		benchmarkCursorScan(b, open(b, factory, db.Options{}))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

const benchKeys = 10_000

func fill(b *testing.B, env db.Env, n int) {
	err := update(b, env, func(w db.Writer) error {
		for i := 0; i < n; i++ {
			if err := w.Put(table, uint64Key(uint64(i)), uint64Key(uint64(i))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatalf("Failed to prepare data: %v", err)
	}
}

// Benchmark for puts into one write transaction
func benchmarkPutSingleTxn(b *testing.B, env db.Env) {
	txn, err := env.BeginWrite()
	if err != nil {
		b.Fatal(err)
	}
	defer txn.Abort()

	key := make([]byte, 8)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		if err := txn.Put(table, key, key); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for commits of a fixed batch size, reported per put
func benchmarkPutBatch(b *testing.B, env db.Env, size int) {
	key := make([]byte, 8)
	b.ResetTimer()
	for i := 0; i < b.N; i += size {
		err := update(b, env, func(w db.Writer) error {
			for j := 0; j < size; j++ {
				binary.BigEndian.PutUint64(key, uint64(i+j))
				if err := w.Put(table, key, key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for puts of 64 KiB values
func benchmarkPutLargeValue(b *testing.B, env db.Env) {
	value := make([]byte, 64<<10)
	key := make([]byte, 8)
	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		err := update(b, env, func(w db.Writer) error {
			return w.Put(table, key, value)
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Parallel benchmarking for point reads
func benchmarkGet(b *testing.B, env db.Env) {
	fill(b, env, benchKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		txn, err := env.BeginRead()
		if err != nil {
			b.Error(err)
			return
		}
		defer txn.Release()

		rnd := rand.New(rand.NewSource(rand.Int63()))
		key := make([]byte, 8)
		for pb.Next() {
			binary.BigEndian.PutUint64(key, uint64(rnd.Intn(benchKeys)))
			if _, found, err := txn.Get(table, key); err != nil || !found {
				b.Errorf("Get failed: %v %v", found, err)
				return
			}
		}
	})
}

// Benchmark for full ordered scans, reported per row
func benchmarkCursorScan(b *testing.B, env db.Env) {
	fill(b, env, benchKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i += benchKeys {
		view(b, env, func(r db.Reader) {
			cur, err := r.Cursor(table)
			if err != nil {
				b.Fatal(err)
			}
			defer cur.Close()
			for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			}
		})
	}
}
