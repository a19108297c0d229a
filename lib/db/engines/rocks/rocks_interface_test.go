//go:build rocksdb

package rocks

import (
	"testing"

	dbtesting "github.com/ValentinKolb/planb/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEnvTests(t, "RocksDB", New)
}

func Benchmark(b *testing.B) {
	dbtesting.RunEnvBenchmarks(b, "RocksDB", New)
}
