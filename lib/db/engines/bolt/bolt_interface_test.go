package bolt

import (
	"testing"

	dbtesting "github.com/ValentinKolb/planb/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEnvTests(t, "Bolt", New)
}

func Benchmark(b *testing.B) {
	dbtesting.RunEnvBenchmarks(b, "Bolt", New)
}
