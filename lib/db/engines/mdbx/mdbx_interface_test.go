//go:build mdbx

package mdbx

import (
	"testing"

	dbtesting "github.com/ValentinKolb/planb/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEnvTests(t, "Mdbx", New)
}

func Benchmark(b *testing.B) {
	dbtesting.RunEnvBenchmarks(b, "Mdbx", New)
}
