// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the db.Env interface.
//
// The package contains:
//   - testing: A conformance suite for the transaction, cursor, snapshot and capacity contract
//   - benchmark: Performance tests for puts, batched commits, point reads and scans
//
// Every test opens a fresh environment in a temporary directory, so factories only
// need to honour the options they are given.
//
// Example usage:
//
//	// Running the standard test suite
//	dbtesting.RunEnvTests(t, "Bolt", bolt.New)
//
//	// Running performance benchmarks
//	dbtesting.RunEnvBenchmarks(b, "Bolt", bolt.New)
package testing
