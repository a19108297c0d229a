package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ValentinKolb/planb/cmd/util"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the storage core",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// latencies holds one timer per test
	latencies = gometrics.NewRegistry()
)

var percentiles = []float64{0.5, 0.9, 0.99}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for planb")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(pb.Config().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := context.Background()
	results := make(map[string]testing.BenchmarkResult)
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	type perfTest struct {
		name  string
		setup bool // write all keys before the test
		op    func(key string, counter int) error
	}
	tests := []perfTest{
		{name: "put", op: func(key string, _ int) error {
			return kvStore.Put(ctx, key, value)
		}},
		{name: "put-async", op: func(key string, _ int) error {
			return kvStore.PutAsync(key, value)
		}},
		{name: "put-large", op: func(key string, _ int) error {
			return kvStore.Put(ctx, key, largeValue)
		}},
		{name: "get", setup: true, op: func(key string, _ int) error {
			_, _, err := kvStore.Get(key)
			return err
		}},
		{name: "has", setup: true, op: func(key string, _ int) error {
			_, err := kvStore.Has(key)
			return err
		}},
		{name: "has-not", op: func(key string, _ int) error {
			_, err := kvStore.Has(key)
			return err
		}},
		{name: "delete", setup: true, op: func(key string, _ int) error {
			return kvStore.Delete(ctx, key)
		}},
		{name: "mixed", setup: true, op: func(key string, counter int) error {
			var err error
			switch counter % 4 {
			case 0:
				err = kvStore.Put(ctx, key, value)
			case 1:
				_, _, err = kvStore.Get(key)
			case 2:
				err = kvStore.Delete(ctx, key)
			case 3:
				_, err = kvStore.Has(key)
			}
			return err
		}},
	}

	for _, test := range tests {
		if shouldSkip(test.name) {
			printResult(test.name, testing.BenchmarkResult{})
			continue
		}
		timer := gometrics.GetOrRegisterTimer(test.name, latencies)

		result := testing.Benchmark(func(b *testing.B) {
			getKey, iter := getKeys(test.name)

			if test.setup {
				iter(func(k string) {
					if err := kvStore.PutAsync(k, value); err != nil {
						log.Printf("(%s) - error setting key: %v\n", test.name, err)
					}
				})
				if err := pb.Writer().CommitSync(ctx); err != nil {
					log.Printf("(%s) - error committing setup: %v\n", test.name, err)
				}
			}

			b.Cleanup(func() {
				if err := cleanup(); err != nil {
					log.Printf("(%s) - error deleting keys: %v\n", test.name, err)
				}
			})

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(p *testing.PB) {
				counter := 0
				for p.Next() {
					start := time.Now()
					if err := test.op(getKey(counter), counter); err != nil {
						log.Printf("(%s) - error: %v\n", test.name, err)
					}
					timer.UpdateSince(start)
					counter++
				}
			})

			// async puts are only done once they are committed
			if err := pb.Writer().CommitSync(ctx); err != nil {
				log.Printf("(%s) - error committing: %v\n", test.name, err)
			}
		})

		results[test.name] = result
		printResult(test.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// cleanup removes every key written by a test
func cleanup() error {
	var keys []string
	err := kvStore.Scan(perfKeyPrefix, func(k string, _ []byte) bool {
		if !strings.HasPrefix(k, perfKeyPrefix) {
			return false
		}
		keys = append(keys, k)
		return true
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, k := range keys {
		if err := kvStore.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test together with its latency percentiles
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if timer, ok := latencies.Get(test).(gometrics.Timer); ok {
		ps := timer.Snapshot().Percentiles(percentiles)
		fmt.Printf("\tp50=%s p90=%s p99=%s", time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
	}
	fmt.Println()
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P90Ns", "P99Ns",
		"Engine", "HashWidth", "Lookup", "WriterMaxBatch", "NoSync",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	cfg := pb.Config()
	for test, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		ps := make([]float64, len(percentiles))
		if timer, ok := latencies.Get(test).(gometrics.Timer); ok {
			ps = timer.Snapshot().Percentiles(percentiles)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			string(cfg.Engine),
			strconv.Itoa(cfg.HashWidth),
			string(cfg.LookupStrategy),
			strconv.Itoa(cfg.WriterMaxBatch),
			strconv.FormatBool(cfg.NoSync),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
