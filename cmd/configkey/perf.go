package configkey

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dCfg/cmd/util"
	"github.com/ValentinKolb/dCfg/rpc/client"
	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dCfg servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 16
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             []string
)

// perfTest is one benchmark of the perf command. prepare stores the keys the test reads.
type perfTest struct {
	name    string
	prepare bool
	op      func(key string, counter int) (client.Reply, error)
}

func init() {
	perfTestCmd.Flags().String("skip", "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	perfTestCmd.Flags().Int("threads", 10, util.WrapString("Number of threads to use for the benchmark"))
	perfTestCmd.Flags().Int("large-value-size", 16, util.WrapString("How large the value for the put-large test should be (in KB, must not exceed the max entry size of the server)"))
	perfTestCmd.Flags().Int("keys", 100, util.WrapString("How many different keys to use for the tests"))
	perfTestCmd.Flags().String("csv", "", util.WrapString("Optional path to save benchmark results as CSV"))
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

func perfTests() []perfTest {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	return []perfTest{
		{name: "put", op: func(key string, _ int) (client.Reply, error) {
			return rpcClient.Put(key, value)
		}},
		{name: "put-large", op: func(key string, _ int) (client.Reply, error) {
			return rpcClient.Put(key, largeValue)
		}},
		{name: "get", prepare: true, op: func(key string, _ int) (client.Reply, error) {
			return rpcClient.Get(key)
		}},
		{name: "exists", prepare: true, op: func(key string, _ int) (client.Reply, error) {
			return rpcClient.Exists(key)
		}},
		{name: "del", prepare: true, op: func(key string, _ int) (client.Reply, error) {
			return rpcClient.Delete(key)
		}},
		{name: "dump", prepare: true, op: func(_ string, _ int) (client.Reply, error) {
			return rpcClient.Dump(perfKeyPrefix + "-dump")
		}},
		{name: "mixed", prepare: true, op: func(key string, counter int) (client.Reply, error) {
			switch counter % 4 {
			case 0:
				return rpcClient.Put(key, value)
			case 1:
				return rpcClient.Get(key)
			case 2:
				return rpcClient.Delete(key)
			default:
				return rpcClient.Exists(key)
			}
		}},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dCfg servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)

	for _, test := range perfTests() {
		result := testing.Benchmark(func(b *testing.B) {
			if slices.Contains(perfSkip, test.name) {
				return
			}

			getKey, iter := getKeys(test.name)

			if test.prepare {
				iter(func(k string) {
					if _, err := rpcClient.Put(k, []byte("test")); err != nil {
						log.Printf("(%s) - error storing key: %v\n", test.name, err)
					}
				})
			}

			b.Cleanup(func() {
				iter(func(k string) {
					if _, err := rpcClient.Delete(k); err != nil {
						log.Printf("(%s) - error deleting key: %v\n", test.name, err)
					}
				})
			})

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					// a failed reply (e.g. -ENOENT in the mixed test) is part of the workload, only transport errors are logged
					if _, err := test.op(getKey(counter), counter); err != nil {
						log.Printf("(%s) - error: %v\n", test.name, err)
					}
					counter++
				}
			})
		})

		results[test.name] = result
		printResult(test.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// getKeys creates the test keys of one benchmark and functions to work with them
func getKeys(test string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s/%d", perfKeyPrefix, test, i)
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

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, test := range names {
		result := results[test]

		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
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
