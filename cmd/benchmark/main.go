// Command benchmark compares the replacement strategies on synthetic
// workloads.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	--csv          Output results in CSV format (default: human-readable)
//	--json         Output results in JSON format
//	--core         Run only the core workloads
//	--verify       Cross-check LRU runs against the Akita cache directory
//	--blocks       Number of cache lines (default 64)
//	--assoc        Associativity (default 4)
//	--block-size   Offset bits per block (default 6)
//	--addr-size    Address width in bits (default 32)
//
// Example:
//
//	# Compare all strategies on a direct-mapped cache
//	go run ./cmd/benchmark --assoc 1
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark --csv > results.csv
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachesim/benchmarks"
)

func newRootCmd() *cobra.Command {
	config := benchmarks.DefaultConfig()

	var csvOutput, jsonOutput, core bool

	rootCmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Compare cache replacement strategies on synthetic workloads.",
		Args:  cobra.NoArgs,

		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config.Output = cmd.OutOrStdout()

			harness := benchmarks.NewHarness(config)
			if core {
				harness.AddWorkloads(benchmarks.GetCoreWorkloads())
			} else {
				harness.AddWorkloads(benchmarks.GetWorkloads())
			}

			results, err := harness.RunAll()
			if err != nil {
				return err
			}

			switch {
			case jsonOutput:
				return harness.PrintJSON(results)
			case csvOutput:
				harness.PrintCSV(results)
			default:
				harness.PrintResults(results)
			}

			return nil
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&csvOutput, "csv", false, "Output results in CSV format")
	f.BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
	f.BoolVar(&core, "core", false, "Run only the core workloads")
	f.BoolVar(&config.Verify, "verify", false,
		"Cross-check LRU runs against the Akita cache directory")
	f.Uint64Var(&config.Geometry.NumBlocks, "blocks", config.Geometry.NumBlocks,
		"Number of cache lines")
	f.Uint64Var(&config.Geometry.Assoc, "assoc", config.Geometry.Assoc,
		"Associativity")
	f.Uint64Var(&config.Geometry.BlockSize, "block-size", config.Geometry.BlockSize,
		"Offset bits per block")
	f.Uint64Var(&config.Geometry.AddrSize, "addr-size", config.Geometry.AddrSize,
		"Address width in bits")
	rootCmd.MarkFlagsMutuallyExclusive("csv", "json")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
