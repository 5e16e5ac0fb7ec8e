// Package benchmarks compares replacement strategies on synthetic workloads.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/crosscheck"
)

// Version is reported in JSON reports.
const Version = "0.1.0"

// WorkloadResult holds the outcome of one workload under one strategy.
type WorkloadResult struct {
	// Workload identifies the workload
	Workload string `json:"workload"`

	// Description explains what the workload exercises
	Description string `json:"description"`

	// Strategy is the replacement strategy used
	Strategy string `json:"strategy"`

	Accesses  uint64  `json:"accesses"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`

	// Verified is set when the counts were confirmed by the Akita directory
	Verified bool `json:"verified"`

	// WallTime is the time taken to replay the workload
	WallTime time.Duration `json:"wall_time_ns"`
}

// Workload defines a synthetic address trace.
type Workload struct {
	// Name identifies the workload
	Name string

	// Description explains what the workload exercises
	Description string

	// Generate builds the trace for a cache geometry
	Generate func(d cache.Descriptor) []uint64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Geometry is the cache every workload runs on. Its strategy is ignored.
	Geometry cache.Descriptor

	// Strategies lists the strategies to compare
	Strategies []cache.Strategy

	// Verify cross-checks every supported run against the Akita directory
	Verify bool

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a 4-way cache of 64 lines with 64-byte blocks.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Geometry: cache.Descriptor{
			AddrSize:  32,
			BlockSize: 6,
			NumBlocks: 64,
			Assoc:     4,
		},
		Strategies: cache.Strategies(),
		Output:     os.Stdout,
	}
}

// Harness runs workloads and reports results.
type Harness struct {
	config    HarnessConfig
	workloads []Workload
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if len(config.Strategies) == 0 {
		config.Strategies = cache.Strategies()
	}

	return &Harness{
		config:    config,
		workloads: []Workload{},
	}
}

// AddWorkload adds a workload to the harness.
func (h *Harness) AddWorkload(w Workload) {
	h.workloads = append(h.workloads, w)
}

// AddWorkloads adds multiple workloads to the harness.
func (h *Harness) AddWorkloads(workloads []Workload) {
	h.workloads = append(h.workloads, workloads...)
}

// RunAll runs every workload under every strategy, in that order.
func (h *Harness) RunAll() ([]WorkloadResult, error) {
	if err := h.config.Geometry.Validate(); err != nil {
		return nil, err
	}

	results := make([]WorkloadResult, 0,
		len(h.workloads)*len(h.config.Strategies))

	for _, w := range h.workloads {
		addrs := w.Generate(h.config.Geometry)

		for _, s := range h.config.Strategies {
			result, err := h.runWorkload(w, s, addrs)
			if err != nil {
				return nil, err
			}

			results = append(results, result)
		}
	}

	return results, nil
}

func (h *Harness) runWorkload(
	w Workload,
	s cache.Strategy,
	addrs []uint64,
) (WorkloadResult, error) {
	d := h.config.Geometry
	d.Strategy = s

	start := time.Now()
	_, stats := cache.Simulate(d, addrs)
	wallTime := time.Since(start)

	result := WorkloadResult{
		Workload:    w.Name,
		Description: w.Description,
		Strategy:    s.String(),
		Accesses:    stats.Accesses(),
		Hits:        stats.Hits(),
		Misses:      stats.Misses(),
		Evictions:   stats.Evictions(),
		HitRate:     stats.HitRate(),
		WallTime:    wallTime,
	}

	if h.config.Verify && crosscheck.Supported(d) == nil {
		if err := crosscheck.Verify(d, addrs, stats); err != nil {
			return result, fmt.Errorf("%s/%s: %w", w.Name, s, err)
		}
		result.Verified = true
	}

	return result, nil
}

// PrintResults outputs results in a human-readable format.
func (h *Harness) PrintResults(results []WorkloadResult) {
	d := h.config.Geometry
	out := h.config.Output

	_, _ = fmt.Fprintln(out, "=== Cache Strategy Comparison ===")
	_, _ = fmt.Fprintf(out, "Geometry: %d lines, %d-way, %d sets, %d-byte blocks\n",
		d.NumBlocks, d.Assoc, d.NumSets(), uint64(1)<<d.BlockSize)
	_, _ = fmt.Fprintln(out, "")

	last := ""
	for _, r := range results {
		if r.Workload != last {
			if last != "" {
				_, _ = fmt.Fprintln(out, "")
			}
			_, _ = fmt.Fprintf(out, "Workload: %s\n", r.Workload)
			_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
			last = r.Workload
		}

		_, _ = fmt.Fprintf(out,
			"  %-6s hits=%-6d misses=%-6d evictions=%-6d hit rate=%5.1f%%",
			r.Strategy, r.Hits, r.Misses, r.Evictions, 100*r.HitRate)
		if r.Verified {
			_, _ = fmt.Fprint(out, " (verified)")
		}
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []WorkloadResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"workload,strategy,accesses,hits,misses,evictions,hit_rate,verified")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%d,%d,%.4f,%t\n",
			r.Workload,
			r.Strategy,
			r.Accesses,
			r.Hits,
			r.Misses,
			r.Evictions,
			r.HitRate,
			r.Verified,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual results
	Results []WorkloadResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	Timestamp string         `json:"timestamp"`
	Version   string         `json:"version"`
	Geometry  ReportGeometry `json:"geometry"`
}

// ReportGeometry describes the cache the workloads ran on.
type ReportGeometry struct {
	AddrSize  uint64 `json:"addr_size"`
	BlockSize uint64 `json:"block_size"`
	NumBlocks uint64 `json:"n_blocks"`
	Assoc     uint64 `json:"assoc"`
}

// ReportSummary contains aggregate statistics across all workloads.
type ReportSummary struct {
	// TotalRuns is the number of workload/strategy pairs run
	TotalRuns int `json:"total_runs"`

	// HitRate is the overall hit rate of each strategy
	HitRate map[string]float64 `json:"hit_rate"`

	// Best maps each workload to the strategy with the most hits. Ties go
	// to the strategy listed first.
	Best map[string]string `json:"best"`

	// TotalWallTime is the total wall clock time for all runs
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []WorkloadResult) ReportSummary {
	summary := ReportSummary{
		TotalRuns: len(results),
		HitRate:   make(map[string]float64),
		Best:      make(map[string]string),
	}

	hits := make(map[string]uint64)
	accesses := make(map[string]uint64)
	bestHits := make(map[string]uint64)

	for _, r := range results {
		hits[r.Strategy] += r.Hits
		accesses[r.Strategy] += r.Accesses
		summary.TotalWallTime += r.WallTime

		if _, ok := summary.Best[r.Workload]; !ok || r.Hits > bestHits[r.Workload] {
			summary.Best[r.Workload] = r.Strategy
			bestHits[r.Workload] = r.Hits
		}
	}

	for s, n := range accesses {
		if n > 0 {
			summary.HitRate[s] = float64(hits[s]) / float64(n)
		}
	}

	return summary
}

// PrintJSON outputs results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []WorkloadResult) error {
	d := h.config.Geometry

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Geometry: ReportGeometry{
				AddrSize:  d.AddrSize,
				BlockSize: d.BlockSize,
				NumBlocks: d.NumBlocks,
				Assoc:     d.Assoc,
			},
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
