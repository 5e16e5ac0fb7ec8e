package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/cache"
)

var _ = Describe("Formatting", func() {
	It("should render an empty line with a dash", func() {
		Expect(cache.FormatLine(nil, 3)).To(Equal("3 | -"))
	})

	It("should render every entry with its insertion step", func() {
		line := cache.Line{
			{Tag: 0x1f, Entered: 0},
			{Tag: 0xab, Entered: 12},
		}
		Expect(cache.FormatLine(line, 1)).To(Equal("1 | 1f (0) | ab (12)"))
	})

	It("should label lines with their set, not their position", func() {
		d := cache.Descriptor{
			AddrSize: 8, BlockSize: 2, NumBlocks: 4, Assoc: 2,
			Strategy: cache.StrategyLRU,
		}
		lines, _ := cache.Simulate(d, []uint64{0x00, 0x10, 0x20})

		Expect(cache.FormatTable(d, lines)).To(Equal([]string{
			"0 | 0 (0) | 4 (2)",
			"0 | 2 (1)",
			"1 | -",
			"1 | -",
		}))
	})

	It("should summarize the statistics", func() {
		stats := cache.Statistics{HitCount: 1, MissCount: 3, EvictionCount: 2}
		Expect(cache.Summary(stats, 4)).To(
			Equal("Hits: 1/4. Misses: 3/4. Evictions: 2/4."))
	})

	It("should compute the hit rate", func() {
		Expect(cache.Statistics{}.HitRate()).To(BeZero())
		Expect(cache.Statistics{HitCount: 1, MissCount: 3}.HitRate()).To(
			BeNumerically("~", 0.25))
	})
})
