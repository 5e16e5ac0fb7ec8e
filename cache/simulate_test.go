package cache_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/cache"
)

// randomTrace returns n addresses drawn from a small pool so that hits,
// misses and evictions all occur.
func randomTrace(seed int64, n int, pool int, addrSize uint64) []uint64 {
	r := rand.New(rand.NewSource(seed))

	addrs := make([]uint64, pool)
	for i := range addrs {
		addrs[i] = r.Uint64() & (1<<addrSize - 1)
	}

	out := make([]uint64, n)
	for i := range out {
		out[i] = addrs[r.Intn(pool)]
	}

	return out
}

var _ = Describe("Simulate", func() {
	Describe("direct-mapped cache with First", func() {
		var d cache.Descriptor

		BeforeEach(func() {
			d = cache.Descriptor{
				AddrSize:  8,
				BlockSize: 2,
				NumBlocks: 4,
				Assoc:     1,
				Strategy:  cache.StrategyFirst,
			}
		})

		It("should miss once per distinct set without evicting", func() {
			lines, stats := cache.Simulate(d, []uint64{0x00, 0x04, 0x08, 0x0C})

			Expect(stats).To(Equal(cache.Statistics{MissCount: 4}))
			for _, line := range lines {
				Expect(line).To(HaveLen(1))
			}
		})

		It("should hit when an address returns to its set", func() {
			lines, stats := cache.Simulate(d, []uint64{0x00, 0x04, 0x08, 0x00})

			Expect(stats.Hits()).To(Equal(uint64(1)))
			Expect(stats.Misses()).To(Equal(uint64(3)))
			Expect(stats.Evictions()).To(BeZero())

			entry, ok := lines[0].Current()
			Expect(ok).To(BeTrue())
			Expect(entry.CountUsed).To(Equal(uint64(2)))
			Expect(entry.LastUsed).To(Equal(uint64(3)))
			Expect(entry.Entered).To(Equal(uint64(0)))
			Expect(lines[3].Empty()).To(BeTrue())
		})

		It("should always target the only line of the set", func() {
			// 0x00 and 0x10 share set 0 with different tags.
			lines, stats := cache.Simulate(d, []uint64{0x00, 0x10, 0x00})

			Expect(stats).To(Equal(cache.Statistics{MissCount: 3, EvictionCount: 2}))
			Expect(lines[0]).To(Equal(cache.Line{
				{Tag: 0, Entered: 0, LastUsed: 0, CountUsed: 1},
				{Tag: 1, Entered: 1, LastUsed: 1, CountUsed: 1},
				{Tag: 0, Entered: 2, LastUsed: 2, CountUsed: 1},
			}))
		})
	})

	Describe("two-way LRU", func() {
		var d cache.Descriptor

		BeforeEach(func() {
			d = cache.Descriptor{
				AddrSize:  8,
				BlockSize: 2,
				NumBlocks: 4,
				Assoc:     2,
				Strategy:  cache.StrategyLRU,
			}
		})

		It("should fill empty lines before evicting the least recently used", func() {
			lines, stats := cache.Simulate(d, []uint64{0x00, 0x10, 0x20})

			Expect(stats).To(Equal(cache.Statistics{MissCount: 3, EvictionCount: 1}))
			Expect(lines[0]).To(Equal(cache.Line{
				{Tag: 0, Entered: 0, LastUsed: 0, CountUsed: 1},
				{Tag: 4, Entered: 2, LastUsed: 2, CountUsed: 1},
			}))
			Expect(lines[1]).To(Equal(cache.Line{
				{Tag: 2, Entered: 1, LastUsed: 1, CountUsed: 1},
			}))
			Expect(lines[2].Empty()).To(BeTrue())
			Expect(lines[3].Empty()).To(BeTrue())
		})

		It("should protect a line that was hit", func() {
			lines, stats := cache.Simulate(d, []uint64{0x00, 0x10, 0x00, 0x20})

			Expect(stats).To(Equal(cache.Statistics{
				HitCount: 1, MissCount: 3, EvictionCount: 1,
			}))
			Expect(lines[0]).To(HaveLen(1))
			Expect(lines[1]).To(HaveLen(2))

			current, _ := lines[1].Current()
			Expect(current.Tag).To(Equal(uint64(4)))
		})

		It("should keep sets independent", func() {
			// 0x04 maps to set 1 and never disturbs set 0.
			_, stats := cache.Simulate(d, []uint64{0x00, 0x04, 0x10, 0x14, 0x00, 0x04})

			Expect(stats.Hits()).To(Equal(uint64(2)))
			Expect(stats.Evictions()).To(BeZero())
		})
	})

	Describe("two-way LFU", func() {
		var d cache.Descriptor

		BeforeEach(func() {
			d = cache.Descriptor{
				AddrSize:  8,
				BlockSize: 2,
				NumBlocks: 2,
				Assoc:     2,
				Strategy:  cache.StrategyLFU,
			}
		})

		It("should evict the least frequently used line", func() {
			// Tag 0 is used twice, tag 1 once; tag 2 must replace tag 1.
			lines, stats := cache.Simulate(d, []uint64{0x00, 0x00, 0x04, 0x08})

			Expect(stats).To(Equal(cache.Statistics{
				HitCount: 1, MissCount: 3, EvictionCount: 1,
			}))
			Expect(lines[0]).To(HaveLen(1))
			Expect(lines[1]).To(Equal(cache.Line{
				{Tag: 1, Entered: 2, LastUsed: 2, CountUsed: 1},
				{Tag: 2, Entered: 3, LastUsed: 3, CountUsed: 1},
			}))
		})

		It("should break ties by the lowest line", func() {
			lines, _ := cache.Simulate(d, []uint64{0x00, 0x04, 0x08})

			Expect(lines[0]).To(HaveLen(2))
			Expect(lines[1]).To(HaveLen(1))
		})

		It("should reset the count of a refilled line", func() {
			lines, _ := cache.Simulate(d, []uint64{0x00, 0x04, 0x04, 0x08, 0x08})

			current, _ := lines[0].Current()
			Expect(current.Tag).To(Equal(uint64(2)))
			Expect(current.CountUsed).To(Equal(uint64(2)))
		})
	})

	Describe("First on a set-associative cache", func() {
		It("should replace line 0 even when other lines are empty", func() {
			d := cache.Descriptor{
				AddrSize:  8,
				BlockSize: 2,
				NumBlocks: 2,
				Assoc:     2,
				Strategy:  cache.StrategyFirst,
			}

			lines, stats := cache.Simulate(d, []uint64{0x00, 0x04})

			Expect(stats).To(Equal(cache.Statistics{MissCount: 2, EvictionCount: 1}))
			Expect(lines[0]).To(HaveLen(2))
			Expect(lines[1].Empty()).To(BeTrue())
		})
	})

	Describe("observers", func() {
		It("should report every access in order", func() {
			d := cache.Descriptor{
				AddrSize: 8, BlockSize: 2, NumBlocks: 4, Assoc: 2,
				Strategy: cache.StrategyLRU,
			}

			var accesses []cache.Access
			cache.Simulate(d, []uint64{0x00, 0x10, 0x00, 0x20},
				cache.WithObserver(func(a cache.Access) {
					accesses = append(accesses, a)
				}))

			Expect(accesses).To(HaveLen(4))
			Expect(accesses[2]).To(Equal(cache.Access{
				Step: 2, Address: 0x00, Tag: 0, Set: 0, Line: 0, Hit: true,
			}))
			Expect(accesses[3].Evicted).To(BeTrue())
			Expect(accesses[3].Line).To(Equal(1))
			Expect(accesses[3].Victim.Tag).To(Equal(uint64(2)))
		})
	})

	Describe("invariants on random traces", func() {
		descriptors := []cache.Descriptor{
			{AddrSize: 16, BlockSize: 4, NumBlocks: 16, Assoc: 4, Strategy: cache.StrategyLRU},
			{AddrSize: 16, BlockSize: 4, NumBlocks: 16, Assoc: 4, Strategy: cache.StrategyLFU},
			{AddrSize: 16, BlockSize: 4, NumBlocks: 16, Assoc: 4, Strategy: cache.StrategyFirst},
			{AddrSize: 16, BlockSize: 2, NumBlocks: 8, Assoc: 1, Strategy: cache.StrategyFirst},
			{AddrSize: 16, BlockSize: 3, NumBlocks: 12, Assoc: 2, Strategy: cache.StrategyLRU},
		}

		It("should account for every address", func() {
			for i, d := range descriptors {
				addrs := randomTrace(int64(i), 500, 40, d.AddrSize)
				_, stats := cache.Simulate(d, addrs)

				Expect(stats.Hits() + stats.Misses()).To(Equal(uint64(len(addrs))))
				Expect(stats.Accesses()).To(Equal(uint64(len(addrs))))
				Expect(stats.Evictions()).To(BeNumerically("<=", stats.Misses()))
			}
		})

		It("should be deterministic", func() {
			for i, d := range descriptors {
				addrs := randomTrace(int64(100+i), 300, 30, d.AddrSize)
				linesA, statsA := cache.Simulate(d, addrs)
				linesB, statsB := cache.Simulate(d, addrs)

				Expect(linesB).To(Equal(linesA))
				Expect(statsB).To(Equal(statsA))
			}
		})

		It("should append exactly one entry per miss", func() {
			for i, d := range descriptors {
				addrs := randomTrace(int64(200+i), 300, 30, d.AddrSize)
				lines, stats := cache.Simulate(d, addrs)

				total := 0
				for _, line := range lines {
					total += len(line)
				}
				Expect(uint64(total)).To(Equal(stats.Misses()))
			}
		})

		It("should never evict while LRU and LFU sets have room", func() {
			d := descriptors[0]
			// 4 sets x 4 ways; only 8 distinct blocks spread over the sets.
			addrs := randomTrace(7, 400, 8, d.AddrSize)
			distinct := map[uint64]bool{}
			for _, a := range addrs {
				distinct[a>>d.BlockSize] = true
			}

			perSet := map[uint64]int{}
			for block := range distinct {
				perSet[block&3]++
			}

			full := false
			for _, n := range perSet {
				if n > 4 {
					full = true
				}
			}

			_, stats := cache.Simulate(d, addrs)
			if !full {
				Expect(stats.Evictions()).To(BeZero())
			}
		})

		It("should keep entry timestamps ordered", func() {
			d := descriptors[0]
			addrs := randomTrace(11, 300, 30, d.AddrSize)

			var lines []cache.Line
			lines, _ = cache.Simulate(d, addrs, cache.WithObserver(func(a cache.Access) {
				Expect(a.Step).To(BeNumerically("<", len(addrs)))
			}))

			for _, line := range lines {
				for _, e := range line {
					Expect(e.LastUsed).To(BeNumerically(">=", e.Entered))
					Expect(e.CountUsed).To(BeNumerically(">=", 1))
				}
			}
		})

		It("should evict the entry with the minimum last use under LRU", func() {
			d := descriptors[0]
			addrs := randomTrace(13, 400, 40, d.AddrSize)

			// Shadow the occupant of every line to check each eviction.
			shadow := make([]cache.Entry, d.NumBlocks)
			cache.Simulate(d, addrs, cache.WithObserver(func(a cache.Access) {
				lo, hi := d.SetBounds(a.Set)

				if a.Hit {
					shadow[a.Line].LastUsed = a.Step
					shadow[a.Line].CountUsed++
					return
				}

				if a.Evicted {
					for i := lo; i < hi; i++ {
						Expect(shadow[a.Line].LastUsed).To(
							BeNumerically("<=", shadow[i].LastUsed))
					}
					Expect(a.Victim).To(Equal(shadow[a.Line]))
				}

				shadow[a.Line] = cache.Entry{
					Tag: a.Tag, Entered: a.Step, LastUsed: a.Step, CountUsed: 1,
				}
			}))
		})
	})

	Describe("invalid descriptors", func() {
		It("should panic", func() {
			d := cache.Descriptor{AddrSize: 8, BlockSize: 2, NumBlocks: 4, Assoc: 0}
			Expect(func() { cache.Simulate(d, []uint64{0}) }).To(Panic())
		})
	})
})
