package benchmarks

import "github.com/sarchlab/cachesim/cache"

// GetWorkloads returns the standard set of workloads. Each one stresses a
// different replacement behavior.
func GetWorkloads() []Workload {
	return []Workload{
		sequentialSweep(),
		stridedConflict(),
		loopingWorkingSet(),
		residentWorkingSet(),
		hotCold(),
		repeatedBlock(),
	}
}

// GetCoreWorkloads returns a minimal set for quick comparisons.
func GetCoreWorkloads() []Workload {
	return []Workload{
		loopingWorkingSet(),
		hotCold(),
		repeatedBlock(),
	}
}

// blockAddr builds the first address of the block with the given tag and set
// index.
func blockAddr(d cache.Descriptor, tag, index uint64) uint64 {
	return tag<<(d.BlockSize+d.IndexBits()) | index<<d.BlockSize
}

// 1. Sequential Sweep - streams over twice the capacity, two passes
func sequentialSweep() Workload {
	return Workload{
		Name:        "sequential_sweep",
		Description: "Two passes over twice the cache capacity - no reuse survives",
		Generate: func(d cache.Descriptor) []uint64 {
			blocks := 2 * d.NumBlocks
			addrs := make([]uint64, 0, 2*blocks)
			for pass := 0; pass < 2; pass++ {
				for i := uint64(0); i < blocks; i++ {
					addrs = append(addrs, i<<d.BlockSize)
				}
			}
			return addrs
		},
	}
}

// 2. Strided Conflict - every access maps to set 0
func stridedConflict() Workload {
	return Workload{
		Name:        "strided_conflict",
		Description: "2*assoc blocks strided onto one set - conflict misses only",
		Generate: func(d cache.Descriptor) []uint64 {
			tags := 2 * d.Assoc
			addrs := make([]uint64, 0, 4*tags)
			for round := 0; round < 4; round++ {
				for t := uint64(0); t < tags; t++ {
					addrs = append(addrs, blockAddr(d, t, 0))
				}
			}
			return addrs
		},
	}
}

// 3. Looping Working Set - one block more than a set holds
func loopingWorkingSet() Workload {
	return Workload{
		Name:        "looping_working_set",
		Description: "Loop over assoc+1 blocks of one set - worst case for LRU",
		Generate: func(d cache.Descriptor) []uint64 {
			tags := d.Assoc + 1
			addrs := make([]uint64, 0, 8*tags)
			for round := 0; round < 8; round++ {
				for t := uint64(0); t < tags; t++ {
					addrs = append(addrs, blockAddr(d, t, 0))
				}
			}
			return addrs
		},
	}
}

// 4. Resident Working Set - fills every line, then loops
func residentWorkingSet() Workload {
	return Workload{
		Name:        "resident_working_set",
		Description: "Loop over exactly one block per line - hits after the first pass",
		Generate: func(d cache.Descriptor) []uint64 {
			sets := d.NumSets()
			addrs := make([]uint64, 0, 4*d.NumBlocks)
			for round := 0; round < 4; round++ {
				for index := uint64(0); index < sets; index++ {
					for t := uint64(0); t < d.Assoc; t++ {
						addrs = append(addrs, blockAddr(d, t, index))
					}
				}
			}
			return addrs
		},
	}
}

// 5. Hot/Cold - a few hot blocks between a stream of cold ones
func hotCold() Workload {
	return Workload{
		Name:        "hot_cold",
		Description: "Hot blocks reused between cold streaming blocks - favors LFU",
		Generate: func(d cache.Descriptor) []uint64 {
			hot := d.Assoc - 1
			if hot == 0 {
				hot = 1
			}

			var addrs []uint64
			cold := hot
			for round := 0; round < 32; round++ {
				for t := uint64(0); t < hot; t++ {
					addrs = append(addrs, blockAddr(d, t, 0))
				}
				addrs = append(addrs,
					blockAddr(d, cold, 0), blockAddr(d, cold+1, 0))
				cold += 2
			}
			return addrs
		},
	}
}

// 6. Repeated Block - the same address over and over
func repeatedBlock() Workload {
	return Workload{
		Name:        "repeated_block",
		Description: "One address 64 times - a single compulsory miss",
		Generate: func(d cache.Descriptor) []uint64 {
			addrs := make([]uint64, 64)
			for i := range addrs {
				addrs[i] = blockAddr(d, 1, 0)
			}
			return addrs
		},
	}
}
