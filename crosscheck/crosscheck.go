// Package crosscheck replays traces through the Akita cache directory and
// compares the outcome with the cache engine.
//
// Akita only models LRU replacement. A direct-mapped cache has a single
// candidate line per set, so First is checked as well when Assoc is 1.
package crosscheck

import (
	"errors"
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/cachesim/cache"
)

var (
	// ErrUnsupported is returned for caches the directory cannot model.
	ErrUnsupported = errors.New("cross-check not supported")
	// ErrMismatch is returned by Verify when the counts disagree.
	ErrMismatch = errors.New("cross-check mismatch")
)

// Supported reports whether d can be cross-checked.
func Supported(d cache.Descriptor) error {
	switch {
	case d.Strategy == cache.StrategyLRU:
		return nil
	case d.Strategy == cache.StrategyFirst && d.Assoc == 1:
		return nil
	default:
		return fmt.Errorf("%w: %s with associativity %d",
			ErrUnsupported, d.Strategy, d.Assoc)
	}
}

// Replay runs addrs through an Akita directory with the geometry of d.
//
// Each address is mapped to tag*NumSets+index with a one-byte block, so that
// the directory selects the same set as the engine and two addresses share a
// block exactly when they share tag and index.
func Replay(d cache.Descriptor, addrs []uint64) (cache.Statistics, error) {
	if err := d.Validate(); err != nil {
		return cache.Statistics{}, err
	}
	if err := Supported(d); err != nil {
		return cache.Statistics{}, err
	}

	numSets := d.NumSets()
	directory := akitacache.NewDirectory(
		int(numSets),
		int(d.Assoc),
		1,
		akitacache.NewLRUVictimFinder(),
	)

	var stats cache.Statistics
	for _, addr := range addrs {
		tag, index := d.Split(addr)
		blockAddr := tag*numSets + index

		block := directory.Lookup(0, blockAddr)
		if block != nil && block.IsValid {
			stats.HitCount++
			directory.Visit(block)
			continue
		}

		stats.MissCount++

		victim := directory.FindVictim(blockAddr)
		if victim.IsValid {
			stats.EvictionCount++
		}

		victim.Tag = blockAddr
		victim.IsValid = true
		victim.IsDirty = false
		directory.Visit(victim)
	}

	return stats, nil
}

// Verify replays addrs and compares the result with stats.
func Verify(d cache.Descriptor, addrs []uint64, stats cache.Statistics) error {
	want, err := Replay(d, addrs)
	if err != nil {
		return err
	}

	if want != stats {
		return fmt.Errorf(
			"%w: engine hits=%d misses=%d evictions=%d, "+
				"directory hits=%d misses=%d evictions=%d",
			ErrMismatch,
			stats.Hits(), stats.Misses(), stats.Evictions(),
			want.Hits(), want.Misses(), want.Evictions())
	}

	return nil
}
