// Package cache provides a trace-driven set-associative cache model.
//
// A Descriptor fixes the cache geometry and replacement strategy. Simulate
// replays an address trace against it and returns, for every physical line,
// the full history of the entries that occupied it, together with the
// hit/miss/eviction statistics of the run.
package cache

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Strategy selects the line to evict when a set is full.
type Strategy int

const (
	// StrategyLRU evicts the entry with the oldest last access.
	StrategyLRU Strategy = iota
	// StrategyLFU evicts the entry with the fewest accesses since insertion.
	StrategyLFU
	// StrategyFirst always replaces the first line of the set. It is meant
	// for direct-mapped caches.
	StrategyFirst
)

// ErrInvalidStrategy is returned when a strategy name is not recognized.
var ErrInvalidStrategy = errors.New("invalid strategy")

// ErrInvalidGeometry is returned by Descriptor.Validate when the geometry
// cannot be simulated.
var ErrInvalidGeometry = errors.New("invalid cache geometry")

// Strategies lists all strategies in declaration order.
func Strategies() []Strategy {
	return []Strategy{StrategyLRU, StrategyLFU, StrategyFirst}
}

// String returns the name used in trace files.
func (s Strategy) String() string {
	switch s {
	case StrategyLRU:
		return "LRU"
	case StrategyLFU:
		return "LFU"
	case StrategyFirst:
		return "First"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts a trace-file token into a Strategy. Matching is
// case-sensitive.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "LRU":
		return StrategyLRU, nil
	case "LFU":
		return StrategyLFU, nil
	case "First":
		return StrategyFirst, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// Descriptor describes the geometry and replacement policy of a cache.
// It is a plain value and is never modified by the simulation.
type Descriptor struct {
	// AddrSize is the address width in bits.
	AddrSize uint64 `json:"addr_size"`
	// BlockSize is the width of the offset field in bits. A block holds
	// 2^BlockSize bytes.
	BlockSize uint64 `json:"block_size"`
	// NumBlocks is the number of physical lines.
	NumBlocks uint64 `json:"n_blocks"`
	// Assoc is the number of lines per set.
	Assoc uint64 `json:"assoc"`
	// Strategy is the replacement policy.
	Strategy Strategy `json:"strategy"`
}

// NumSets returns the number of sets.
func (d Descriptor) NumSets() uint64 {
	return d.NumBlocks / d.Assoc
}

// IndexBits returns the width of the index field, floor(log2(NumSets)).
func (d Descriptor) IndexBits() uint64 {
	n := d.NumSets()
	if n == 0 {
		return 0
	}

	return uint64(bits.Len64(n) - 1)
}

// TagBits returns the width of the tag field. Together with IndexBits and
// BlockSize it partitions the address.
func (d Descriptor) TagBits() uint64 {
	return d.AddrSize - d.BlockSize - d.IndexBits()
}

// Validate checks that the descriptor describes a cache that can be
// simulated.
func (d Descriptor) Validate() error {
	if d.Assoc == 0 {
		return fmt.Errorf("%w: associativity must be > 0", ErrInvalidGeometry)
	}

	if d.NumBlocks == 0 {
		return fmt.Errorf("%w: block count must be > 0", ErrInvalidGeometry)
	}

	if d.NumBlocks%d.Assoc != 0 {
		return fmt.Errorf(
			"%w: block count %d is not a multiple of associativity %d",
			ErrInvalidGeometry, d.NumBlocks, d.Assoc)
	}

	if d.NumBlocks > math.MaxInt {
		return fmt.Errorf("%w: block count %d does not fit a line table",
			ErrInvalidGeometry, d.NumBlocks)
	}

	if d.AddrSize > 64 {
		return fmt.Errorf("%w: address size %d exceeds 64 bits",
			ErrInvalidGeometry, d.AddrSize)
	}

	if d.BlockSize+d.IndexBits() > d.AddrSize {
		return fmt.Errorf(
			"%w: offset (%d bits) and index (%d bits) exceed address size %d",
			ErrInvalidGeometry, d.BlockSize, d.IndexBits(), d.AddrSize)
	}

	switch d.Strategy {
	case StrategyLRU, StrategyLFU, StrategyFirst:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStrategy, d.Strategy)
	}

	return nil
}

// Split decomposes an address into its tag and set index. The offset bits
// are discarded. Address bits above AddrSize are not masked.
func (d Descriptor) Split(addr uint64) (tag, index uint64) {
	idxBits := d.IndexBits()
	index = (addr >> d.BlockSize) & (1<<idxBits - 1)
	tag = addr >> (d.BlockSize + idxBits)

	return tag, index
}

// SetBounds returns the half-open range of line positions that form the set
// with the given index.
func (d Descriptor) SetBounds(index uint64) (lo, hi int) {
	lo = int(index * d.Assoc)
	hi = int((index + 1) * d.Assoc)

	return lo, hi
}

// SetOf returns the set a physical line belongs to.
func (d Descriptor) SetOf(line int) uint64 {
	return uint64(line) / d.Assoc
}
