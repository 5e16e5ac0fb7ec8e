package cache

import "fmt"

// findVictim picks the way of the set that receives a missing block.
//
// LRU and LFU prefer the first empty way. Once the set is full they take the
// first way holding the minimum key, so ties go to the lowest way. First
// always targets way 0, empty or not.
func (s *simulator) findVictim(set []Line) int {
	switch s.desc.Strategy {
	case StrategyFirst:
		return 0
	case StrategyLRU:
		return emptyOrMin(set, func(e Entry) uint64 { return e.LastUsed })
	case StrategyLFU:
		return emptyOrMin(set, func(e Entry) uint64 { return e.CountUsed })
	default:
		panic(fmt.Sprintf("unknown strategy %s", s.desc.Strategy))
	}
}

func emptyOrMin(set []Line, key func(Entry) uint64) int {
	for way, line := range set {
		if line.Empty() {
			return way
		}
	}

	victim := 0
	minKey := key(*set[0].current())

	for way := 1; way < len(set); way++ {
		if k := key(*set[way].current()); k < minKey {
			victim = way
			minKey = k
		}
	}

	return victim
}
