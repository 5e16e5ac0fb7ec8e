package cache

// Statistics holds the counters of one simulation run.
type Statistics struct {
	HitCount      uint64 `json:"hits"`
	MissCount     uint64 `json:"misses"`
	EvictionCount uint64 `json:"evictions"`
}

// Hits returns the number of accesses that found their tag in the set.
func (s Statistics) Hits() uint64 {
	return s.HitCount
}

// Misses returns the number of accesses that had to insert a new entry.
func (s Statistics) Misses() uint64 {
	return s.MissCount
}

// Evictions returns the number of misses that replaced an occupied line.
func (s Statistics) Evictions() uint64 {
	return s.EvictionCount
}

// Accesses returns the number of replayed addresses.
func (s Statistics) Accesses() uint64 {
	return s.HitCount + s.MissCount
}

// HitRate returns hits divided by accesses, or 0 for an empty run.
func (s Statistics) HitRate() float64 {
	if s.Accesses() == 0 {
		return 0
	}

	return float64(s.HitCount) / float64(s.Accesses())
}
