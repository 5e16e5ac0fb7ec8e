package cache

// Entry records one occupancy of a cache line.
type Entry struct {
	// Tag is the tag field of the address that was inserted.
	Tag uint64 `json:"tag"`
	// Entered is the step at which the entry was inserted.
	Entered uint64 `json:"entered"`
	// LastUsed is the step of the most recent access to the entry.
	LastUsed uint64 `json:"last_used"`
	// CountUsed is the number of accesses since insertion, the insertion
	// included.
	CountUsed uint64 `json:"count_used"`
}

// Line is the history of one physical cache line. Entries are only ever
// appended; the last entry is the current occupant.
type Line []Entry

// Empty reports whether the line has never been occupied.
func (l Line) Empty() bool {
	return len(l) == 0
}

// Current returns the current occupant of the line.
func (l Line) Current() (Entry, bool) {
	if len(l) == 0 {
		return Entry{}, false
	}

	return l[len(l)-1], true
}

// current returns a pointer to the occupant so that hits can update it in
// place. The line must not be empty.
func (l Line) current() *Entry {
	return &l[len(l)-1]
}
