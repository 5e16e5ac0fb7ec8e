package cache

// Access describes what happened to one address of the trace.
type Access struct {
	// Step is the position of the address in the trace.
	Step uint64 `json:"step"`
	// Address is the replayed address.
	Address uint64 `json:"address"`
	// Tag and Set are the decomposed address fields.
	Tag uint64 `json:"tag"`
	Set uint64 `json:"set"`
	// Line is the physical line that served the access.
	Line int `json:"line"`
	// Hit is true if the tag was already cached.
	Hit bool `json:"hit"`
	// Evicted is true if a miss replaced an occupied line. Victim is the
	// entry that was replaced.
	Evicted bool  `json:"evicted"`
	Victim  Entry `json:"victim"`
}

// Option configures a simulation run.
type Option func(*simulator)

// WithObserver registers a function that is called after every access.
func WithObserver(observer func(Access)) Option {
	return func(s *simulator) {
		s.observers = append(s.observers, observer)
	}
}

type simulator struct {
	desc      Descriptor
	lines     []Line
	stats     Statistics
	observers []func(Access)
}

// Simulate replays addrs in order against a cache described by d. It returns
// the history of every physical line and the statistics of the run. Each
// call starts from an empty cache and owns its results.
//
// Simulate panics if d does not pass Validate.
func Simulate(d Descriptor, addrs []uint64, opts ...Option) ([]Line, Statistics) {
	if err := d.Validate(); err != nil {
		panic(err)
	}

	s := &simulator{
		desc:  d,
		lines: make([]Line, int(d.NumBlocks)),
	}

	for _, opt := range opts {
		opt(s)
	}

	for i, addr := range addrs {
		s.access(uint64(i), addr)
	}

	return s.lines, s.stats
}

func (s *simulator) access(step, addr uint64) {
	tag, index := s.desc.Split(addr)
	lo, hi := s.desc.SetBounds(index)
	set := s.lines[lo:hi]

	access := Access{
		Step:    step,
		Address: addr,
		Tag:     tag,
		Set:     index,
	}

	if way, ok := lookup(set, tag); ok {
		entry := set[way].current()
		entry.CountUsed++
		entry.LastUsed = step
		s.stats.HitCount++

		access.Line = lo + way
		access.Hit = true
		s.notify(access)

		return
	}

	s.stats.MissCount++

	way := s.findVictim(set)
	if victim, ok := set[way].Current(); ok {
		s.stats.EvictionCount++
		access.Evicted = true
		access.Victim = victim
	}

	set[way] = append(set[way], Entry{
		Tag:       tag,
		Entered:   step,
		LastUsed:  step,
		CountUsed: 1,
	})

	access.Line = lo + way
	s.notify(access)
}

func (s *simulator) notify(access Access) {
	for _, observer := range s.observers {
		observer(access)
	}
}

// lookup returns the first way of the set whose occupant holds tag.
func lookup(set []Line, tag uint64) (int, bool) {
	for way, line := range set {
		if entry, ok := line.Current(); ok && entry.Tag == tag {
			return way, true
		}
	}

	return 0, false
}
