package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatLine renders the history of a line as
// "<set> | <tag> (<entered>) | ...", or "<set> | -" for a line that was never
// occupied. Tags are printed in lowercase hexadecimal.
func FormatLine(line Line, set uint64) string {
	var b strings.Builder

	b.WriteString(strconv.FormatUint(set, 10))

	if line.Empty() {
		b.WriteString(" | -")
		return b.String()
	}

	for _, e := range line {
		fmt.Fprintf(&b, " | %x (%d)", e.Tag, e.Entered)
	}

	return b.String()
}

// FormatTable renders every line of a simulation result in physical order.
// The set shown for a line is its position divided by the associativity.
func FormatTable(d Descriptor, lines []Line) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = FormatLine(line, d.SetOf(i))
	}

	return out
}

// Summary renders the statistics line printed after the table. n is the
// number of replayed addresses.
func Summary(stats Statistics, n int) string {
	return fmt.Sprintf("Hits: %d/%d. Misses: %d/%d. Evictions: %d/%d.",
		stats.Hits(), n, stats.Misses(), n, stats.Evictions(), n)
}
