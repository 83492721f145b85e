package policydiff

import (
	"fmt"
	"strings"
)

// Format renders changes grouped with their direction, loosening changes
// first so a reviewer sees the risk before the cleanup.
func Format(changes []Change) string {
	if len(changes) == 0 {
		return "no changes\n"
	}

	var b strings.Builder
	looser := 0
	for _, dir := range []Direction{Looser, Stricter, Neutral} {
		for _, c := range changes {
			if c.Direction != dir {
				continue
			}
			if dir == Looser {
				looser++
			}
			fmt.Fprintf(&b, "%-8s  %-20s %s\n", strings.ToUpper(string(dir)), c.Section, c.Detail)
		}
	}
	fmt.Fprintf(&b, "%d changes, %d loosening\n", len(changes), looser)
	return b.String()
}
