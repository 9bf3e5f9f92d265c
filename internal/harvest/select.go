package harvest

import (
	"sort"

	"github.com/preintake/harvester/internal/directory"
)

// SelectNext picks the lowest-rank unit that is still pending: neither
// completed nor permanently abandoned. ok is false when nothing is
// eligible.
func SelectNext(units []directory.WorkUnit, progress directory.Progress) (directory.WorkUnit, bool) {
	ordered := append([]directory.WorkUnit(nil), units...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})
	for _, u := range ordered {
		if progress.IsCompleted(u.ID) || progress.IsAbandoned(u.ID) {
			continue
		}
		return u, true
	}
	return directory.WorkUnit{}, false
}

// Remaining counts units that are still pending.
func Remaining(units []directory.WorkUnit, progress directory.Progress) int {
	n := 0
	for _, u := range units {
		if !progress.IsCompleted(u.ID) && !progress.IsAbandoned(u.ID) {
			n++
		}
	}
	return n
}
