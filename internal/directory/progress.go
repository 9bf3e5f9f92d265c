package directory

import "time"

// Progress is the crawl's durable memory: which units are done, which have
// been given up on, and how many consecutive failed attempts each pending
// unit has accumulated. It is loaded once at the start of a run, mutated in
// memory, and saved once at the end.
type Progress struct {
	CompletedUnits []int       `json:"completedUnits"`
	AbandonedUnits []int       `json:"abandonedUnits"`
	FailedAttempts map[int]int `json:"failedAttempts"`
	TotalInserted  int64       `json:"totalInserted"`
	TotalSkipped   int64       `json:"totalSkipped"`
	LastRun        time.Time   `json:"lastRun"`
}

// IsCompleted reports whether the unit has been fully harvested.
func (p *Progress) IsCompleted(unitID int) bool {
	return containsInt(p.CompletedUnits, unitID)
}

// IsAbandoned reports whether the unit has been permanently retired.
func (p *Progress) IsAbandoned(unitID int) bool {
	return containsInt(p.AbandonedUnits, unitID)
}

// MarkCompleted records a successful harvest and clears any failure streak.
// A unit cannot be simultaneously completed and abandoned.
func (p *Progress) MarkCompleted(unitID int) {
	if !containsInt(p.CompletedUnits, unitID) {
		p.CompletedUnits = append(p.CompletedUnits, unitID)
	}
	p.AbandonedUnits = removeInt(p.AbandonedUnits, unitID)
	delete(p.FailedAttempts, unitID)
}

// RecordFailure increments the unit's consecutive-failure count and retires
// the unit once the count reaches maxAttempts. It returns the new count and
// whether the unit was abandoned by this call.
func (p *Progress) RecordFailure(unitID, maxAttempts int) (attempts int, abandoned bool) {
	if p.FailedAttempts == nil {
		p.FailedAttempts = make(map[int]int)
	}
	p.FailedAttempts[unitID]++
	attempts = p.FailedAttempts[unitID]
	if attempts >= maxAttempts {
		if !containsInt(p.AbandonedUnits, unitID) {
			p.AbandonedUnits = append(p.AbandonedUnits, unitID)
		}
		return attempts, true
	}
	return attempts, false
}

// ClearUnit removes all state for a unit, returning it to pending. Used by
// the operator reset command.
func (p *Progress) ClearUnit(unitID int) {
	p.CompletedUnits = removeInt(p.CompletedUnits, unitID)
	p.AbandonedUnits = removeInt(p.AbandonedUnits, unitID)
	delete(p.FailedAttempts, unitID)
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func removeInt(values []int, v int) []int {
	out := values[:0]
	for _, x := range values {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
