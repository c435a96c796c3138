package snapshot

import "time"

// PurgePolicy drops realtime overlay rows whose service date has fallen
// behind a sliding cutoff, and any dynamically created pattern that becomes
// unreferenced as a result.
type PurgePolicy struct {
	// lastCutoff is the most recent cutoff a purge actually ran for. A
	// later call whose computed cutoff is no more recent is skipped.
	lastCutoff ServiceDate
	hasRun     bool
}

// CutoffFor computes cutoff = today.previous().previous(): two days back,
// a cushion against time-zone skew.
func CutoffFor(today ServiceDate, loc *time.Location) ServiceDate {
	return today.Previous(loc).Previous(loc)
}

// Run purges b in place if a purge for this cutoff (or a more recent one)
// has not already happened. It reports whether anything was removed, which
// the caller uses to force an immediate commit.
func (p *PurgePolicy) Run(b *TimetableSnapshot, cutoff ServiceDate) (removed int, ran bool) {
	if p.hasRun && !p.lastCutoff.Before(cutoff) {
		return 0, false
	}

	b.requireMutable()

	for key := range b.overlays {
		if key.Date.Before(cutoff) {
			delete(b.overlays, key)
			removed++
		}
	}
	for key := range b.lastAdded {
		if key.Date.Before(cutoff) {
			delete(b.lastAdded, key)
		}
	}

	removed += p.purgeUnreferencedPatterns(b)

	p.hasRun = true
	p.lastCutoff = cutoff
	if removed > 0 {
		b.dirty = true
	}
	return removed, true
}

func (p *PurgePolicy) purgeUnreferencedPatterns(b *TimetableSnapshot) int {
	referenced := make(map[*TripPattern]bool, len(b.dynamicPatterns))
	for key := range b.overlays {
		referenced[key.Pattern] = true
	}
	for _, pattern := range b.lastAdded {
		referenced[pattern] = true
	}

	removed := 0
	for pattern := range b.dynamicPatterns {
		if !referenced[pattern] {
			delete(b.dynamicPatterns, pattern)
			removed++
		}
	}
	return removed
}
