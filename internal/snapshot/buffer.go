package snapshot

// overlayKey identifies one (pattern, date) overlay entry: a
// "(TripPattern, ServiceDate) -> Timetable" mapping. Patterns are interned
// by TripPatternCache, so pointer identity is structural identity.
type overlayKey struct {
	Pattern *TripPattern
	Date    ServiceDate
}

// lastAddedKey identifies the most recently added/modified trip on a date.
type lastAddedKey struct {
	TripLocalID string
	Date        ServiceDate
}

// TimetableSnapshot is the shape shared by the working buffer and every
// published snapshot. A committed TimetableSnapshot rejects all mutations;
// the working buffer has committed == false.
type TimetableSnapshot struct {
	overlays  map[overlayKey]*Timetable
	lastAdded map[lastAddedKey]*TripPattern
	// dynamicPatterns maps a dynamically created TripPattern to the Route
	// it was registered under, needed to identify unreferenced patterns
	// during purge.
	dynamicPatterns map[*TripPattern]Route

	dirty     bool
	committed bool
}

// newBuffer returns an empty, mutable working buffer.
func newBuffer() *TimetableSnapshot {
	return &TimetableSnapshot{
		overlays:        make(map[overlayKey]*Timetable),
		lastAdded:       make(map[lastAddedKey]*TripPattern),
		dynamicPatterns: make(map[*TripPattern]Route),
	}
}

// requireMutable panics if called on a committed (published) snapshot; every
// mutation path in this package must go through the working buffer, never a
// published TimetableSnapshot.
func (b *TimetableSnapshot) requireMutable() {
	if b.committed {
		panic("snapshot: attempted to mutate a committed snapshot")
	}
}

// clear resets the buffer to empty, used for full-dataset batches.
func (b *TimetableSnapshot) clear() {
	b.requireMutable()
	b.overlays = make(map[overlayKey]*Timetable)
	b.lastAdded = make(map[lastAddedKey]*TripPattern)
	b.dynamicPatterns = make(map[*TripPattern]Route)
	b.dirty = true
}

// overlayFor returns the current overlay Timetable for (pattern, date), or
// nil if none exists yet.
func (b *TimetableSnapshot) overlayFor(pattern *TripPattern, date ServiceDate) *Timetable {
	return b.overlays[overlayKey{pattern, date}]
}

// update inserts or replaces times within the (pattern, date) overlay,
// copy-on-write: readers holding the previous *Timetable value are
// unaffected, because a fresh Timetable and TripTimes slice is always
// allocated.
func (b *TimetableSnapshot) update(pattern *TripPattern, times *TripTimes, date ServiceDate) {
	b.requireMutable()
	base := b.overlayFor(pattern, date)
	if base == nil {
		base = pattern.ScheduledTimetable
	}
	b.overlays[overlayKey{pattern, date}] = withReplacedOrAppended(pattern, date, base, times)
	b.dirty = true
}

// recordLastAdded remembers pattern as the most recent added/modified trip
// with tripLocalID on date, so a later cancellation or re-modification of
// the same trip can find the pattern it needs to cancel.
func (b *TimetableSnapshot) recordLastAdded(tripLocalID string, date ServiceDate, pattern *TripPattern) {
	b.requireMutable()
	b.lastAdded[lastAddedKey{tripLocalID, date}] = pattern
	b.dirty = true
}

// lastAddedPattern returns the pattern most recently registered by
// recordLastAdded for (tripLocalID, date), if any.
func (b *TimetableSnapshot) lastAddedPattern(tripLocalID string, date ServiceDate) (*TripPattern, bool) {
	p, ok := b.lastAdded[lastAddedKey{tripLocalID, date}]
	return p, ok
}

// registerDynamicPattern records that pattern (created by TripPatternCache
// for an added/modified trip) belongs to route, so purge can later tell
// whether it is still referenced.
func (b *TimetableSnapshot) registerDynamicPattern(pattern *TripPattern, route Route) {
	b.requireMutable()
	if _, known := b.dynamicPatterns[pattern]; !known {
		b.dynamicPatterns[pattern] = route
		b.dirty = true
	}
}

// clonePatternServices performs copy-on-write bitset growth: if pattern's
// Services lacks serviceCode, pattern.Services is replaced by a clone with
// that code set. Concurrent readers that captured the old ServiceSet value
// are unaffected.
func clonePatternServices(pattern *TripPattern, serviceCode int) {
	if !pattern.Services.Has(serviceCode) {
		pattern.Services = pattern.Services.With(serviceCode)
	}
}

// commit freezes b into a new immutable TimetableSnapshot via a shallow
// clone of the top-level maps (Timetables and TripPatterns beneath them are
// shared, since they are themselves copy-on-write) and clears the dirty
// flag on the working buffer. b remains the mutable buffer; the returned
// value is the publishable snapshot.
func (b *TimetableSnapshot) commit() *TimetableSnapshot {
	frozen := &TimetableSnapshot{
		overlays:        cloneOverlayMap(b.overlays),
		lastAdded:       cloneLastAddedMap(b.lastAdded),
		dynamicPatterns: cloneDynamicPatternsMap(b.dynamicPatterns),
		committed:       true,
	}
	b.dirty = false
	return frozen
}

func cloneOverlayMap(m map[overlayKey]*Timetable) map[overlayKey]*Timetable {
	out := make(map[overlayKey]*Timetable, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneLastAddedMap(m map[lastAddedKey]*TripPattern) map[lastAddedKey]*TripPattern {
	out := make(map[lastAddedKey]*TripPattern, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneDynamicPatternsMap(m map[*TripPattern]Route) map[*TripPattern]Route {
	out := make(map[*TripPattern]Route, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// OverlayTimetable returns the published overlay Timetable for (pattern,
// date), if any. Exposed for readers (tests, planners) consuming a
// published snapshot.
func (s *TimetableSnapshot) OverlayTimetable(pattern *TripPattern, date ServiceDate) (*Timetable, bool) {
	t, ok := s.overlays[overlayKey{pattern, date}]
	return t, ok
}

// LastAddedPattern returns the pattern most recently added/modified for
// (tripLocalID, date) in this published snapshot.
func (s *TimetableSnapshot) LastAddedPattern(tripLocalID string, date ServiceDate) (*TripPattern, bool) {
	p, ok := s.lastAdded[lastAddedKey{tripLocalID, date}]
	return p, ok
}

// Dirty reports whether the buffer has unpublished changes. Meaningless on
// a committed snapshot (always false).
func (s *TimetableSnapshot) Dirty() bool {
	return s.dirty
}
