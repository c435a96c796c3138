package snapshot

import (
	"strconv"
	"strings"

	gtfs "github.com/OneBusAway/go-gtfs"
)

// Stop, Route and Trip are non-owning references to static-graph entities.
// The core never mutates them; a synthesized Route or Trip for an added trip
// is a freshly constructed value owned by the working buffer.
type (
	Stop  = *gtfs.Stop
	Route = *gtfs.Route
	Trip  = *gtfs.ScheduledTrip
)

// PickupDropoffPolicy mirrors the GTFS pickup_type/drop_off_type vocabulary.
type PickupDropoffPolicy int

const (
	PickupDropoffRegular PickupDropoffPolicy = iota
	PickupDropoffNone
	PickupDropoffPhoneAgency
	PickupDropoffCoordinateWithDriver
)

// StopPattern is the ordered sequence of stops a trip traverses, together
// with the per-stop pickup/dropoff policy. Equality is structural and forms
// the interning key used by TripPatternCache.
type StopPattern struct {
	Stops     []Stop
	PickupAt  []PickupDropoffPolicy
	DropoffAt []PickupDropoffPolicy
}

// key returns a string uniquely identifying the structural shape of p, used
// as the TripPatternCache map key. Two StopPatterns with the same stop ids
// and pickup/dropoff policies in the same order produce the same key.
func (p StopPattern) key() string {
	var b strings.Builder
	for i, s := range p.Stops {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(stopLocalID(s))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(p.PickupAt[i])))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(p.DropoffAt[i])))
	}
	return b.String()
}

func stopLocalID(s Stop) string {
	if s == nil {
		return ""
	}
	return s.Id
}

func routeLocalID(r Route) string {
	if r == nil {
		return ""
	}
	return r.Id
}

func tripLocalID(t Trip) string {
	if t == nil {
		return ""
	}
	return t.ID
}

// ServiceSet is a copy-on-write bitset of service codes. Readers traversing
// a published TripPattern's Services must never observe a mutation; every
// write produces a new backing slice.
type ServiceSet []uint64

// Has reports whether code is present in s.
func (s ServiceSet) Has(code int) bool {
	word := code / 64
	if word < 0 || word >= len(s) {
		return false
	}
	return s[word]&(uint64(1)<<uint(code%64)) != 0
}

// With returns a ServiceSet containing every code in s plus code. If code is
// already present, s is returned unchanged (no allocation). Otherwise a new,
// possibly longer, slice is allocated and the original is left untouched.
func (s ServiceSet) With(code int) ServiceSet {
	if s.Has(code) {
		return s
	}
	word := code / 64
	out := make(ServiceSet, max(word+1, len(s)))
	copy(out, s)
	out[word] |= uint64(1) << uint(code%64)
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// TripPattern owns an immutable (post graph-load) scheduled Timetable and a
// copy-on-write bitset of the service codes it runs on. Dynamically created
// patterns (from added/modified trips) start with a nil ScheduledTimetable
// and an empty Services set. Services grows as trips are added; the
// ScheduledTimetable stays nil, and their trips live only in buffer overlays.
type TripPattern struct {
	StopPattern        StopPattern
	Route              Route
	ScheduledTimetable *Timetable
	Services           ServiceSet
}

// positionForDelta resolves a StopTimeDelta against p's stop pattern,
// preferring an explicit stop id match and falling back to a 1-based
// stop_sequence. Returns -1 if the delta cannot be resolved.
func (p *TripPattern) positionForDelta(d StopTimeDelta) int {
	if d.StopID != "" {
		for i, s := range p.StopPattern.Stops {
			if stopLocalID(s) == d.StopID {
				return i
			}
		}
		return -1
	}
	if d.Sequence != nil {
		pos := int(*d.Sequence) - 1
		if pos >= 0 && pos < len(p.StopPattern.Stops) {
			return pos
		}
	}
	return -1
}

// TripTimes holds one trip's per-stop arrival/departure offsets (seconds
// from the service date's midnight), its service code, and a cancellation
// flag. Arrivals and departures must be non-decreasing and lie in
// [0, 48*3600].
type TripTimes struct {
	Trip        Trip
	ServiceCode int
	Arrivals    []int64
	Departures  []int64
	Canceled    bool
}

// clone returns a deep-enough copy of t: a new TripTimes value with freshly
// allocated Arrivals/Departures backing arrays, safe to mutate without
// affecting t.
func (t *TripTimes) clone() *TripTimes {
	out := &TripTimes{
		Trip:        t.Trip,
		ServiceCode: t.ServiceCode,
		Canceled:    t.Canceled,
	}
	out.Arrivals = append([]int64(nil), t.Arrivals...)
	out.Departures = append([]int64(nil), t.Departures...)
	return out
}

// StopTimeDelta is a per-stop realtime adjustment layered onto a scheduled
// baseline by Timetable.CreateUpdatedTripTimes. Added and modified trips
// build their TripTimes from ResolvedStop entries instead.
type StopTimeDelta struct {
	Sequence      *uint32
	StopID        string
	ArrivalTime   *int64 // absolute POSIX seconds
	DepartureTime *int64 // absolute POSIX seconds
	Skipped       bool
}

// Timetable is a TripPattern's collection of TripTimes for one service
// date: either the immutable scheduled timetable or a realtime overlay.
type Timetable struct {
	Pattern     *TripPattern
	ServiceDate ServiceDate
	TripTimes   []*TripTimes
}

func (t *Timetable) indexOfTrip(localID string) int {
	for i, tt := range t.TripTimes {
		if tripLocalID(tt.Trip) == localID {
			return i
		}
	}
	return -1
}

// withReplacedOrAppended returns a new Timetable sharing base's Pattern and
// ServiceDate but with a fresh TripTimes slice: times replaces any existing
// entry for the same trip, or is appended. base may be nil, in which case
// the result contains only times.
func withReplacedOrAppended(pattern *TripPattern, date ServiceDate, base *Timetable, times *TripTimes) *Timetable {
	out := &Timetable{Pattern: pattern, ServiceDate: date}
	if base != nil {
		out.TripTimes = append(out.TripTimes, base.TripTimes...)
	}
	if idx := out.indexOfTrip(tripLocalID(times.Trip)); idx >= 0 {
		out.TripTimes[idx] = times
	} else {
		out.TripTimes = append(out.TripTimes, times)
	}
	return out
}

// CreateUpdatedTripTimes layers deltas onto the baseline TripTimes for
// tripLocalID within t, returning a new TripTimes. It declines (returns
// false) if the trip is absent, a delta cannot be resolved against the
// pattern, or the result would violate arrival/departure monotonicity.
func (t *Timetable) CreateUpdatedTripTimes(tripLocalID string, deltas []StopTimeDelta, midnight int64) (*TripTimes, bool) {
	idx := t.indexOfTrip(tripLocalID)
	if idx < 0 {
		return nil, false
	}
	base := t.TripTimes[idx]
	updated := base.clone()

	for _, d := range deltas {
		if d.Skipped {
			continue
		}
		pos := t.Pattern.positionForDelta(d)
		if pos < 0 || pos >= len(updated.Arrivals) {
			return nil, false
		}
		if d.ArrivalTime != nil {
			updated.Arrivals[pos] = *d.ArrivalTime - midnight
		}
		if d.DepartureTime != nil {
			updated.Departures[pos] = *d.DepartureTime - midnight
		}
	}

	if !nonDecreasing(updated.Arrivals) || !nonDecreasing(updated.Departures) {
		return nil, false
	}
	return updated, true
}

func nonDecreasing(values []int64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}

const maxServiceDaySeconds = 48 * 3600

func inServiceDayRange(seconds int64) bool {
	return seconds >= 0 && seconds <= maxServiceDaySeconds
}
