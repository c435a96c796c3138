// Package snapshot implements the realtime timetable snapshot engine: the
// validator, classifier, working buffer, copy-on-write commit protocol, and
// trip-pattern cache that sit between a stream of GTFS-Realtime TripUpdate
// messages and the read-only snapshots consumed by route planning.
package snapshot

import "time"

// Identifier is a (feedID, localID) pair. The core resolves references by
// the bare localID; feedID is carried for future multi-feed support but is
// not consulted by lookups today; this is a known limitation of the
// single-feed-in-mind design, to be revisited if multi-feed matters.
type Identifier struct {
	FeedID  string
	LocalID string
}

// ServiceDate is a civil date in YYYYMMDD form, matching GTFS-Realtime's
// TripDescriptor.start_date encoding. Comparisons are lexicographic, which
// is correct because the representation is fixed-width and zero-padded.
type ServiceDate string

// NewServiceDate formats t (interpreted in its own location) as a ServiceDate.
func NewServiceDate(t time.Time) ServiceDate {
	return ServiceDate(t.Format("20060102"))
}

// ParseServiceDate parses a YYYYMMDD string as used on the wire.
func ParseServiceDate(s string) (ServiceDate, error) {
	if _, err := time.Parse("20060102", s); err != nil {
		return "", err
	}
	return ServiceDate(s), nil
}

// Time returns the civil midnight instant of d in loc.
func (d ServiceDate) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("20060102", string(d), loc)
}

// MidnightEpochSeconds returns the Unix timestamp of civil midnight for d in loc.
func (d ServiceDate) MidnightEpochSeconds(loc *time.Location) (int64, error) {
	t, err := d.Time(loc)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// Previous returns the civil date one day before d.
func (d ServiceDate) Previous(loc *time.Location) ServiceDate {
	t, err := d.Time(loc)
	if err != nil {
		return d
	}
	return NewServiceDate(t.AddDate(0, 0, -1))
}

// Before reports whether d is strictly earlier than other.
func (d ServiceDate) Before(other ServiceDate) bool {
	return string(d) < string(other)
}

// String implements fmt.Stringer.
func (d ServiceDate) String() string {
	return string(d)
}
