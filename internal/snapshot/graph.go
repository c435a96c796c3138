package snapshot

import (
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// Graph is the collaborator contract for the static graph loader (out of
// scope for this module; internal/graph.MemoryGraph is a reference
// implementation used by tests). Defined here, at the point of use, rather
// than in internal/graph, so that internal/graph can depend on snapshot's
// types without an import cycle.
type Graph interface {
	StopByID(localID string) (Stop, bool)
	RouteByID(localID string) (Route, bool)
	TripByID(localID string) (Trip, bool)
	AllStops() []Stop
	AllRoutes() []Route
	AllTrips() []Trip
	PatternForTrip(t Trip) (*TripPattern, bool)
	// ServiceIDsOnDate returns every service id running on date, sorted
	// lexicographically so callers that must deterministically pick "any"
	// running service id get reproducible results.
	ServiceIDsOnDate(date ServiceDate) []string
	ServiceCode(serviceID string) int
	TimeZone() *time.Location
	// Deduplicate normalizes a freshly constructed TripTimes against graph
	// conventions (e.g. collapsing redundant arrival/departure pairs). The
	// core calls it once per added/modified trip; out of scope
	// implementations may return times unchanged.
	Deduplicate(times *TripTimes) *TripTimes
}

// FuzzyTripMatcher repairs a partial trip descriptor before classification.
// Optional; applied unconditionally when configured and the incoming
// TripUpdate carries a Trip descriptor.
type FuzzyTripMatcher interface {
	Match(feedID string, trip *gtfsrt.TripDescriptor) *gtfsrt.TripDescriptor
}
