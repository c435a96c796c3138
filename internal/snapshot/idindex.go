package snapshot

import (
	"log/slog"

	"realtime.onebusaway.org/internal/logging"
)

// IdIndex holds three secondary maps (stop, route, trip) from bare local id
// to entity, built lazily on first request and never invalidated: the base
// graph is immutable once loaded. Duplicate bare ids are logged and the
// last occurrence (in Graph.AllStops/AllRoutes/AllTrips iteration order)
// wins.
type IdIndex struct {
	stops  map[string]Stop
	routes map[string]Route
	trips  map[string]Trip
}

// buildIdIndex constructs an IdIndex over g. Called once per Graph instance
// under the writer lock; the result is cached and reused across batches
// until a new Graph is supplied.
func buildIdIndex(g Graph, logger *slog.Logger) *IdIndex {
	idx := &IdIndex{
		stops:  make(map[string]Stop),
		routes: make(map[string]Route),
		trips:  make(map[string]Trip),
	}

	for _, s := range g.AllStops() {
		id := stopLocalID(s)
		if _, dup := idx.stops[id]; dup {
			logging.LogOperation(logger, "duplicate_bare_stop_id_last_occurrence_wins", slog.String("stop_id", id))
		}
		idx.stops[id] = s
	}
	for _, r := range g.AllRoutes() {
		id := routeLocalID(r)
		if _, dup := idx.routes[id]; dup {
			logging.LogOperation(logger, "duplicate_bare_route_id_last_occurrence_wins", slog.String("route_id", id))
		}
		idx.routes[id] = r
	}
	for _, t := range g.AllTrips() {
		id := tripLocalID(t)
		if _, dup := idx.trips[id]; dup {
			logging.LogOperation(logger, "duplicate_bare_trip_id_last_occurrence_wins", slog.String("trip_id", id))
		}
		idx.trips[id] = t
	}

	return idx
}

// StopByLocalID looks up a stop by its bare local id.
func (idx *IdIndex) StopByLocalID(id string) (Stop, bool) {
	s, ok := idx.stops[id]
	return s, ok
}

// RouteByLocalID looks up a route by its bare local id.
func (idx *IdIndex) RouteByLocalID(id string) (Route, bool) {
	r, ok := idx.routes[id]
	return r, ok
}

// TripByLocalID looks up a trip by its bare local id.
func (idx *IdIndex) TripByLocalID(id string) (Trip, bool) {
	t, ok := idx.trips[id]
	return t, ok
}
