// Package graph provides a reference, in-memory implementation of
// snapshot.Graph, standing in for the out-of-scope static graph loader in
// tests and examples.
package graph

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gtfs "github.com/OneBusAway/go-gtfs"

	"realtime.onebusaway.org/internal/snapshot"
)

// MemoryGraph is a small, thread-safe, in-memory Graph. It is not meant for
// production use (the real static graph loader is out of scope for this
// module); it exists to give tests and examples something concrete to drive
// snapshot.Source against.
type MemoryGraph struct {
	mu sync.RWMutex

	loc *time.Location

	stops  map[string]snapshot.Stop
	routes map[string]snapshot.Route
	trips  map[string]snapshot.Trip

	patterns map[string]*snapshot.TripPattern // keyed by trip local id

	serviceCodes   map[string]int
	nextService    int
	servicesOnDate map[snapshot.ServiceDate]map[string]bool

	arrivalPool   map[string][]int64
	departurePool map[string][]int64
}

// NewMemoryGraph returns an empty MemoryGraph whose system time zone is loc.
func NewMemoryGraph(loc *time.Location) *MemoryGraph {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryGraph{
		loc:            loc,
		stops:          make(map[string]snapshot.Stop),
		routes:         make(map[string]snapshot.Route),
		trips:          make(map[string]snapshot.Trip),
		patterns:       make(map[string]*snapshot.TripPattern),
		serviceCodes:   make(map[string]int),
		servicesOnDate: make(map[snapshot.ServiceDate]map[string]bool),
		arrivalPool:    make(map[string][]int64),
		departurePool:  make(map[string][]int64),
	}
}

// MockAddStop registers a stop, following the teacher's MockAdd* naming
// convention for test fixtures.
func (g *MemoryGraph) MockAddStop(id, name string) snapshot.Stop {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := &gtfs.Stop{Id: id, Name: name}
	g.stops[id] = s
	return s
}

// MockAddRoute registers a route.
func (g *MemoryGraph) MockAddRoute(id, agencyID, shortName string) snapshot.Route {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := &gtfs.Route{Id: id, Agency: &gtfs.Agency{Id: agencyID}, ShortName: shortName}
	g.routes[id] = r
	return r
}

// MockAddTrip registers a scheduled trip and its base TripPattern, built
// from stopIDs and the given per-stop arrival/departure offsets (seconds
// from service-date midnight). serviceID is assigned an internal service
// code the first time it is seen.
func (g *MemoryGraph) MockAddTrip(tripID, routeID, serviceID string, stopIDs []string, arrivals, departures []int64) snapshot.Trip {
	g.mu.Lock()
	defer g.mu.Unlock()

	route := g.routes[routeID]
	trip := &gtfs.ScheduledTrip{
		ID:      tripID,
		Route:   route,
		Service: &gtfs.Service{Id: serviceID},
	}
	g.trips[tripID] = trip

	code := g.serviceCodeLocked(serviceID)

	stops := make([]snapshot.Stop, len(stopIDs))
	pickup := make([]snapshot.PickupDropoffPolicy, len(stopIDs))
	dropoff := make([]snapshot.PickupDropoffPolicy, len(stopIDs))
	for i, id := range stopIDs {
		stops[i] = g.stops[id]
		if i == 0 {
			dropoff[i] = snapshot.PickupDropoffNone
		}
		if i == len(stopIDs)-1 {
			pickup[i] = snapshot.PickupDropoffNone
		}
	}

	pattern := &snapshot.TripPattern{
		StopPattern: snapshot.StopPattern{Stops: stops, PickupAt: pickup, DropoffAt: dropoff},
		Route:       route,
	}
	pattern.Services = pattern.Services.With(code)
	pattern.ScheduledTimetable = &snapshot.Timetable{
		Pattern: pattern,
		TripTimes: []*snapshot.TripTimes{{
			Trip:        trip,
			ServiceCode: code,
			Arrivals:    arrivals,
			Departures:  departures,
		}},
	}

	g.patterns[tripID] = pattern
	return trip
}

// MockAddServiceOnDate records that serviceID runs on date.
func (g *MemoryGraph) MockAddServiceOnDate(date snapshot.ServiceDate, serviceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.serviceCodeLocked(serviceID)
	set, ok := g.servicesOnDate[date]
	if !ok {
		set = make(map[string]bool)
		g.servicesOnDate[date] = set
	}
	set[serviceID] = true
}

func (g *MemoryGraph) serviceCodeLocked(serviceID string) int {
	if code, ok := g.serviceCodes[serviceID]; ok {
		return code
	}
	code := g.nextService
	g.nextService++
	g.serviceCodes[serviceID] = code
	return code
}

// StopByID implements snapshot.Graph.
func (g *MemoryGraph) StopByID(localID string) (snapshot.Stop, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.stops[localID]
	return s, ok
}

// RouteByID implements snapshot.Graph.
func (g *MemoryGraph) RouteByID(localID string) (snapshot.Route, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.routes[localID]
	return r, ok
}

// TripByID implements snapshot.Graph.
func (g *MemoryGraph) TripByID(localID string) (snapshot.Trip, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.trips[localID]
	return t, ok
}

// AllStops implements snapshot.Graph.
func (g *MemoryGraph) AllStops() []snapshot.Stop {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]snapshot.Stop, 0, len(g.stops))
	for _, s := range g.stops {
		out = append(out, s)
	}
	return out
}

// AllRoutes implements snapshot.Graph.
func (g *MemoryGraph) AllRoutes() []snapshot.Route {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]snapshot.Route, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, r)
	}
	return out
}

// AllTrips implements snapshot.Graph.
func (g *MemoryGraph) AllTrips() []snapshot.Trip {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]snapshot.Trip, 0, len(g.trips))
	for _, t := range g.trips {
		out = append(out, t)
	}
	return out
}

// PatternForTrip implements snapshot.Graph.
func (g *MemoryGraph) PatternForTrip(t snapshot.Trip) (*snapshot.TripPattern, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t == nil {
		return nil, false
	}
	p, ok := g.patterns[t.ID]
	return p, ok
}

// ServiceIDsOnDate implements snapshot.Graph, returning ids sorted
// lexicographically so that a caller adding a trip and picking "an
// arbitrary" running service gets a deterministic result.
func (g *MemoryGraph) ServiceIDsOnDate(date snapshot.ServiceDate) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.servicesOnDate[date]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ServiceCode implements snapshot.Graph.
func (g *MemoryGraph) ServiceCode(serviceID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.serviceCodeLocked(serviceID)
}

// TimeZone implements snapshot.Graph.
func (g *MemoryGraph) TimeZone() *time.Location {
	return g.loc
}

// Deduplicate implements snapshot.Graph by interning arrival/departure
// arrays: an added or modified trip whose offsets exactly match a
// previously seen array reuses that array's backing slice instead of
// allocating a new one, mirroring the memory-saving role of the original
// source's Deduplicator without attempting its full generality.
func (g *MemoryGraph) Deduplicate(times *snapshot.TripTimes) *snapshot.TripTimes {
	g.mu.Lock()
	defer g.mu.Unlock()
	times.Arrivals = internInt64Slice(g.arrivalPool, times.Arrivals)
	times.Departures = internInt64Slice(g.departurePool, times.Departures)
	return times
}

func internInt64Slice(pool map[string][]int64, values []int64) []int64 {
	key := int64SliceKey(values)
	if existing, ok := pool[key]; ok {
		return existing
	}
	pool[key] = values
	return values
}

func int64SliceKey(values []int64) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	return b.String()
}
