package snapshot

import "time"

// fakeGraph is a minimal, hand-rolled Graph double used by tests in this
// package that need a collaborator but not the full internal/graph.MemoryGraph
// machinery (which would pull this package in as a test dependency of
// itself).
type fakeGraph struct {
	stops    map[string]Stop
	routes   map[string]Route
	trips    map[string]Trip
	patterns map[string]*TripPattern

	serviceCodes map[string]int
	onDate       map[ServiceDate][]string

	loc *time.Location

	dedupCalls int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		stops:        make(map[string]Stop),
		routes:       make(map[string]Route),
		trips:        make(map[string]Trip),
		patterns:     make(map[string]*TripPattern),
		serviceCodes: make(map[string]int),
		onDate:       make(map[ServiceDate][]string),
		loc:          time.UTC,
	}
}

func (g *fakeGraph) StopByID(id string) (Stop, bool)   { s, ok := g.stops[id]; return s, ok }
func (g *fakeGraph) RouteByID(id string) (Route, bool) { r, ok := g.routes[id]; return r, ok }
func (g *fakeGraph) TripByID(id string) (Trip, bool)   { tr, ok := g.trips[id]; return tr, ok }

func (g *fakeGraph) AllStops() []Stop {
	out := make([]Stop, 0, len(g.stops))
	for _, s := range g.stops {
		out = append(out, s)
	}
	return out
}

func (g *fakeGraph) AllRoutes() []Route {
	out := make([]Route, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, r)
	}
	return out
}

func (g *fakeGraph) AllTrips() []Trip {
	out := make([]Trip, 0, len(g.trips))
	for _, tr := range g.trips {
		out = append(out, tr)
	}
	return out
}

func (g *fakeGraph) PatternForTrip(t Trip) (*TripPattern, bool) {
	if t == nil {
		return nil, false
	}
	p, ok := g.patterns[tripLocalID(t)]
	return p, ok
}

func (g *fakeGraph) ServiceIDsOnDate(date ServiceDate) []string {
	return g.onDate[date]
}

func (g *fakeGraph) ServiceCode(serviceID string) int {
	if code, ok := g.serviceCodes[serviceID]; ok {
		return code
	}
	code := len(g.serviceCodes)
	g.serviceCodes[serviceID] = code
	return code
}

func (g *fakeGraph) TimeZone() *time.Location { return g.loc }

func (g *fakeGraph) Deduplicate(times *TripTimes) *TripTimes {
	g.dedupCalls++
	return times
}
