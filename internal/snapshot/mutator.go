package snapshot

import (
	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	gtfs "github.com/OneBusAway/go-gtfs"
)

// placeholderAgencyID is the synthetic agency assigned to a route created
// for an added trip whose route id is absent from the static graph.
const placeholderAgencyID = "added-trips"

// addedTripRouteType is the GTFS route_type used for a synthesized route
// when an added trip references a route id absent from the static graph
// (3 == Bus, a reasonable default modality).
const addedTripRouteType = 3

// mutator is the BufferMutator: it applies a validated, classified update
// to buffer. One mutator is constructed per ApplyTripUpdates call, sharing
// the Graph, IdIndex and TripPatternCache for the duration of the batch.
type mutator struct {
	graph  Graph
	buffer *TimetableSnapshot
	idx    *IdIndex
	cache  *TripPatternCache
}

// Apply dispatches tu through Classify and the matching handler. today is
// used as the service date when the update carries no start_date.
func (m *mutator) Apply(tu *gtfsrt.TripUpdate, today ServiceDate) error {
	mustNotNil(tu, "trip update")

	td := tu.GetTrip()
	if td == nil {
		return reject(ReasonUnparseable, "trip update has no trip descriptor")
	}
	tripID := td.GetTripId()
	if tripID == "" {
		return reject(ReasonUnparseable, "trip update has no trip id")
	}

	hasStartDate := td.StartDate != nil
	date := today
	if hasStartDate {
		parsed, err := ParseServiceDate(td.GetStartDate())
		if err != nil {
			return reject(ReasonUnparseable, "invalid start_date %q: %v", td.GetStartDate(), err)
		}
		date = parsed
	}

	switch Classify(tu) {
	case ClassificationScheduled:
		return m.handleScheduledTrip(tu, tripID, date)
	case ClassificationAdded:
		if !hasStartDate {
			return reject(ReasonUnparseable, "added trip %s has no start_date", tripID)
		}
		return m.handleAddedTrip(tu, tripID, td.GetRouteId(), date)
	case ClassificationModified:
		if !hasStartDate {
			return reject(ReasonUnparseable, "modified trip %s has no start_date", tripID)
		}
		return m.handleModifiedTrip(tu, tripID, date)
	case ClassificationCanceled:
		return m.handleCanceledTrip(tripID, date)
	case ClassificationUnscheduled:
		return reject(ReasonUnsupported, "unscheduled trips are not supported")
	default:
		return reject(ReasonUnsupported, "unrecognized classification")
	}
}

func (m *mutator) patternForTripID(tripID string) (*TripPattern, bool) {
	trip, ok := m.idx.TripByLocalID(tripID)
	if !ok {
		return nil, false
	}
	return m.graph.PatternForTrip(trip)
}

func (m *mutator) baseTimetable(pattern *TripPattern, date ServiceDate) *Timetable {
	if t := m.buffer.overlayFor(pattern, date); t != nil {
		return t
	}
	return pattern.ScheduledTimetable
}

// handleScheduledTrip layers the TripUpdate's per-stop deltas onto the
// baseline TripTimes for an existing trip: a scheduled retime.
func (m *mutator) handleScheduledTrip(tu *gtfsrt.TripUpdate, tripID string, date ServiceDate) error {
	pattern, ok := m.patternForTripID(tripID)
	if !ok {
		return reject(ReasonUnknownReference, "no pattern for trip %s", tripID)
	}
	base := m.baseTimetable(pattern, date)
	if base == nil {
		return reject(ReasonUnknownReference, "no scheduled timetable for trip %s on %s", tripID, date)
	}

	midnight, err := date.MidnightEpochSeconds(m.graph.TimeZone())
	if err != nil {
		return reject(ReasonUnparseable, "invalid service date %s: %v", date, err)
	}

	deltas := deltasFromStopTimeUpdates(tu.GetStopTimeUpdate())
	updated, ok := base.CreateUpdatedTripTimes(tripID, deltas, midnight)
	if !ok {
		return reject(ReasonStructuralViolation, "could not layer realtime deltas onto trip %s", tripID)
	}

	m.buffer.update(pattern, updated, date)
	return nil
}

func deltasFromStopTimeUpdates(stus []*gtfsrt.TripUpdate_StopTimeUpdate) []StopTimeDelta {
	out := make([]StopTimeDelta, 0, len(stus))
	for _, stu := range stus {
		d := StopTimeDelta{
			Sequence: stu.StopSequence,
			StopID:   stu.GetStopId(),
			Skipped:  stu.GetScheduleRelationship() == gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED,
		}
		if stu.Arrival != nil {
			d.ArrivalTime = stu.Arrival.Time
		}
		if stu.Departure != nil {
			d.DepartureTime = stu.Departure.Time
		}
		out = append(out, d)
	}
	return out
}

// cancelScheduledTrip clones the base (scheduled) TripTimes for tripID,
// marks it cancelled, and writes it into the overlay. Reports whether a
// scheduled instance was found to cancel.
func (m *mutator) cancelScheduledTrip(tripID string, date ServiceDate) bool {
	pattern, ok := m.patternForTripID(tripID)
	if !ok || pattern.ScheduledTimetable == nil {
		return false
	}
	idx := pattern.ScheduledTimetable.indexOfTrip(tripID)
	if idx < 0 {
		return false
	}
	cloned := pattern.ScheduledTimetable.TripTimes[idx].clone()
	cloned.Canceled = true
	m.buffer.update(pattern, cloned, date)
	return true
}

// cancelPreviouslyAddedTrip consults lastAddedTripPattern for (tripID,
// date); if found, clones that overlay's TripTimes for the trip and marks
// it cancelled. Reports whether a previously-added instance was found.
func (m *mutator) cancelPreviouslyAddedTrip(tripID string, date ServiceDate) bool {
	pattern, ok := m.buffer.lastAddedPattern(tripID, date)
	if !ok {
		return false
	}
	overlay := m.buffer.overlayFor(pattern, date)
	if overlay == nil {
		return false
	}
	idx := overlay.indexOfTrip(tripID)
	if idx < 0 {
		return false
	}
	cloned := overlay.TripTimes[idx].clone()
	cloned.Canceled = true
	m.buffer.update(pattern, cloned, date)
	return true
}

// handleCanceledTrip attempts both cancellation paths; success if either
// one found something to cancel.
func (m *mutator) handleCanceledTrip(tripID string, date ServiceDate) error {
	canceledScheduled := m.cancelScheduledTrip(tripID, date)
	canceledAdded := m.cancelPreviouslyAddedTrip(tripID, date)
	if !canceledScheduled && !canceledAdded {
		return reject(ReasonSemanticConflict, "no scheduled or previously-added trip %s on %s to cancel", tripID, date)
	}
	return nil
}

func (m *mutator) pickServiceID(date ServiceDate) (string, bool) {
	ids := m.graph.ServiceIDsOnDate(date)
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

func (m *mutator) findOrSynthesizeRoute(routeID, tripID string) Route {
	if routeID != "" {
		if r, ok := m.idx.RouteByLocalID(routeID); ok {
			return r
		}
	}
	id := routeID
	if id == "" {
		id = tripID
	}
	return &gtfs.Route{
		Id:       id,
		Agency:   &gtfs.Agency{Id: placeholderAgencyID},
		Type:     gtfs.RouteType(addedTripRouteType),
		LongName: tripID,
	}
}

// handleAddedTrip implements the "add trip" path: find or synthesize a
// Route, pick a service id, run addTripToGraphAndBuffer, and only once that
// has succeeded cancel any previously added instance for (tripID, date) and
// write the new one, so a rejected update leaves the buffer unchanged.
func (m *mutator) handleAddedTrip(tu *gtfsrt.TripUpdate, tripID, routeID string, date ServiceDate) error {
	if _, exists := m.idx.TripByLocalID(tripID); exists {
		return reject(ReasonSemanticConflict, "added trip id %s already exists in the graph", tripID)
	}

	route := m.findOrSynthesizeRoute(routeID, tripID)

	serviceID, ok := m.pickServiceID(date)
	if !ok {
		return reject(ReasonSemanticConflict, "no service id runs on %s", date)
	}
	serviceCode := m.graph.ServiceCode(serviceID)

	trip := &gtfs.ScheduledTrip{ID: tripID, Route: route}

	pattern, times, err := m.addTripToGraphAndBuffer(tu, trip, route, date, serviceCode)
	if err != nil {
		return err
	}

	m.cancelPreviouslyAddedTrip(tripID, date)
	m.buffer.update(pattern, times, date)
	m.buffer.recordLastAdded(tripID, date, pattern)
	return nil
}

// handleModifiedTrip builds the trip under its (possibly new) stop pattern
// and, once that has succeeded, cancels the scheduled instance and any
// previously added instance before writing the new one. A rejected update
// leaves the buffer unchanged.
func (m *mutator) handleModifiedTrip(tu *gtfsrt.TripUpdate, tripID string, date ServiceDate) error {
	baseTrip, ok := m.idx.TripByLocalID(tripID)
	if !ok {
		return reject(ReasonSemanticConflict, "modified trip id %s does not exist in the graph", tripID)
	}
	if !m.serviceRunsOn(baseTrip, date) {
		return reject(ReasonSemanticConflict, "base trip %s's service does not run on %s", tripID, date)
	}

	route := baseTrip.Route
	if route == nil {
		route = m.findOrSynthesizeRoute(tu.GetTrip().GetRouteId(), tripID)
	}

	serviceID, ok := m.pickServiceID(date)
	if !ok {
		return reject(ReasonSemanticConflict, "no service id runs on %s", date)
	}
	serviceCode := m.graph.ServiceCode(serviceID)

	pattern, times, err := m.addTripToGraphAndBuffer(tu, baseTrip, route, date, serviceCode)
	if err != nil {
		return err
	}

	m.cancelScheduledTrip(tripID, date)
	m.cancelPreviouslyAddedTrip(tripID, date)
	m.buffer.update(pattern, times, date)
	m.buffer.recordLastAdded(tripID, date, pattern)
	return nil
}

func (m *mutator) serviceRunsOn(trip Trip, date ServiceDate) bool {
	if trip.Service == nil {
		return false
	}
	for _, id := range m.graph.ServiceIDsOnDate(date) {
		if id == trip.Service.Id {
			return true
		}
	}
	return false
}

// addTripToGraphAndBuffer builds a fresh stop pattern and trip times for
// an added or modified trip: resolve and validate the stop list, convert
// absolute times to midnight-relative offsets, intern the resulting
// StopPattern, grow the pattern's service-code bitset, and deduplicate the
// resulting TripTimes.
func (m *mutator) addTripToGraphAndBuffer(tu *gtfsrt.TripUpdate, trip Trip, route Route, date ServiceDate, serviceCode int) (*TripPattern, *TripTimes, error) {
	resolved, err := ValidateFreshTripStops(m.idx, tu.GetStopTimeUpdate())
	if err != nil {
		return nil, nil, err
	}

	midnight, err := date.MidnightEpochSeconds(m.graph.TimeZone())
	if err != nil {
		return nil, nil, reject(ReasonUnparseable, "invalid service date %s: %v", date, err)
	}

	nonSkipped := 0
	for _, r := range resolved {
		if !r.Skipped {
			nonSkipped++
		}
	}

	var stops []Stop
	var pickupAt, dropoffAt []PickupDropoffPolicy
	var arrivals, departures []int64

	seen := 0
	for _, r := range resolved {
		if r.Skipped {
			continue
		}
		seen++

		var arrival, departure int64
		switch {
		case r.Arrival != nil:
			arrival = *r.Arrival - midnight
		case r.Departure != nil:
			arrival = *r.Departure - midnight
		}
		if r.Departure != nil {
			departure = *r.Departure - midnight
		} else {
			departure = arrival
		}
		if !inServiceDayRange(arrival) || !inServiceDayRange(departure) {
			return nil, nil, reject(ReasonStructuralViolation, "stop time for %s falls outside [0, 48h]", r.StopID)
		}

		pickup := PickupDropoffRegular
		dropoff := PickupDropoffRegular
		if seen == 1 {
			dropoff = PickupDropoffNone
		}
		if seen == nonSkipped {
			pickup = PickupDropoffNone
		}

		stops = append(stops, r.Stop)
		pickupAt = append(pickupAt, pickup)
		dropoffAt = append(dropoffAt, dropoff)
		arrivals = append(arrivals, arrival)
		departures = append(departures, departure)
	}

	if len(stops) < 2 {
		return nil, nil, reject(ReasonStructuralViolation, "fewer than two resolved stops after removing skipped entries")
	}

	stopPattern := StopPattern{Stops: stops, PickupAt: pickupAt, DropoffAt: dropoffAt}
	pattern := m.cache.GetOrCreateTripPattern(stopPattern, route)
	m.buffer.registerDynamicPattern(pattern, route)
	clonePatternServices(pattern, serviceCode)

	times := &TripTimes{
		Trip:        trip,
		ServiceCode: serviceCode,
		Arrivals:    arrivals,
		Departures:  departures,
	}
	times = m.graph.Deduplicate(times)

	return pattern, times, nil
}
