package snapshot

import (
	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// ResolvedStop is one entry of a validated fresh-trip stop list. Stop is nil
// when the entry is a SKIPPED hole.
type ResolvedStop struct {
	Stop      Stop
	StopID    string
	Skipped   bool
	Sequence  *uint32
	Arrival   *int64
	Departure *int64
}

// ValidateFreshTripStops implements the fresh-trip validation path, used by
// both ADDED and MODIFIED updates (the latter for the new stop pattern a
// skipped/added stop implies). It resolves stop ids via idx, checks stop
// sequence and arrival/departure monotonicity with a cursor shared between
// arrival and departure readings, and enforces the prefix/suffix exemptions
// for missing times around skipped stops.
func ValidateFreshTripStops(idx *IdIndex, stus []*gtfsrt.TripUpdate_StopTimeUpdate) ([]ResolvedStop, error) {
	if len(stus) < 2 {
		return nil, reject(ReasonStructuralViolation, "fewer than two stop-time updates")
	}

	resolved := make([]ResolvedStop, 0, len(stus))
	var lastSeq *uint32
	var cursor *int64

	for i, stu := range stus {
		skipped := stu.GetScheduleRelationship() == gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED

		var stop Stop
		stopID := stu.GetStopId()
		if !skipped {
			if stu.StopId == nil {
				return nil, reject(ReasonUnknownReference, "stop-time update %d has no stop id", i)
			}
			var ok bool
			stop, ok = idx.StopByLocalID(stopID)
			if !ok {
				return nil, reject(ReasonUnknownReference, "unknown stop id %q", stopID)
			}
		}

		if stu.StopSequence != nil {
			seq := stu.GetStopSequence()
			if lastSeq != nil && seq < *lastSeq {
				return nil, reject(ReasonStructuralViolation, "stop sequence decreased at index %d", i)
			}
			lastSeq = &seq
		}

		var arrival, departure *int64
		if stu.Arrival != nil && stu.Arrival.Time != nil {
			arrival = stu.Arrival.Time
		}
		if stu.Departure != nil && stu.Departure.Time != nil {
			departure = stu.Departure.Time
		}

		if err := advanceCursor(&cursor, arrival); err != nil {
			return nil, reject(ReasonStructuralViolation, "arrival time non-monotone at index %d: %v", i, err)
		}
		if err := advanceCursor(&cursor, departure); err != nil {
			return nil, reject(ReasonStructuralViolation, "departure time non-monotone at index %d: %v", i, err)
		}

		resolved = append(resolved, ResolvedStop{
			Stop:      stop,
			StopID:    stopID,
			Skipped:   skipped,
			Sequence:  stu.StopSequence,
			Arrival:   arrival,
			Departure: departure,
		})
	}

	if err := checkMissingArrivalPrefix(resolved); err != nil {
		return nil, err
	}
	if err := checkMissingDepartureSuffix(resolved); err != nil {
		return nil, err
	}

	return resolved, nil
}

func advanceCursor(cursor **int64, reading *int64) error {
	if reading == nil {
		return nil
	}
	if *cursor != nil && *reading < **cursor {
		return errStopTimeDecreased
	}
	*cursor = reading
	return nil
}

var errStopTimeDecreased = errNonMonotone{}

type errNonMonotone struct{}

func (errNonMonotone) Error() string { return "time decreased relative to an earlier stop" }

// checkMissingArrivalPrefix enforces: a missing arrival is permitted only if
// every earlier non-skipped stop is also missing an arrival, i.e. only a
// leading prefix may lack arrival times.
func checkMissingArrivalPrefix(resolved []ResolvedStop) error {
	seenArrival := false
	for i, r := range resolved {
		if r.Skipped {
			continue
		}
		if r.Arrival == nil {
			if seenArrival {
				return reject(ReasonStructuralViolation, "missing arrival at index %d after an earlier stop provided one", i)
			}
			continue
		}
		seenArrival = true
	}
	return nil
}

// checkMissingDepartureSuffix enforces the symmetric rule: a missing
// departure is permitted only if every later non-skipped stop is also
// missing its departure, i.e. only a trailing suffix may lack departures.
func checkMissingDepartureSuffix(resolved []ResolvedStop) error {
	seenDeparture := false
	for i := len(resolved) - 1; i >= 0; i-- {
		r := resolved[i]
		if r.Skipped {
			continue
		}
		if r.Departure == nil {
			if seenDeparture {
				return reject(ReasonStructuralViolation, "missing departure at index %d before a later stop provided one", i)
			}
			continue
		}
		seenDeparture = true
	}
	return nil
}
