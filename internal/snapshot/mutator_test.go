package snapshot

import (
	"testing"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	gtfs "github.com/OneBusAway/go-gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDate = ServiceDate("20260305")

// newScenarioMutator builds the fixture shared by S1/S2/S5/S6: a graph with
// stops A, B, C, a route R1, and a scheduled trip T1 on pattern [A,B,C]
// running at 08:00/08:10(arr)+08:11(dep)/08:20, with service SVC1 running
// on testDate.
func newScenarioMutator(t *testing.T) (*mutator, *fakeGraph, int64) {
	t.Helper()
	g := newFakeGraph()
	a, b, c := &gtfs.Stop{Id: "A"}, &gtfs.Stop{Id: "B"}, &gtfs.Stop{Id: "C"}
	g.stops["A"], g.stops["B"], g.stops["C"] = a, b, c

	route := &gtfs.Route{Id: "R1"}
	g.routes["R1"] = route

	svc := "SVC1"
	code := g.ServiceCode(svc)
	g.onDate[testDate] = []string{svc}

	trip := &gtfs.ScheduledTrip{ID: "T1", Route: route, Service: &gtfs.Service{Id: svc}}
	g.trips["T1"] = trip

	pattern := &TripPattern{
		StopPattern: StopPattern{
			Stops:     []Stop{a, b, c},
			PickupAt:  []PickupDropoffPolicy{0, 0, 0},
			DropoffAt: []PickupDropoffPolicy{0, 0, 0},
		},
		Route: route,
	}
	pattern.Services = pattern.Services.With(code)
	pattern.ScheduledTimetable = &Timetable{
		Pattern: pattern,
		TripTimes: []*TripTimes{{
			Trip:        trip,
			ServiceCode: code,
			Arrivals:    []int64{28800, 29400, 30000},
			Departures:  []int64{28800, 29460, 30000},
		}},
	}
	g.patterns["T1"] = pattern

	idx := buildIdIndex(g, nil)
	midnight, err := testDate.MidnightEpochSeconds(g.TimeZone())
	require.NoError(t, err)

	m := &mutator{graph: g, buffer: newBuffer(), idx: idx, cache: NewTripPatternCache()}
	return m, g, midnight
}

func seqStu(seq uint32, stopID string, arrival, departure *int64, skipped bool) *gtfsrt.TripUpdate_StopTimeUpdate {
	s := stu(stopID, arrival, departure, skipped)
	s.StopSequence = &seq
	return s
}

// S1: scheduled retime.
func TestScenario_ScheduledRetime(t *testing.T) {
	m, g, midnight := newScenarioMutator(t)

	newArrival := midnight + 8*3600 + 12*60 // 08:12
	tu := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{TripId: strPtr("T1")},
		StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
			seqStu(2, "", i64(newArrival), nil, false),
		},
	}

	err := m.Apply(tu, testDate)
	require.NoError(t, err)

	pattern := g.patterns["T1"]
	overlay, ok := m.buffer.OverlayTimetable(pattern, testDate)
	require.True(t, ok)
	assert.Equal(t, midnight+8*3600+12*60-midnight, overlay.TripTimes[0].Arrivals[1])
	assert.Equal(t, int64(28800), overlay.TripTimes[0].Arrivals[0], "stop A is untouched")
	assert.Equal(t, int64(30000), overlay.TripTimes[0].Arrivals[2], "stop C is untouched")
}

// S2: modified — a skipped stop promotes classification and rebuilds the pattern.
func TestScenario_ModifiedStopSkipped(t *testing.T) {
	m, g, midnight := newScenarioMutator(t)

	tu := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{TripId: strPtr("T1"), StartDate: strPtr(string(testDate))},
		StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
			stu("A", i64(midnight+28800), i64(midnight+28800), false),
			stu("", nil, nil, true),
			stu("C", i64(midnight+30000), i64(midnight+30000), false),
		},
	}

	assert.Equal(t, ClassificationModified, Classify(tu))

	err := m.Apply(tu, testDate)
	require.NoError(t, err)

	originalPattern := g.patterns["T1"]
	canceledOverlay, ok := m.buffer.OverlayTimetable(originalPattern, testDate)
	require.True(t, ok)
	assert.True(t, canceledOverlay.TripTimes[0].Canceled, "the original pattern's T1 instance must be cancelled")

	newPattern, ok := m.buffer.LastAddedPattern("T1", testDate)
	require.True(t, ok)
	assert.NotSame(t, originalPattern, newPattern)
	assert.Len(t, newPattern.StopPattern.Stops, 2, "the skipped stop must not appear in the new pattern")
	assert.Equal(t, "A", newPattern.StopPattern.Stops[0].Id)
	assert.Equal(t, "C", newPattern.StopPattern.Stops[1].Id)

	newOverlay, ok := m.buffer.OverlayTimetable(newPattern, testDate)
	require.True(t, ok)
	assert.False(t, newOverlay.TripTimes[0].Canceled)
}

// S3: added trip, with a synthesized route and NONE pickup/dropoff at the ends.
func TestScenario_AddedTrip(t *testing.T) {
	g := newFakeGraph()
	g.stops["S1"] = &gtfs.Stop{Id: "S1"}
	g.stops["S2"] = &gtfs.Stop{Id: "S2"}
	g.stops["S3"] = &gtfs.Stop{Id: "S3"}
	g.onDate[ServiceDate("20240115")] = []string{"SVC1"}
	idx := buildIdIndex(g, nil)
	m := &mutator{graph: g, buffer: newBuffer(), idx: idx, cache: NewTripPatternCache()}

	date := ServiceDate("20240115")
	midnight, err := date.MidnightEpochSeconds(g.TimeZone())
	require.NoError(t, err)

	tu := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{
			TripId:                strPtr("NEW"),
			StartDate:             strPtr(string(date)),
			ScheduleRelationship:  scheduleRelationship(gtfsrt.TripDescriptor_ADDED),
		},
		StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
			stu("S1", i64(midnight+8*3600), i64(midnight+8*3600), false),
			stu("S2", i64(midnight+8*3600+5*60), i64(midnight+8*3600+5*60), false),
			stu("S3", i64(midnight+8*3600+10*60), i64(midnight+8*3600+10*60), false),
		},
	}

	err = m.Apply(tu, date)
	require.NoError(t, err)

	pattern, ok := m.buffer.LastAddedPattern("NEW", date)
	require.True(t, ok)
	assert.Equal(t, "NEW", pattern.Route.Id, "route id falls back to the trip id when route_id is absent")
	assert.Equal(t, PickupDropoffNone, pattern.StopPattern.DropoffAt[0])
	assert.Equal(t, PickupDropoffNone, pattern.StopPattern.PickupAt[2])
	assert.Equal(t, PickupDropoffRegular, pattern.StopPattern.PickupAt[0])
	assert.Equal(t, PickupDropoffRegular, pattern.StopPattern.DropoffAt[2])

	overlay, ok := m.buffer.OverlayTimetable(pattern, date)
	require.True(t, ok)
	assert.Len(t, overlay.TripTimes, 1)
}

// S4: a second ADDED update for the same trip/date cancels the first.
func TestScenario_AddedReplacesPriorAdded(t *testing.T) {
	g := newFakeGraph()
	g.stops["S1"] = &gtfs.Stop{Id: "S1"}
	g.stops["S2"] = &gtfs.Stop{Id: "S2"}
	date := ServiceDate("20240115")
	g.onDate[date] = []string{"SVC1"}
	idx := buildIdIndex(g, nil)
	m := &mutator{graph: g, buffer: newBuffer(), idx: idx, cache: NewTripPatternCache()}
	midnight, err := date.MidnightEpochSeconds(g.TimeZone())
	require.NoError(t, err)

	makeTU := func(offset int64) *gtfsrt.TripUpdate {
		return &gtfsrt.TripUpdate{
			Trip: &gtfsrt.TripDescriptor{
				TripId:               strPtr("NEW"),
				StartDate:            strPtr(string(date)),
				ScheduleRelationship: scheduleRelationship(gtfsrt.TripDescriptor_ADDED),
			},
			StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
				stu("S1", i64(midnight+8*3600+offset), i64(midnight+8*3600+offset), false),
				stu("S2", i64(midnight+8*3600+300+offset), i64(midnight+8*3600+300+offset), false),
			},
		}
	}

	require.NoError(t, m.Apply(makeTU(0), date))
	firstPattern, ok := m.buffer.LastAddedPattern("NEW", date)
	require.True(t, ok)

	require.NoError(t, m.Apply(makeTU(600), date))
	secondPattern, ok := m.buffer.LastAddedPattern("NEW", date)
	require.True(t, ok)

	assert.Same(t, firstPattern, secondPattern, "identical stop lists intern to the same pattern")

	overlay, ok := m.buffer.OverlayTimetable(secondPattern, date)
	require.True(t, ok)
	require.Len(t, overlay.TripTimes, 1, "the first added instance is cancelled in place, not appended twice")
	assert.False(t, overlay.TripTimes[0].Canceled)
	assert.Equal(t, int64(8*3600+600), overlay.TripTimes[0].Arrivals[0])
}

// S5: canceled trip.
func TestScenario_Canceled(t *testing.T) {
	m, g, _ := newScenarioMutator(t)

	tu := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{
			TripId:               strPtr("T1"),
			StartDate:            strPtr(string(testDate)),
			ScheduleRelationship: scheduleRelationship(gtfsrt.TripDescriptor_CANCELED),
		},
	}

	err := m.Apply(tu, testDate)
	require.NoError(t, err)

	pattern := g.patterns["T1"]
	overlay, ok := m.buffer.OverlayTimetable(pattern, testDate)
	require.True(t, ok)
	assert.True(t, overlay.TripTimes[0].Canceled)
}

// S6: an internally non-monotone ADDED trip is rejected and leaves the
// buffer untouched; a later, valid update in the same batch still applies.
func TestScenario_BadMonotonicityHasNoEffect(t *testing.T) {
	g := newFakeGraph()
	g.stops["S1"] = &gtfs.Stop{Id: "S1"}
	g.stops["S2"] = &gtfs.Stop{Id: "S2"}
	g.stops["S3"] = &gtfs.Stop{Id: "S3"}
	date := ServiceDate("20240115")
	g.onDate[date] = []string{"SVC1"}
	idx := buildIdIndex(g, nil)
	m := &mutator{graph: g, buffer: newBuffer(), idx: idx, cache: NewTripPatternCache()}
	midnight, err := date.MidnightEpochSeconds(g.TimeZone())
	require.NoError(t, err)

	badTU := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{
			TripId:               strPtr("BAD"),
			StartDate:            strPtr(string(date)),
			ScheduleRelationship: scheduleRelationship(gtfsrt.TripDescriptor_ADDED),
		},
		StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
			stu("S1", i64(midnight+8*3600+600), i64(midnight+8*3600+600), false),
			stu("S2", i64(midnight+8*3600+300), i64(midnight+8*3600+300), false),
			stu("S3", i64(midnight+8*3600+1200), i64(midnight+8*3600+1200), false),
		},
	}

	dirtyBefore := m.buffer.dirty
	err = m.Apply(badTU, date)
	require.Error(t, err)
	assert.Equal(t, ReasonStructuralViolation, err.(*Rejection).Reason)
	assert.Equal(t, dirtyBefore, m.buffer.dirty, "a rejected update must not mark the buffer dirty")

	_, ok := m.buffer.LastAddedPattern("BAD", date)
	assert.False(t, ok)

	goodTU := &gtfsrt.TripUpdate{
		Trip: &gtfsrt.TripDescriptor{
			TripId:               strPtr("GOOD"),
			StartDate:            strPtr(string(date)),
			ScheduleRelationship: scheduleRelationship(gtfsrt.TripDescriptor_ADDED),
		},
		StopTimeUpdate: []*gtfsrt.TripUpdate_StopTimeUpdate{
			stu("S1", i64(midnight+8*3600), i64(midnight+8*3600), false),
			stu("S2", i64(midnight+8*3600+300), i64(midnight+8*3600+300), false),
		},
	}
	assert.NoError(t, m.Apply(goodTU, date))
}
