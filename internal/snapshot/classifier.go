package snapshot

import (
	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// Classification is the classifier's internal tagged sum. It is distinct
// from the wire-level TripDescriptor_ScheduleRelationship enum: MODIFIED
// never arrives on the wire (the real GTFS-Realtime enum has no such
// value), it is produced only by the promotion rule below.
type Classification int

const (
	ClassificationScheduled Classification = iota
	ClassificationAdded
	ClassificationModified
	ClassificationCanceled
	ClassificationUnscheduled
)

// String renders the classification as the label used in the
// snapshot_updates_applied_total metric.
func (c Classification) String() string {
	switch c {
	case ClassificationScheduled:
		return "scheduled"
	case ClassificationAdded:
		return "added"
	case ClassificationModified:
		return "modified"
	case ClassificationCanceled:
		return "canceled"
	case ClassificationUnscheduled:
		return "unscheduled"
	default:
		return "unknown"
	}
}

// Classify maps a raw TripUpdate to a Classification. Default is SCHEDULED;
// an explicit trip-level schedule_relationship on the wire is adopted
// verbatim. If the result is (still) SCHEDULED and any stop-time update
// carries a SKIPPED stop-level schedule_relationship, the classification is
// promoted to MODIFIED: a SCHEDULED message that inserts or removes stops
// defines a new stop pattern and must flow through the add/modify pipeline,
// not a simple retime.
func Classify(tu *gtfsrt.TripUpdate) Classification {
	result := ClassificationScheduled

	if trip := tu.GetTrip(); trip != nil && trip.ScheduleRelationship != nil {
		switch trip.GetScheduleRelationship() {
		case gtfsrt.TripDescriptor_SCHEDULED:
			result = ClassificationScheduled
		case gtfsrt.TripDescriptor_ADDED:
			result = ClassificationAdded
		case gtfsrt.TripDescriptor_UNSCHEDULED:
			result = ClassificationUnscheduled
		case gtfsrt.TripDescriptor_CANCELED:
			result = ClassificationCanceled
		}
	}

	if result == ClassificationScheduled && hasSkippedStop(tu) {
		result = ClassificationModified
	}

	return result
}

func hasSkippedStop(tu *gtfsrt.TripUpdate) bool {
	for _, stu := range tu.GetStopTimeUpdate() {
		if stu.GetScheduleRelationship() == gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED {
			return true
		}
		// TODO: also promote on stop-level ADDED once that value is
		// defined in the upstream GTFS-Realtime enum.
	}
	return false
}
