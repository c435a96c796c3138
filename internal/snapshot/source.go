package snapshot

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"golang.org/x/time/rate"

	"realtime.onebusaway.org/internal/clock"
	"realtime.onebusaway.org/internal/logging"
	"realtime.onebusaway.org/internal/metrics"
)

// Source is the snapshot source façade: it owns the working buffer, the
// published snapshot, the writer lock, the snapshot-throttle limiter, and
// the daily purge policy.
//
// The writer lock here is a plain sync.Mutex rather than a fair lock. A
// fair mutex would better prevent writer starvation under continuous
// reader pressure; Go's sync.Mutex offers no fairness guarantee and the
// example corpus carries no third-party fair-mutex package, so this is a
// documented deviation (see DESIGN.md) rather than a hand-rolled
// replacement.
type Source struct {
	mu     sync.Mutex
	buffer *TimetableSnapshot

	published atomic.Pointer[TimetableSnapshot]

	cfg     Config
	clock   clock.Clock
	limiter *rate.Limiter

	lastCommit time.Time

	idx       *IdIndex
	graphSeen Graph
	cache     *TripPatternCache
	purge     PurgePolicy

	appliedCount int

	metrics *metrics.Metrics
	logger  *slog.Logger

	// FuzzyMatcher, when set, is applied to every TripUpdate carrying a
	// Trip descriptor before classification.
	FuzzyMatcher FuzzyTripMatcher
}

// NewSource constructs a Source with an empty published snapshot.
func NewSource(cfg Config, clk clock.Clock, met *metrics.Metrics, logger *slog.Logger) *Source {
	s := &Source{
		buffer:  newBuffer(),
		cfg:     cfg,
		clock:   clk,
		cache:   NewTripPatternCache(),
		metrics: met,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(cfg.MaxSnapshotFrequency), 1),
	}
	s.published.Store(s.buffer.commit())
	s.lastCommit = clk.Now()
	return s
}

// GetTimetableSnapshot returns the current published snapshot. It never
// blocks: it tries to acquire the writer lock, and on success may issue a
// throttled commit before returning; on contention it returns the last
// published snapshot unchanged.
func (s *Source) GetTimetableSnapshot() *TimetableSnapshot {
	if s.mu.TryLock() {
		s.maybeCommit(false)
		s.mu.Unlock()
	}

	published := s.published.Load()
	if s.metrics != nil {
		s.metrics.LastCommitAgeSeconds.Set(s.clock.Now().Sub(s.lastCommit).Seconds())
	}
	return published
}

// maybeCommit runs the snapshot throttle: a commit happens only if forced,
// or the buffer is dirty and the limiter allows a commit at this instant
// (approximating "now - lastSnapshotTime > maxSnapshotFrequency"). Must be
// called with s.mu held.
func (s *Source) maybeCommit(force bool) bool {
	now := s.clock.Now()
	if !force {
		if !s.buffer.dirty {
			return false
		}
		if !s.limiter.AllowN(now, 1) {
			return false
		}
	}

	frozen := s.buffer.commit()
	s.published.Store(frozen)
	s.lastCommit = now
	if s.metrics != nil {
		s.metrics.CommitsTotal.Inc()
		s.metrics.BufferDirty.Set(0)
	}
	return true
}

// ApplyTripUpdates acquires the writer lock (blocking) and applies updates
// in order to the buffer. Per-update failures are logged and
// skipped; they never abort the batch. At batch end, purge runs (if
// enabled) and a commit is forced if purge removed anything, otherwise the
// commit is subject to the usual throttle.
func (s *Source) ApplyTripUpdates(graph Graph, fullDataset bool, updates []*gtfsrt.TripUpdate, feedID string) {
	mustNotNil(graph, "graph")
	mustNotNil(updates, "updates")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshIdIndex(graph)

	if fullDataset {
		s.buffer.clear()
	}

	today := NewServiceDate(s.clock.Now().In(graph.TimeZone()))

	for _, tu := range updates {
		if tu == nil {
			continue
		}
		if s.FuzzyMatcher != nil && tu.GetTrip() != nil {
			if matched := s.FuzzyMatcher.Match(feedID, tu.GetTrip()); matched != nil {
				tu.Trip = matched
			}
		}

		m := &mutator{graph: graph, buffer: s.buffer, idx: s.idx, cache: s.cache}
		if err := m.Apply(tu, today); err != nil {
			s.recordRejection(err)
			continue
		}
		s.recordApplied(tu)
	}

	purged := 0
	if s.cfg.PurgeExpiredData {
		cutoff := CutoffFor(today, graph.TimeZone())
		removed, ran := s.purge.Run(s.buffer, cutoff)
		if ran {
			purged = removed
			if s.metrics != nil {
				s.metrics.PurgeRunsTotal.Inc()
				s.metrics.PurgeRemovedTotal.Add(float64(removed))
			}
		}
	}

	s.maybeCommit(purged > 0)

	if s.metrics != nil {
		if s.buffer.dirty {
			s.metrics.BufferDirty.Set(1)
		} else {
			s.metrics.BufferDirty.Set(0)
		}
	}
}

func (s *Source) refreshIdIndex(graph Graph) {
	if s.idx != nil && s.graphSeen == graph {
		return
	}
	s.idx = buildIdIndex(graph, s.logger)
	s.graphSeen = graph
}

func (s *Source) recordRejection(err error) {
	reason := ReasonUnsupported
	if r, ok := err.(*Rejection); ok {
		reason = r.Reason
	}
	logging.LogError(s.logger, "trip_update_rejected", err, slog.String("reason", reason.String()))
	if s.metrics != nil {
		s.metrics.RecordRejected(reason.String())
	}
}

func (s *Source) recordApplied(tu *gtfsrt.TripUpdate) {
	s.appliedCount++
	classification := Classify(tu)
	if s.metrics != nil {
		s.metrics.RecordApplied(classification.String())
	}
	if s.cfg.LogFrequency > 0 && s.appliedCount%s.cfg.LogFrequency == 0 {
		logging.LogOperation(s.logger, "applied_trip_updates", slog.Int("count", s.appliedCount))
	}
}
