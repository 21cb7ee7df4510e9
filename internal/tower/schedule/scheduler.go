// Package schedule holds the flight timetable: a primary queue ordered by
// scheduled time and priority, and a waiting queue for flights that were due
// but could not get a runway.
package schedule

import (
	"errors"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/airtraffic/pkg/log"
)

const (
	// DefaultMaxReschedules is the reschedule budget of a flight.
	DefaultMaxReschedules = 5

	// waitEstimatePerFlight is the wait quoted per flight already waiting.
	waitEstimatePerFlight = 15 * time.Second
)

// ErrRescheduleBudget is logged when a flight is cancelled.
var ErrRescheduleBudget = errors.New("reschedule budget exhausted")

type Options struct {
	MaxReschedules int
	Clock          clock.PassiveClock
	Logger         log.Logger
}

// Scheduler owns both queues. Each queue has its own lock and neither is
// held across anything but the scan or insert.
type Scheduler struct {
	maxReschedules int
	clock          clock.PassiveClock
	logger         log.Logger

	mu      sync.Mutex
	primary []*Entry

	waitMu  sync.Mutex
	waiting []*Entry

	cancelMu  sync.Mutex
	cancelled []*Entry
	isDone    map[*Entry]struct{}
}

func New(opts Options) *Scheduler {
	if opts.MaxReschedules <= 0 {
		opts.MaxReschedules = DefaultMaxReschedules
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Scheduler{
		maxReschedules: opts.MaxReschedules,
		clock:          opts.Clock,
		logger:         opts.Logger,
		isDone:         make(map[*Entry]struct{}),
	}
}

func insert(q []*Entry, e *Entry) []*Entry {
	i, _ := slices.BinarySearchFunc(q, e, func(a, b *Entry) int {
		// Equal keys land after existing entries.
		if c := compare(a, b); c != 0 {
			return c
		}
		return -1
	})
	return slices.Insert(q, i, e)
}

// Add queues e on the primary queue.
func (s *Scheduler) Add(e *Entry) {
	e.AddedAt = s.clock.Now()

	s.mu.Lock()
	s.primary = insert(s.primary, e)
	s.mu.Unlock()

	if e.Priority == PriorityEmergency {
		s.logger.Warn("Emergency flight scheduled", "flight", e.FlightNumber, "airline", e.Airline)
	}
	s.logger.Info("Flight queued", "flight", e.FlightNumber, "airline", e.Airline, "type", e.Type,
		"direction", e.Direction.Description(), "priority", e.Priority, "scheduledAt", e.ScheduledAt)
}

// Next removes and returns the head of the primary queue if it is due at
// now, or nil.
func (s *Scheduler) Next(now time.Time) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.primary) == 0 || s.primary[0].ScheduledAt.After(now) {
		return nil
	}
	e := s.primary[0]
	s.primary[0] = nil
	s.primary = s.primary[1:]
	return e
}

// Reschedule moves e delay later and puts it back on the primary queue.
func (s *Scheduler) Reschedule(e *Entry, delay time.Duration) {
	e.ScheduledAt = e.ScheduledAt.Add(delay)
	s.Add(e)
}

// Wait moves e delay later and parks it on the waiting queue.
func (s *Scheduler) Wait(e *Entry, delay time.Duration) {
	e.ScheduledAt = e.ScheduledAt.Add(delay)
	e.AddedAt = s.clock.Now()

	s.waitMu.Lock()
	e.EstimatedWait = waitEstimatePerFlight * time.Duration(len(s.waiting))
	s.waiting = insert(s.waiting, e)
	s.waitMu.Unlock()

	s.logger.Info("Flight moved to waiting queue", "flight", e.FlightNumber, "scheduledAt", e.ScheduledAt,
		"estimatedWait", e.EstimatedWait, "reschedules", e.RescheduleCount)
}

// DrainDue removes and returns every waiting flight due at now, in queue order.
func (s *Scheduler) DrainDue(now time.Time) []*Entry {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()

	var due []*Entry
	kept := s.waiting[:0]
	for _, e := range s.waiting {
		if e.ScheduledAt.After(now) {
			kept = append(kept, e)
			continue
		}
		due = append(due, e)
	}
	clear(s.waiting[len(kept):])
	s.waiting = kept
	return due
}

// Requeue records a failed dispatch of e. Once the reschedule budget is
// spent the flight is cancelled and Requeue returns true; otherwise e is
// delayed onto the waiting queue or back onto the primary queue.
func (s *Scheduler) Requeue(e *Entry, delay time.Duration, toWaiting bool) bool {
	s.cancelMu.Lock()
	if _, ok := s.isDone[e]; ok {
		s.cancelMu.Unlock()
		return true
	}
	e.RescheduleCount++
	if e.RescheduleCount >= s.maxReschedules {
		s.isDone[e] = struct{}{}
		s.cancelled = append(s.cancelled, e)
		s.cancelMu.Unlock()
		s.logger.Error(ErrRescheduleBudget, "Cancelling flight", "flight", e.FlightNumber,
			"airline", e.Airline, "maxReschedules", s.maxReschedules)
		return true
	}
	s.cancelMu.Unlock()

	e.Aircraft = nil
	if toWaiting {
		s.Wait(e, delay)
	} else {
		s.Reschedule(e, delay)
	}
	return false
}

// Cancelled returns the flight numbers cancelled so far, in cancellation order.
func (s *Scheduler) Cancelled() []string {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	out := make([]string, 0, len(s.cancelled))
	for _, e := range s.cancelled {
		out = append(out, e.FlightNumber)
	}
	return out
}

// Len returns the sizes of the primary and waiting queues.
func (s *Scheduler) Len() (primary, waiting int) {
	s.mu.Lock()
	primary = len(s.primary)
	s.mu.Unlock()
	s.waitMu.Lock()
	waiting = len(s.waiting)
	s.waitMu.Unlock()
	return primary, waiting
}
