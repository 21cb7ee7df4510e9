// Package dispatch runs the tower control loop. It pulls due flights from
// the scheduler, pairs them with an aircraft and a runway, and supervises
// one task per flight while a listener consumes violation clearances.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/airtraffic/internal/pkg/metrics"
	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/internal/tower/phase"
	"github.com/autopeer-io/airtraffic/internal/tower/runway"
	"github.com/autopeer-io/airtraffic/internal/tower/schedule"
	"github.com/autopeer-io/airtraffic/internal/tower/violation"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/wire"
)

// ViolationSink forwards violation notices to the violation processor.
type ViolationSink interface {
	Send(ctx context.Context, v *wire.Violation) error
}

// ClearanceSource yields clearances sent back by the violation processor.
// Receive returns nil, nil when nothing is pending.
type ClearanceSource interface {
	Receive(ctx context.Context) (*wire.ViolationCleared, error)
}

// Requeue reasons, used as metric labels.
const (
	reasonNoAircraft      = "no_aircraft"
	reasonAirlineCapacity = "airline_capacity"
	reasonNoRunway        = "no_runway"
)

var errNoRunway = errors.New("no runway available")

// Config wires the coordinator to its collaborators.
type Config struct {
	Fleet      *fleet.Registry
	Runways    *runway.Allocator
	Scheduler  *schedule.Scheduler
	Tracker    *violation.Tracker
	Sink       ViolationSink
	Clearances ClearanceSource

	Clock  clock.WithTicker
	Logger log.Logger

	// Duration bounds the control loop.
	Duration time.Duration
	Tick     time.Duration

	MaxConcurrentFlights   int
	RescheduleDelay        time.Duration
	EmergencyRetries       int
	EmergencyRetryInterval time.Duration
	ListenerInterval       time.Duration

	// Phase is handed to the state machine of every flight.
	Phase phase.Options
}

// Coordinator owns the control loop and the flight supervisor.
type Coordinator struct {
	cfg    Config
	clock  clock.WithTicker
	logger log.Logger

	fleet     *fleet.Registry
	runways   *runway.Allocator
	scheduler *schedule.Scheduler
	tracker   *violation.Tracker

	tasks *errgroup.Group

	mu    sync.Mutex
	stats counters
}

type counters struct {
	flights    int
	completed  int
	faulted    int
	aborted    int
	requeued   int
	discarded  []string
	violations map[string]int
	faults     map[string]int
}

// flight is one dispatched flight and the resources it holds.
type flight struct {
	entry    *schedule.Entry
	aircraft *fleet.Aircraft
	airline  *fleet.Airline
	runway   v1alpha1.RunwayType
}

func New(cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.ListenerInterval <= 0 {
		cfg.ListenerInterval = 100 * time.Millisecond
	}
	if cfg.Phase.Clock == nil {
		cfg.Phase.Clock = cfg.Clock
	}
	if cfg.Phase.Logger == nil {
		cfg.Phase.Logger = cfg.Logger.WithName("phase")
	}

	tasks := new(errgroup.Group)
	if cfg.MaxConcurrentFlights > 0 {
		tasks.SetLimit(cfg.MaxConcurrentFlights)
	}

	return &Coordinator{
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		fleet:     cfg.Fleet,
		runways:   cfg.Runways,
		scheduler: cfg.Scheduler,
		tracker:   cfg.Tracker,
		tasks:     tasks,
		stats: counters{
			violations: make(map[string]int),
			faults:     make(map[string]int),
		},
	}
}

// Run drives the control loop until the configured duration has elapsed or
// ctx is cancelled, then waits for every flight task to finish. Flight
// tasks observe ctx, so cancelling it also cuts running cycles short.
func (c *Coordinator) Run(ctx context.Context) error {
	deadline := c.clock.Now().Add(c.cfg.Duration)
	ticker := c.clock.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	c.logger.Info("Control loop started", "duration", c.cfg.Duration, "tick", c.cfg.Tick)

loop:
	for {
		now := c.clock.Now()
		if !now.Before(deadline) {
			break
		}
		c.tick(ctx, now)

		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C():
		}
	}

	c.logger.Info("Control loop finished, waiting for flights in progress")
	return c.tasks.Wait()
}

// tick dispatches the next due flight of the primary queue, then every due
// flight of the waiting queue.
func (c *Coordinator) tick(ctx context.Context, now time.Time) {
	if e := c.scheduler.Next(now); e != nil {
		c.dispatch(ctx, e)
	}
	for _, e := range c.scheduler.DrainDue(now) {
		c.logger.Info("Processing rescheduled flight", "flight", e.FlightNumber, "scheduledAt", e.ScheduledAt)
		c.dispatch(ctx, e)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, e *schedule.Entry) {
	logger := c.logger.WithValues("flight", e.FlightNumber, "airline", e.Airline)
	if e.Priority == schedule.PriorityEmergency {
		logger.Warn("Dispatching emergency flight")
	}

	a := c.fleet.Acquire(e.Type, e.Airline)
	if a == nil {
		logger.Info("No aircraft available, rescheduling", "type", e.Type)
		c.requeue(e, false, reasonNoAircraft)
		return
	}
	if a.Type() == v1alpha1.FlightTypeEmergency && e.Promote() {
		logger.Info("Flight promoted to priority 1, emergency aircraft assigned", "aircraft", a.ID)
	}

	airline := c.fleet.AirlineOf(a)
	if !airline.AdmitFlight() {
		c.fleet.Release(a)
		logger.Info("Airline at active flight capacity, rescheduling")
		c.requeue(e, false, reasonAirlineCapacity)
		return
	}

	req := runway.Request{
		FlightID:  e.FlightNumber,
		Direction: e.Direction,
		Type:      e.Type,
		Priority:  e.Priority,
		Arrival:   e.Arrival,
	}
	kind, ok := c.acquireRunway(ctx, logger, req)
	if !ok {
		airline.CompleteFlight()
		c.fleet.Release(a)
		logger.Info("No runway available, moving to waiting queue")
		c.requeue(e, true, reasonNoRunway)
		return
	}

	e.Aircraft = a
	f := &flight{entry: e, aircraft: a, airline: airline, runway: kind}
	if !c.tasks.TryGo(func() error {
		c.fly(ctx, f)
		return nil
	}) {
		c.runways.Release(kind, e.FlightNumber)
		airline.CompleteFlight()
		c.fleet.Release(a)

		c.mu.Lock()
		c.stats.discarded = append(c.stats.discarded, e.FlightNumber)
		c.mu.Unlock()
		metrics.FlightsDiscarded.Inc()
		logger.Error(errors.New("flight task limit reached"), "Failed to start flight task, flight discarded", "runway", kind)
		return
	}

	metrics.FlightsDispatched.WithLabelValues(e.Airline, kind.String()).Inc()
	logger.Info("Flight launched", "aircraft", a.ID, "type", e.Type, "direction", e.Direction.Description(), "runway", kind)
}

// acquireRunway walks the preference list of req. Emergencies that find
// every runway taken retry a bounded number of times before giving up.
func (c *Coordinator) acquireRunway(ctx context.Context, logger log.Logger, req runway.Request) (v1alpha1.RunwayType, bool) {
	if kind, ok := c.runways.Acquire(req); ok {
		return kind, true
	}
	if req.Priority != schedule.PriorityEmergency || c.cfg.EmergencyRetries <= 0 {
		return 0, false
	}

	var (
		kind    v1alpha1.RunwayType
		attempt int
	)
	op := func() error {
		attempt++
		metrics.EmergencyRunwayRetries.Inc()
		var ok bool
		if kind, ok = c.runways.Acquire(req); ok {
			return nil
		}
		return errNoRunway
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.EmergencyRetryInterval), uint64(c.cfg.EmergencyRetries-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, b, func(_ error, next time.Duration) {
		logger.Warn("No runway for emergency flight, retrying", "attempt", attempt, "next", next)
	})
	return kind, err == nil
}

func (c *Coordinator) requeue(e *schedule.Entry, toWaiting bool, reason string) {
	if c.scheduler.Requeue(e, c.cfg.RescheduleDelay, toWaiting) {
		metrics.FlightsCancelled.Inc()
		return
	}

	queue := "primary"
	if toWaiting {
		queue = "waiting"
	}
	metrics.FlightsRequeued.WithLabelValues(queue, reason).Inc()

	c.mu.Lock()
	c.stats.requeued++
	c.mu.Unlock()
}
