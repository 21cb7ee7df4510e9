package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/airtraffic/internal/pkg/metrics"
	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/internal/tower/phase"
	"github.com/autopeer-io/airtraffic/internal/tower/runway"
	"github.com/autopeer-io/airtraffic/internal/tower/schedule"
	"github.com/autopeer-io/airtraffic/internal/tower/violation"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/rand"
	"github.com/autopeer-io/airtraffic/pkg/wire"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu   sync.Mutex
	sent []*wire.Violation
	err  error
}

func (s *recordingSink) Send(_ context.Context, v *wire.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *recordingSink) records() []*wire.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*wire.Violation(nil), s.sent...)
}

type scriptedSource struct {
	mu    sync.Mutex
	queue []any
}

func (s *scriptedSource) push(items ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, items...)
}

func (s *scriptedSource) Receive(context.Context) (*wire.ViolationCleared, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, nil
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	switch v := item.(type) {
	case error:
		return nil, v
	case wire.ViolationCleared:
		return &v, nil
	}
	return nil, nil
}

type harness struct {
	*Coordinator
	fleet   *fleet.Registry
	runways *runway.Allocator
	sched   *schedule.Scheduler
	tracker *violation.Tracker
	sink    *recordingSink
	source  *scriptedSource
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	reg := fleet.NewRegistry(nil)
	require.NoError(t, reg.Load([]fleet.AirlineSpec{
		{Name: "A", MaxAircraft: 3, MaxFlights: 2, Aircraft: []fleet.AircraftSpec{
			{ID: "X-1", Type: "Commercial"},
			{ID: "X-2", Type: "Commercial"},
			{ID: "X-3", Type: "Emergency"},
		}},
		{Name: "Solo", MaxAircraft: 2, MaxFlights: 1, Aircraft: []fleet.AircraftSpec{
			{ID: "S-1", Type: "Cargo"},
			{ID: "S-2", Type: "Cargo"},
		}},
	}))

	h := &harness{
		fleet:   reg,
		runways: runway.NewAllocator(nil),
		sched:   schedule.New(schedule.Options{Clock: clocktesting.NewFakePassiveClock(epoch)}),
		tracker: violation.NewTracker(clocktesting.NewFakePassiveClock(epoch), nil),
		sink:    &recordingSink{},
		source:  &scriptedSource{},
	}
	cfg := Config{
		Fleet:                  reg,
		Runways:                h.runways,
		Scheduler:              h.sched,
		Tracker:                h.tracker,
		Sink:                   h.sink,
		Clearances:             h.source,
		Duration:               time.Minute,
		Tick:                   time.Millisecond,
		MaxConcurrentFlights:   8,
		RescheduleDelay:        15 * time.Second,
		EmergencyRetries:       3,
		EmergencyRetryInterval: time.Millisecond,
		ListenerInterval:       time.Millisecond,
		Phase:                  phase.Options{Random: rand.Constant{}},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.Coordinator = New(cfg)
	return h
}

func departure(number, airline string, typ v1alpha1.FlightType, dir v1alpha1.Direction) *schedule.Entry {
	return schedule.NewEntry(rand.Constant{}, number, airline, typ, dir, epoch, false)
}

func arrival(number, airline string, typ v1alpha1.FlightType, dir v1alpha1.Direction) *schedule.Entry {
	return schedule.NewEntry(rand.Constant{}, number, airline, typ, dir, epoch, true)
}

func TestForcedViolationIsReported(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Phase.ForcedViolators = []string{"X-1"} })
	h.sched.Add(departure("AX101-D", "A", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionEast))

	h.tick(context.Background(), epoch)
	require.NoError(t, h.tasks.Wait())

	sent := h.sink.records()
	require.Len(t, sent, 1)
	assert.Equal(t, "AX101-D", sent[0].FlightNumber)
	assert.Equal(t, "A", sent[0].Airline)
	assert.Equal(t, float32(30), sent[0].PermissibleSpeed)
	assert.InDelta(t, 500000*1.15, sent[0].FineAmount, 1e-6)
	assert.Equal(t, wire.PaymentStatusUnpaid, sent[0].PaymentStatus)

	st := h.Stats()
	assert.Equal(t, 1, st.Flights)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.ViolationsPerAirline["A"])
	assert.Equal(t, 1, st.ViolationsIssued)
	assert.Equal(t, 1, st.ViolationsActive)

	for _, r := range st.Runways {
		assert.False(t, r.Occupied, r.Kind.String())
	}
	for _, a := range h.fleet.Aircraft() {
		s := a.Snapshot()
		assert.True(t, s.Available, a.ID)
		assert.False(t, s.HasActiveViolation, a.ID)
	}
	_, flights := mustAirline(t, h.fleet, "A").Counts()
	assert.Zero(t, flights)
}

func mustAirline(t *testing.T, r *fleet.Registry, name string) *fleet.Airline {
	t.Helper()
	a, ok := r.Airline(name)
	require.True(t, ok)
	return a
}

func TestNoAircraftCancelsAfterBudget(t *testing.T) {
	h := newHarness(t, nil)
	h.sched.Add(departure("ZZ101-D", "Nobody", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionEast))

	now := epoch
	for range 10 {
		h.tick(context.Background(), now)
		now = now.Add(15 * time.Second)
	}

	assert.Equal(t, []string{"ZZ101-D"}, h.Stats().Cancelled)
	assert.Equal(t, 4, h.Stats().Requeued)
	p, w := h.sched.Len()
	assert.Zero(t, p)
	assert.Zero(t, w)
}

func TestBusyRunwayMovesToWaitingQueue(t *testing.T) {
	h := newHarness(t, nil)
	blocker := runway.Request{FlightID: "BLOCK", Direction: v1alpha1.DirectionWest, Type: v1alpha1.FlightTypeCommercial, Priority: 4}
	require.True(t, h.runways.TryAcquire(v1alpha1.RunwayB, blocker))

	h.sched.Add(departure("AX101-D", "A", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionEast))
	h.tick(context.Background(), epoch)

	p, w := h.sched.Len()
	assert.Zero(t, p)
	assert.Equal(t, 1, w)
	for _, a := range h.fleet.Aircraft() {
		assert.True(t, a.Snapshot().Available, a.ID)
	}
	_, flights := mustAirline(t, h.fleet, "A").Counts()
	assert.Zero(t, flights, "admission is handed back")

	require.True(t, h.runways.Release(v1alpha1.RunwayB, "BLOCK"))
	h.tick(context.Background(), epoch.Add(15*time.Second))
	require.NoError(t, h.tasks.Wait())

	st := h.Stats()
	assert.Equal(t, 1, st.Flights)
	assert.Equal(t, 1, st.Requeued)
}

func TestEmergencyRetriesThenWaits(t *testing.T) {
	h := newHarness(t, nil)
	for _, kind := range []v1alpha1.RunwayType{v1alpha1.RunwayB, v1alpha1.RunwayC} {
		req := runway.Request{FlightID: "EM-" + kind.String(), Direction: v1alpha1.DirectionEast, Type: v1alpha1.FlightTypeEmergency, Priority: 1}
		require.True(t, h.runways.TryAcquire(kind, req))
	}

	e := departure("AX900-D", "A", v1alpha1.FlightTypeEmergency, v1alpha1.DirectionEast)
	require.Equal(t, schedule.PriorityEmergency, e.Priority)
	h.sched.Add(e)

	before := counterValue(t, metrics.EmergencyRunwayRetries)
	h.tick(context.Background(), epoch)
	retries := counterValue(t, metrics.EmergencyRunwayRetries) - before
	assert.Equal(t, float64(h.cfg.EmergencyRetries), retries, "one first attempt plus every retry")

	_, w := h.sched.Len()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, e.RescheduleCount)
	assert.Nil(t, e.Aircraft)
}

func TestEmergencyRetriesDisabled(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.EmergencyRetries = 0 })
	for _, kind := range []v1alpha1.RunwayType{v1alpha1.RunwayB, v1alpha1.RunwayC} {
		req := runway.Request{FlightID: "EM-" + kind.String(), Direction: v1alpha1.DirectionEast, Type: v1alpha1.FlightTypeEmergency, Priority: 1}
		require.True(t, h.runways.TryAcquire(kind, req))
	}

	h.sched.Add(departure("AX900-D", "A", v1alpha1.FlightTypeEmergency, v1alpha1.DirectionEast))
	before := counterValue(t, metrics.EmergencyRunwayRetries)
	h.tick(context.Background(), epoch)
	assert.Zero(t, counterValue(t, metrics.EmergencyRunwayRetries)-before)

	_, w := h.sched.Len()
	assert.Equal(t, 1, w)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestEmergencyPreemptsRunway(t *testing.T) {
	h := newHarness(t, nil)
	blocker := runway.Request{FlightID: "BLOCK", Direction: v1alpha1.DirectionWest, Type: v1alpha1.FlightTypeCommercial, Priority: 4}
	require.True(t, h.runways.TryAcquire(v1alpha1.RunwayB, blocker))

	h.sched.Add(departure("AX900-D", "A", v1alpha1.FlightTypeEmergency, v1alpha1.DirectionEast))
	h.tick(context.Background(), epoch)
	require.NoError(t, h.tasks.Wait())

	assert.Equal(t, 1, h.Stats().Flights)
	assert.False(t, h.runways.Release(v1alpha1.RunwayB, "BLOCK"), "the blocker was evicted")
}

func TestPromotionOnEmergencyAircraft(t *testing.T) {
	h := newHarness(t, nil)
	e := departure("AX900-D", "A", v1alpha1.FlightTypeEmergency, v1alpha1.DirectionEast)
	e.Priority = schedule.PriorityCargo
	h.sched.Add(e)

	h.tick(context.Background(), epoch)
	require.NoError(t, h.tasks.Wait())

	assert.Equal(t, schedule.PriorityEmergency, e.Priority)
	require.NotNil(t, e.Aircraft)
	assert.Equal(t, "X-3", e.Aircraft.ID)
}

func TestAirlineCapacityReschedules(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Phase.Clock = clocktesting.NewFakeClock(epoch)
		c.Phase.PhaseDelay = time.Hour
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.sched.Add(arrival("SO101-A", "Solo", v1alpha1.FlightTypeCargo, v1alpha1.DirectionNorth))
	h.tick(ctx, epoch)

	second := arrival("SO102-A", "Solo", v1alpha1.FlightTypeCargo, v1alpha1.DirectionSouth)
	h.sched.Add(second)
	h.tick(ctx, epoch)

	assert.Equal(t, 1, second.RescheduleCount)
	p, _ := h.sched.Len()
	assert.Equal(t, 1, p, "capacity refusal goes back to the primary queue")

	cancel()
	require.NoError(t, h.tasks.Wait())
	assert.Equal(t, 1, h.Stats().Aborted)
}

func TestTaskLimitDiscardsFlight(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.MaxConcurrentFlights = 1
		c.Phase.Clock = clocktesting.NewFakeClock(epoch)
		c.Phase.PhaseDelay = time.Hour
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.sched.Add(departure("AX101-D", "A", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionEast))
	h.tick(ctx, epoch)
	h.sched.Add(arrival("AX102-A", "A", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionNorth))
	h.tick(ctx, epoch)

	st := h.Stats()
	assert.Equal(t, []string{"AX102-A"}, st.Discarded)
	assert.False(t, st.Runways[0].Occupied, "runway A is handed back")
	assert.True(t, st.Runways[1].Occupied)

	available := 0
	for _, a := range h.fleet.Aircraft() {
		if a.Snapshot().Available {
			available++
		}
	}
	assert.Equal(t, 4, available, "only the running flight holds an aircraft")

	cancel()
	require.NoError(t, h.tasks.Wait())
}

func TestFailedSendIsDropped(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Phase.ForcedViolators = []string{"X-1"} })
	h.sink.err = wire.ErrPartialWrite
	h.sched.Add(departure("AX101-D", "A", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionEast))

	h.tick(context.Background(), epoch)
	require.NoError(t, h.tasks.Wait())

	assert.Empty(t, h.sink.records())
	issued, _ := h.tracker.Counts()
	assert.Equal(t, 1, issued)
}

func TestDrainClearances(t *testing.T) {
	h := newHarness(t, nil)
	n := h.tracker.Issue(violation.Subject{FlightNumber: "AX101-D", Airline: "A"}, phase.Violation{Phase: v1alpha1.PhaseTaxiing})

	h.source.push(
		wire.ViolationCleared{ViolationID: n.ID, FlightNumber: "AX101-D"},
		wire.ViolationCleared{ViolationID: n.ID, FlightNumber: "AX101-D"},
		wire.ViolationCleared{ViolationID: "AVN-1-1", FlightNumber: "ZZ"},
		fmt.Errorf("%w: got 10 of 48 bytes", wire.ErrShortRecord),
		wire.ViolationCleared{ViolationID: "AVN-1-2", FlightNumber: "ZZ"},
	)
	h.drainClearances(context.Background())

	_, active := h.tracker.Counts()
	assert.Zero(t, active)
	h.source.mu.Lock()
	assert.Len(t, h.source.queue, 1, "a read error ends the drain")
	h.source.mu.Unlock()
}

func TestListenStopsWithContext(t *testing.T) {
	h := newHarness(t, nil)
	n := h.tracker.Issue(violation.Subject{FlightNumber: "AX101-D", Airline: "A"}, phase.Violation{Phase: v1alpha1.PhaseTaxiing})
	h.source.push(wire.ViolationCleared{ViolationID: n.ID, FlightNumber: "AX101-D"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Listen(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, active := h.tracker.Counts()
		return active == 0
	}, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestRunStopsAtDeadline(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Duration = 50 * time.Millisecond
		c.Phase.ForcedViolators = []string{"X-1"}
	})
	h.sched.Add(departure("AX101-D", "A", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionEast))

	require.NoError(t, h.Run(context.Background()))
	assert.Equal(t, 1, h.Stats().Flights)
	assert.Len(t, h.sink.records(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Duration = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := h.Run(ctx)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
	assert.NoError(t, err)
}

func TestReport(t *testing.T) {
	h := newHarness(t, nil)
	h.sched.Add(departure("ZZ101-D", "Nobody", v1alpha1.FlightTypeCommercial, v1alpha1.DirectionEast))
	now := epoch
	for range 6 {
		h.tick(context.Background(), now)
		now = now.Add(15 * time.Second)
	}

	var buf bytes.Buffer
	require.NoError(t, h.Stats().Report(&buf))
	out := buf.String()
	assert.Contains(t, out, "FLIGHTS SIMULATED:")
	assert.Contains(t, out, "ZZ101-D")
	assert.Contains(t, out, "Solo")
	assert.Contains(t, out, "RWY-C")
}
