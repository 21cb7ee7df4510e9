// Package phase drives one aircraft through its arrival or departure cycle.
package phase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	fsmutil "github.com/autopeer-io/airtraffic/internal/pkg/util/fsm"
	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/rand"
)

const (
	EventHold     = "hold"
	EventApproach = "approach"
	EventLand     = "land"
	EventTaxi     = "taxi"
	EventPark     = "park"
	EventTakeoff  = "takeoff"
	EventClimb    = "climb"
	EventCruise   = "cruise"
)

const (
	landingSteps     = 5
	landingDecrement = 40
	takeoffStep      = 60
	takeoffMaxSpeed  = 290
	takeoffClimb     = 500
	forcedOverspeed  = 600
	perturbation     = 200
	perturbChance    = 10
	emergencyChance  = 2
	groundFaultPct   = 50
)

var (
	// ErrArrivalTakeoff is returned when an arrival cycle tries to take off.
	ErrArrivalTakeoff = errors.New("phase: arrival cycle cannot take off")
	// ErrFaulted is returned when a faulted aircraft tries to leave taxiing.
	ErrFaulted = errors.New("phase: aircraft has a ground fault")
)

// Options carries the dependencies and pacing shared by every machine.
type Options struct {
	Random rand.Source
	Clock  clock.Clock
	Logger log.Logger

	// PhaseDelay is the pause after each phase.
	PhaseDelay time.Duration
	// StepDelay is the pause between landing and take-off steps.
	StepDelay time.Duration

	// ForcedViolators lists aircraft whose speed is pushed over the limit
	// while taxiing.
	ForcedViolators []string
}

// Outcome is the result of one simulated cycle.
type Outcome struct {
	// Completed is true when the cycle reached its final phase.
	Completed bool
	// Faulted is true when a ground fault aborted the cycle.
	Faulted bool
	// Violation is the first rule breach of the cycle, if any.
	Violation *Violation
}

// Machine is the phase state machine of one aircraft for one cycle.
type Machine struct {
	*fsm.FSM

	aircraft *fleet.Aircraft
	arrival  bool
	forced   bool

	rnd    rand.Source
	clock  clock.Clock
	logger log.Logger
	opts   Options

	mu        sync.Mutex
	violation *Violation
}

// New returns a machine for a. Arrivals start in Waiting, departures at the gate.
func New(a *fleet.Aircraft, arrival bool, opts Options) *Machine {
	if opts.Random == nil {
		opts.Random = rand.New(0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	m := &Machine{
		aircraft: a,
		arrival:  arrival,
		forced:   slices.Contains(opts.ForcedViolators, a.ID),
		rnd:      opts.Random,
		clock:    opts.Clock,
		logger:   opts.Logger.WithValues("aircraft", a.ID),
		opts:     opts,
	}

	initial := v1alpha1.PhaseWaiting
	if !arrival {
		initial = v1alpha1.PhaseAtGate
	}

	events := fsm.Events{
		{Name: EventHold, Src: []string{string(v1alpha1.PhaseWaiting)}, Dst: string(v1alpha1.PhaseHolding)},
		{Name: EventApproach, Src: []string{string(v1alpha1.PhaseHolding)}, Dst: string(v1alpha1.PhaseApproaching)},
		{Name: EventLand, Src: []string{string(v1alpha1.PhaseApproaching)}, Dst: string(v1alpha1.PhaseLanding)},
		{Name: EventTaxi, Src: []string{string(v1alpha1.PhaseLanding), string(v1alpha1.PhaseAtGate)}, Dst: string(v1alpha1.PhaseTaxiing)},
		{Name: EventPark, Src: []string{string(v1alpha1.PhaseTaxiing)}, Dst: string(v1alpha1.PhaseAtGate)},
		{Name: EventTakeoff, Src: []string{string(v1alpha1.PhaseTaxiing)}, Dst: string(v1alpha1.PhaseTakingOff)},
		{Name: EventClimb, Src: []string{string(v1alpha1.PhaseTakingOff)}, Dst: string(v1alpha1.PhaseClimbing)},
		{Name: EventCruise, Src: []string{string(v1alpha1.PhaseClimbing)}, Dst: string(v1alpha1.PhaseCruising)},
	}

	callbacks := fsm.Callbacks{
		// Guards (before_...): refuse transitions the cycle does not allow.
		"before_" + EventTakeoff: fsmutil.Guard(m.GuardDeparture),
		"before_" + EventPark:    fsmutil.Guard(m.GuardNoFault),

		// Side-Effects (enter_...): apply the envelope of the new phase.
		"enter_state": fsmutil.WrapEvent(m.ActionEnterPhase),
	}

	m.FSM = fsm.NewFSM(string(initial), events, callbacks)
	return m
}

// GuardDeparture refuses take-off for an arrival cycle.
func (m *Machine) GuardDeparture(_ context.Context, _ *fsm.Event) error {
	if m.arrival {
		return ErrArrivalTakeoff
	}
	return nil
}

// GuardNoFault refuses parking a faulted aircraft.
func (m *Machine) GuardNoFault(_ context.Context, _ *fsm.Event) error {
	if m.aircraft.Snapshot().HasFault {
		return ErrFaulted
	}
	return nil
}

// ActionEnterPhase applies the speed, altitude and position rules of the
// phase just entered.
func (m *Machine) ActionEnterPhase(_ context.Context, e *fsm.Event) error {
	m.enter(v1alpha1.Phase(e.Dst))
	return nil
}

// Phase returns the current phase.
func (m *Machine) Phase() v1alpha1.Phase {
	return v1alpha1.Phase(m.Current())
}

// Violation returns the first violation of the cycle, or nil.
func (m *Machine) Violation() *Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.violation == nil {
		return nil
	}
	v := *m.violation
	return &v
}

func (m *Machine) enter(p v1alpha1.Phase) {
	inAir := p.InAir()
	m.aircraft.Update(func(s *fleet.State) {
		s.Phase = p
		s.InAir = inAir
	})

	if inAir {
		m.maybeDeclareEmergency(p)
	}
	m.logger.Info("Phase changed", "phase", p, "inAir", inAir)

	m.move(p)

	// Landing and take-off set their speed in the roll that follows, so the
	// speed carried over from the previous phase is not checked here.
	env := envelopes[p]
	switch p {
	case v1alpha1.PhaseLanding:
		m.placeAt(float64(rand.Range(m.rnd, env.minAlt, env.maxAlt)))
	case v1alpha1.PhaseTakingOff:
		m.placeAt(0)
	default:
		m.UpdateSpeed(float64(rand.Range(m.rnd, env.minSpeed, env.maxSpeed)))
		m.SetAltitude(float64(rand.Range(m.rnd, env.minAlt, env.maxAlt)))
	}
}

func (m *Machine) maybeDeclareEmergency(p v1alpha1.Phase) {
	if m.aircraft.Type() == v1alpha1.FlightTypeEmergency || !rand.Chance(m.rnd, emergencyChance) {
		return
	}
	m.aircraft.Update(func(s *fleet.State) { s.Type = v1alpha1.FlightTypeEmergency })
	m.logger.Warn("Sudden emergency declared", "phase", p)
}

func (m *Machine) move(p v1alpha1.Phase) {
	switch {
	case p.InAir():
		m.walk(100)
	case p == v1alpha1.PhaseTaxiing:
		m.walk(10)
	default:
		m.aircraft.Update(func(s *fleet.State) { s.X, s.Y = 0, 0 })
	}
}

// walk moves the aircraft by up to step units on each axis.
func (m *Machine) walk(step int) {
	dx := float64(rand.Range(m.rnd, -step, step))
	dy := float64(rand.Range(m.rnd, -step, step))
	m.aircraft.Update(func(s *fleet.State) {
		s.X += dx
		s.Y += dy
	})
}

// UpdateSpeed sets the speed, applying the random perturbation and the
// forced taxi overspeed, then checks the phase rules.
func (m *Machine) UpdateSpeed(speed float64) {
	p := m.aircraft.Snapshot().Phase

	if rand.Chance(m.rnd, perturbChance) {
		adj := rand.Range(m.rnd, -perturbation, perturbation)
		speed += float64(adj)
		m.logger.Info("Random speed modification", "adjustment", adj, "speed", speed, "phase", p)
	}
	if p == v1alpha1.PhaseTaxiing && m.forced {
		speed += forcedOverspeed
		m.logger.Warn("Forced taxi overspeed", "speed", speed, "phase", p)
	}

	m.aircraft.Update(func(s *fleet.State) { s.Speed = speed })
	m.logger.Info("Speed updated", "speed", speed, "phase", p)
	m.CheckViolation()
}

// SetAltitude sets the altitude and checks the phase rules.
func (m *Machine) SetAltitude(alt float64) {
	m.aircraft.Update(func(s *fleet.State) { s.Altitude = alt })
	m.logger.Debug("Altitude updated", "altitude", alt)
	m.CheckViolation()
}

func (m *Machine) placeAt(alt float64) {
	m.aircraft.Update(func(s *fleet.State) { s.Altitude = alt })
	m.logger.Debug("Altitude updated", "altitude", alt)
}

// CheckViolation compares the aircraft with the legal ranges of its phase.
// Once a violation is active it is not evaluated again.
func (m *Machine) CheckViolation() bool {
	s := m.aircraft.Snapshot()
	if s.HasActiveViolation {
		return true
	}
	reason := evaluate(s.State)
	if reason == "" {
		return false
	}
	if !m.aircraft.MarkViolation() {
		return true
	}

	v := &Violation{
		Phase:            s.Phase,
		Speed:            s.Speed,
		Altitude:         s.Altitude,
		X:                s.X,
		Y:                s.Y,
		PermissibleSpeed: PermissibleSpeed(s.Phase),
		Reason:           reason,
	}
	m.mu.Lock()
	m.violation = v
	m.mu.Unlock()

	m.logger.Warn("Violation triggered", "phase", s.Phase, "reason", reason)
	return true
}

// InjectGroundFault flags a ground fault with 50% probability.
func (m *Machine) InjectGroundFault() bool {
	if !rand.Chance(m.rnd, groundFaultPct) {
		return false
	}
	m.aircraft.Update(func(s *fleet.State) { s.HasFault = true })
	m.logger.Warn("Ground fault", "phase", m.Phase())
	return true
}

// Arrive runs Waiting, Holding, Approaching, Landing, Taxiing and, unless a
// ground fault occurs while taxiing, AtGate.
func (m *Machine) Arrive(ctx context.Context) (Outcome, error) {
	if !m.arrival {
		return Outcome{}, fmt.Errorf("phase: %s is on a departure cycle", m.aircraft.ID)
	}

	for _, ev := range []string{EventHold, EventApproach, EventLand} {
		if err := m.step(ctx, ev); err != nil {
			return m.outcome(false, false), err
		}
	}
	if err := m.landingRoll(ctx); err != nil {
		return m.outcome(false, false), err
	}
	if err := m.step(ctx, EventTaxi); err != nil {
		return m.outcome(false, false), err
	}
	if m.InjectGroundFault() {
		return m.outcome(false, true), nil
	}
	if err := m.step(ctx, EventPark); err != nil {
		return m.outcome(false, false), err
	}
	return m.outcome(true, false), nil
}

// Depart runs AtGate, Taxiing and, unless a ground fault occurs while
// taxiing, TakingOff, Climbing and Cruising.
func (m *Machine) Depart(ctx context.Context) (Outcome, error) {
	if m.arrival {
		return Outcome{}, fmt.Errorf("phase: %s is on an arrival cycle", m.aircraft.ID)
	}

	m.enter(v1alpha1.PhaseAtGate)
	if err := m.pause(ctx, m.opts.PhaseDelay); err != nil {
		return m.outcome(false, false), err
	}
	if err := m.step(ctx, EventTaxi); err != nil {
		return m.outcome(false, false), err
	}
	if m.InjectGroundFault() {
		return m.outcome(false, true), nil
	}
	if err := m.step(ctx, EventTakeoff); err != nil {
		return m.outcome(false, false), err
	}
	if err := m.takeoffRoll(ctx); err != nil {
		return m.outcome(false, false), err
	}
	for _, ev := range []string{EventClimb, EventCruise} {
		if err := m.step(ctx, ev); err != nil {
			return m.outcome(false, false), err
		}
	}
	return m.outcome(true, false), nil
}

func (m *Machine) step(ctx context.Context, event string) error {
	if err := m.Event(ctx, event); err != nil {
		return fmt.Errorf("%s %s: %w", m.aircraft.ID, event, err)
	}
	return m.pause(ctx, m.opts.PhaseDelay)
}

// landingRoll decelerates from 240 km/h by 40 km/h per step while the
// altitude decays by a fifth each step.
func (m *Machine) landingRoll(ctx context.Context) error {
	top := float64(envelopes[v1alpha1.PhaseLanding].maxSpeed)
	for i := range landingSteps {
		m.UpdateSpeed(top - float64(i*landingDecrement))
		alt := m.aircraft.Snapshot().Altitude
		m.SetAltitude(alt - alt/5)
		if err := m.pause(ctx, m.opts.StepDelay); err != nil {
			return err
		}
	}
	return nil
}

// takeoffRoll accelerates from 0 in 60 km/h steps while climbing 500 m per step.
func (m *Machine) takeoffRoll(ctx context.Context) error {
	for speed := 0; speed <= takeoffMaxSpeed; speed += takeoffStep {
		m.UpdateSpeed(float64(speed))
		alt := m.aircraft.Snapshot().Altitude
		m.SetAltitude(alt + takeoffClimb)
		if err := m.pause(ctx, m.opts.StepDelay); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
		return nil
	}
}

func (m *Machine) outcome(completed, faulted bool) Outcome {
	return Outcome{Completed: completed, Faulted: faulted, Violation: m.Violation()}
}
