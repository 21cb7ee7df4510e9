package fleet

import (
	"sync"

	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
)

// State is the mutable part of an aircraft.
type State struct {
	Type     v1alpha1.FlightType
	Phase    v1alpha1.Phase
	Speed    float64
	Altitude float64
	X, Y     float64

	HasActiveViolation bool
	HasFault           bool
	InAir              bool
	Available          bool
}

// Status is a point-in-time copy of an aircraft.
type Status struct {
	ID           string
	Airline      string
	BaselineType v1alpha1.FlightType
	State
}

// Aircraft is one airframe of the roster. Identity and airline link never
// change; State is guarded by the aircraft's own lock.
type Aircraft struct {
	ID       string
	Airline  string
	baseline v1alpha1.FlightType

	// airline indexes the registry's airline table. The table owns airlines.
	airline int

	mu    sync.RWMutex
	state State
}

func newAircraft(id, airline string, index int, t v1alpha1.FlightType) *Aircraft {
	a := &Aircraft{ID: id, Airline: airline, airline: index, baseline: t}
	a.state = baselineState(t)
	return a
}

func baselineState(t v1alpha1.FlightType) State {
	return State{
		Type:      t,
		Phase:     v1alpha1.PhaseWaiting,
		Available: true,
	}
}

// BaselineType returns the type the aircraft was registered with.
func (a *Aircraft) BaselineType() v1alpha1.FlightType { return a.baseline }

// Snapshot returns a consistent copy of the aircraft.
func (a *Aircraft) Snapshot() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{ID: a.ID, Airline: a.Airline, BaselineType: a.baseline, State: a.state}
}

// Type returns the current, possibly promoted, type.
func (a *Aircraft) Type() v1alpha1.FlightType {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Type
}

// Update applies fn to the state under the write lock.
func (a *Aircraft) Update(fn func(s *State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.state)
}

// MarkViolation flips the active-violation flag and reports whether this
// call was the one that set it.
func (a *Aircraft) MarkViolation() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.HasActiveViolation {
		return false
	}
	a.state.HasActiveViolation = true
	return true
}

// ResetForNextFlight restores the baseline state, keeping identity and airline.
func (a *Aircraft) ResetForNextFlight() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = baselineState(a.baseline)
}

// matches reports whether the aircraft can fly a flight of type t for airline.
func (a *Aircraft) matches(t v1alpha1.FlightType, airline string) bool {
	if a.Airline != airline {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.state
	return s.Type == t && s.Available && !s.HasFault && !s.HasActiveViolation
}

// claim marks a matching aircraft unavailable. It fails if another caller
// claimed it first.
func (a *Aircraft) claim() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.Available {
		return false
	}
	a.state.Available = false
	return true
}
