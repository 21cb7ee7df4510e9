// Package fleet owns the airlines and the aircraft roster, and hands out
// aircraft to flights.
package fleet

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/log"
)

var (
	ErrDuplicateAircraft = errors.New("fleet: duplicate aircraft id")
	ErrDuplicateAirline  = errors.New("fleet: duplicate airline")
	ErrUnknownAirline    = errors.New("fleet: unknown airline")
	ErrAirlineFull       = errors.New("fleet: airline aircraft capacity reached")
	ErrUnknownAircraft   = errors.New("fleet: unknown aircraft")
	ErrAircraftInUse     = errors.New("fleet: aircraft is flying")
)

// AirlineStatus is one row of the fleet report.
type AirlineStatus struct {
	Name          string
	Aircraft      int
	MaxAircraft   int
	ActiveFlights int
	MaxFlights    int
	InAir         int
}

// Registry is the sole owner of airlines. Aircraft refer to their airline by
// index into the airline table.
//
// The registry lock guards the tables and the per-type round-robin cursors,
// and is only held for lookup and cursor update.
type Registry struct {
	logger log.Logger

	mu       sync.Mutex
	airlines []*Airline
	byName   map[string]int
	aircraft []*Aircraft
	ids      map[string]*Aircraft
	cursors  map[v1alpha1.FlightType]int
}

func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Registry{
		logger:  logger,
		byName:  map[string]int{},
		ids:     map[string]*Aircraft{},
		cursors: map[v1alpha1.FlightType]int{},
	}
}

// AddAirline registers an airline. Names are unique.
func (r *Registry) AddAirline(name string, maxAircraft, maxFlights int) (*Airline, error) {
	if name == "" || maxAircraft < 1 || maxFlights < 1 {
		return nil, fmt.Errorf("fleet: invalid airline %q (aircraft %d, flights %d)", name, maxAircraft, maxFlights)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAirline, name)
	}
	a := NewAirline(name, maxAircraft, maxFlights)
	r.byName[name] = len(r.airlines)
	r.airlines = append(r.airlines, a)
	return a, nil
}

// Register adds an aircraft to the roster. Aircraft ids are unique across
// the whole roster; a collision is a configuration error.
func (r *Registry) Register(id string, t v1alpha1.FlightType, airline string) (*Aircraft, error) {
	if id == "" {
		return nil, fmt.Errorf("fleet: empty aircraft id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.ids[id]; ok {
		return nil, fmt.Errorf("%w: %s already registered for %s as %s", ErrDuplicateAircraft, id, prev.Airline, prev.BaselineType())
	}
	idx, ok := r.byName[airline]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAirline, airline)
	}
	if err := r.airlines[idx].AddAircraft(); err != nil {
		return nil, err
	}

	a := newAircraft(id, airline, idx, t)
	r.aircraft = append(r.aircraft, a)
	r.ids[id] = a
	r.logger.Debug("Aircraft registered", "aircraft", id, "airline", airline, "type", t)
	return a, nil
}

// Deregister retires an aircraft from the roster and frees its slot in the
// airline. An aircraft that is assigned to a flight cannot be retired.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.ids[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAircraft, id)
	}
	if !a.claim() {
		return fmt.Errorf("%w: %s", ErrAircraftInUse, id)
	}

	idx := slices.Index(r.aircraft, a)
	r.aircraft = slices.Delete(r.aircraft, idx, idx+1)
	delete(r.ids, id)
	for t, c := range r.cursors {
		if c > idx {
			r.cursors[t] = c - 1
		}
	}
	r.airlines[a.airline].RemoveAircraft()
	r.logger.Debug("Aircraft deregistered", "aircraft", id, "airline", a.Airline)
	return nil
}

// Airline looks up an airline by name.
func (r *Registry) Airline(name string) (*Airline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.airlines[idx], true
}

// AirlineOf resolves the airline link of an aircraft.
func (r *Registry) AirlineOf(a *Aircraft) *Airline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.airlines[a.airline]
}

// Airlines returns the airline names in registration order.
func (r *Registry) Airlines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.airlines))
	for i, a := range r.airlines {
		names[i] = a.Name
	}
	return names
}

// Aircraft returns the roster in registration order.
func (r *Registry) Aircraft() []*Aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Aircraft(nil), r.aircraft...)
}

// Acquire finds a free aircraft of type t belonging to airline, scanning the
// roster round-robin from the cursor of t. An Emergency flight falls back to
// a Commercial aircraft of the same airline. The returned aircraft is marked
// unavailable; nil means none is free.
func (r *Registry) Acquire(t v1alpha1.FlightType, airline string) *Aircraft {
	if a := r.acquire(t, airline); a != nil {
		return a
	}
	if t == v1alpha1.FlightTypeEmergency {
		if a := r.acquire(v1alpha1.FlightTypeCommercial, airline); a != nil {
			r.logger.Info("Emergency flight falls back to commercial aircraft", "aircraft", a.ID, "airline", airline)
			return a
		}
	}
	return nil
}

func (r *Registry) acquire(t v1alpha1.FlightType, airline string) *Aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.aircraft)
	if n == 0 {
		return nil
	}
	start := r.cursors[t] % n
	for i := range n {
		idx := (start + i) % n
		a := r.aircraft[idx]
		if !a.matches(t, airline) || !a.claim() {
			continue
		}
		r.cursors[t] = (idx + 1) % n
		return a
	}
	return nil
}

// Release makes an aircraft available again without touching the rest of
// its state.
func (r *Registry) Release(a *Aircraft) {
	if a == nil {
		return
	}
	a.Update(func(s *State) { s.Available = true })
}

// Status reports capacity usage per airline.
func (r *Registry) Status() []AirlineStatus {
	r.mu.Lock()
	airlines := append([]*Airline(nil), r.airlines...)
	aircraft := append([]*Aircraft(nil), r.aircraft...)
	r.mu.Unlock()

	inAir := map[string]int{}
	for _, a := range aircraft {
		if a.Snapshot().InAir {
			inAir[a.Airline]++
		}
	}

	out := make([]AirlineStatus, 0, len(airlines))
	for _, a := range airlines {
		n, flights := a.Counts()
		out = append(out, AirlineStatus{
			Name:          a.Name,
			Aircraft:      n,
			MaxAircraft:   a.MaxAircraft,
			ActiveFlights: flights,
			MaxFlights:    a.MaxFlights,
			InAir:         inAir[a.Name],
		})
	}
	return out
}
