package fleet

import (
	"fmt"
	"sync"
)

// Airline carries the capacity limits of one operator. Counters never exceed
// their maxima.
type Airline struct {
	Name        string
	MaxAircraft int
	MaxFlights  int

	mu            sync.Mutex
	aircraft      int
	activeFlights int
}

func NewAirline(name string, maxAircraft, maxFlights int) *Airline {
	return &Airline{Name: name, MaxAircraft: maxAircraft, MaxFlights: maxFlights}
}

// AddAircraft counts one more registered aircraft.
func (a *Airline) AddAircraft() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aircraft >= a.MaxAircraft {
		return fmt.Errorf("%w: %s has %d/%d aircraft", ErrAirlineFull, a.Name, a.aircraft, a.MaxAircraft)
	}
	a.aircraft++
	return nil
}

// RemoveAircraft frees one aircraft slot.
func (a *Airline) RemoveAircraft() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aircraft > 0 {
		a.aircraft--
	}
}

// AdmitFlight reserves one active-flight slot.
func (a *Airline) AdmitFlight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeFlights >= a.MaxFlights {
		return false
	}
	a.activeFlights++
	return true
}

// CompleteFlight returns a slot reserved by AdmitFlight.
func (a *Airline) CompleteFlight() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeFlights > 0 {
		a.activeFlights--
	}
}

// Counts returns the registered aircraft and the active flights.
func (a *Airline) Counts() (aircraft, flights int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aircraft, a.activeFlights
}
