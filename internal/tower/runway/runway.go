// Package runway allocates the three runways to flights. Acquisition never
// blocks: a busy runway is reported as unavailable and the caller moves on.
package runway

import (
	"sync"

	"github.com/autopeer-io/airtraffic/internal/pkg/metrics"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/log"
)

// Request describes the flight asking for a runway.
type Request struct {
	FlightID  string
	Direction v1alpha1.Direction
	Type      v1alpha1.FlightType
	Priority  int
	Arrival   bool
}

// Occupant is the flight currently holding a runway.
type Occupant struct {
	FlightID  string
	Type      v1alpha1.FlightType
	Direction v1alpha1.Direction
}

// Status is a point-in-time view of one runway.
type Status struct {
	Kind     v1alpha1.RunwayType
	Occupied bool
	Occupant Occupant
}

// Runway is one runway with its own lock. At most one flight occupies it.
type Runway struct {
	Kind v1alpha1.RunwayType

	mu       sync.Mutex
	occupied bool
	occupant Occupant
}

func newRunway(kind v1alpha1.RunwayType) *Runway {
	return &Runway{Kind: kind}
}

// Eligible reports whether the runway kind accepts req, regardless of occupancy.
//
// A takes arrivals from North or South, B takes departures to East or West.
// C takes cargo and emergencies freely; other flights with priority above 2
// must still match their direction to their arrival flag.
func Eligible(kind v1alpha1.RunwayType, req Request) bool {
	switch kind {
	case v1alpha1.RunwayA:
		return req.Arrival && req.Direction.IsArrivalQuadrant()
	case v1alpha1.RunwayB:
		return !req.Arrival && req.Direction.IsDepartureQuadrant()
	case v1alpha1.RunwayC:
		if req.Type == v1alpha1.FlightTypeCargo || req.Type == v1alpha1.FlightTypeEmergency || req.Priority <= 2 {
			return true
		}
		if req.Arrival {
			return req.Direction.IsArrivalQuadrant()
		}
		return req.Direction.IsDepartureQuadrant()
	}
	return false
}

// tryAcquire installs req as the occupant. It fails immediately if the
// runway lock is contended, if req is not eligible, or if the runway is held
// by a flight req cannot preempt. An emergency preempts any non-emergency
// occupant; the evicted occupant is returned.
func (r *Runway) tryAcquire(req Request) (evicted *Occupant, ok bool) {
	if !r.mu.TryLock() {
		return nil, false
	}
	defer r.mu.Unlock()

	if !Eligible(r.Kind, req) {
		return nil, false
	}

	if r.occupied {
		if r.occupant.Type == v1alpha1.FlightTypeEmergency || req.Type != v1alpha1.FlightTypeEmergency {
			return nil, false
		}
		prev := r.occupant
		evicted = &prev
	}

	r.occupied = true
	r.occupant = Occupant{FlightID: req.FlightID, Type: req.Type, Direction: req.Direction}
	return evicted, true
}

// release frees the runway if flightID still occupies it. A flight that
// was preempted releases nothing.
func (r *Runway) release(flightID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.occupied || r.occupant.FlightID != flightID {
		return false
	}
	r.occupied = false
	r.occupant = Occupant{}
	return true
}

func (r *Runway) status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Kind: r.Kind, Occupied: r.occupied, Occupant: r.occupant}
}

// Allocator owns the runways.
type Allocator struct {
	runways map[v1alpha1.RunwayType]*Runway
	logger  log.Logger
}

func NewAllocator(logger log.Logger) *Allocator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Allocator{
		runways: map[v1alpha1.RunwayType]*Runway{
			v1alpha1.RunwayA: newRunway(v1alpha1.RunwayA),
			v1alpha1.RunwayB: newRunway(v1alpha1.RunwayB),
			v1alpha1.RunwayC: newRunway(v1alpha1.RunwayC),
		},
		logger: logger,
	}
}

// TryAcquire attempts one runway without blocking.
func (a *Allocator) TryAcquire(kind v1alpha1.RunwayType, req Request) bool {
	rw, ok := a.runways[kind]
	if !ok {
		return false
	}
	evicted, ok := rw.tryAcquire(req)
	if !ok {
		return false
	}
	if evicted != nil {
		metrics.RunwayPreemptions.WithLabelValues(kind.String()).Inc()
		a.logger.Warn("Runway preempted by emergency", "runway", kind, "flight", req.FlightID, "evicted", evicted.FlightID, "evictedType", evicted.Type)
	}
	a.logger.Info("Runway granted", "runway", kind, "flight", req.FlightID, "type", req.Type, "direction", req.Direction, "priority", req.Priority)
	return true
}

// Release frees kind if flightID holds it.
func (a *Allocator) Release(kind v1alpha1.RunwayType, flightID string) bool {
	rw, ok := a.runways[kind]
	if !ok {
		return false
	}
	if !rw.release(flightID) {
		a.logger.Debug("Stale runway release ignored", "runway", kind, "flight", flightID)
		return false
	}
	a.logger.Info("Runway released", "runway", kind, "flight", flightID)
	return true
}

// Preferences returns the runways a flight tries, in order. Cargo only uses
// C. Priority 1-2 and emergencies try their natural runway, then C. All
// others only try their natural runway.
func Preferences(req Request) []v1alpha1.RunwayType {
	natural := v1alpha1.RunwayB
	if req.Arrival {
		natural = v1alpha1.RunwayA
	}
	switch {
	case req.Type == v1alpha1.FlightTypeCargo:
		return []v1alpha1.RunwayType{v1alpha1.RunwayC}
	case req.Priority <= 2 || req.Type == v1alpha1.FlightTypeEmergency:
		return []v1alpha1.RunwayType{natural, v1alpha1.RunwayC}
	default:
		return []v1alpha1.RunwayType{natural}
	}
}

// Acquire walks the preference list of req and returns the runway granted.
func (a *Allocator) Acquire(req Request) (v1alpha1.RunwayType, bool) {
	for _, kind := range Preferences(req) {
		if a.TryAcquire(kind, req) {
			return kind, true
		}
	}
	return 0, false
}

// Status returns the runways in A, B, C order.
func (a *Allocator) Status() []Status {
	out := make([]Status, 0, len(a.runways))
	for _, kind := range []v1alpha1.RunwayType{v1alpha1.RunwayA, v1alpha1.RunwayB, v1alpha1.RunwayC} {
		out = append(out, a.runways[kind].status())
	}
	return out
}
