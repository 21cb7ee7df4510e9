package schedule

import (
	"cmp"
	"time"

	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/rand"
)

// Priorities, lowest value first.
const (
	PriorityEmergency  = 1
	PriorityLowFuel    = 2
	PriorityCargo      = 3
	PriorityCommercial = 4
)

// lowFuelChance is the percentage of arrivals that report low fuel.
const lowFuelChance = 50

// Entry is one scheduled flight.
type Entry struct {
	FlightNumber string
	Airline      string
	Type         v1alpha1.FlightType
	Direction    v1alpha1.Direction
	Arrival      bool

	// Priority is fixed when the entry is built, except for promotion to
	// PriorityEmergency when an emergency aircraft is assigned.
	Priority int

	ScheduledAt time.Time
	AddedAt     time.Time

	LowFuel         bool
	International   bool
	EstimatedWait   time.Duration
	RescheduleCount int

	// Aircraft is set at dispatch time.
	Aircraft *fleet.Aircraft
}

// emergencyChance is the percentage of flights on a route promoted to
// emergency when scheduled.
func emergencyChance(dir v1alpha1.Direction, arrival bool) int {
	switch {
	case arrival && dir == v1alpha1.DirectionNorth:
		return 10
	case arrival && dir == v1alpha1.DirectionSouth:
		return 5
	case !arrival && dir == v1alpha1.DirectionEast:
		return 15
	case !arrival && dir == v1alpha1.DirectionWest:
		return 20
	}
	return 0
}

// NewEntry builds a flight and rolls its emergency promotion and low fuel
// state from src.
func NewEntry(src rand.Source, flightNumber, airline string, typ v1alpha1.FlightType, dir v1alpha1.Direction, at time.Time, arrival bool) *Entry {
	e := &Entry{
		FlightNumber:  flightNumber,
		Airline:       airline,
		Type:          typ,
		Direction:     dir,
		Arrival:       arrival,
		ScheduledAt:   at,
		International: dir.IsInternational(),
	}
	e.LowFuel = arrival && rand.Chance(src, lowFuelChance)
	if rand.Chance(src, emergencyChance(dir, arrival)) {
		e.Type = v1alpha1.FlightTypeEmergency
	}

	switch {
	case e.Type == v1alpha1.FlightTypeEmergency:
		e.Priority = PriorityEmergency
	case e.LowFuel:
		e.Priority = PriorityLowFuel
	case e.Type == v1alpha1.FlightTypeCargo:
		e.Priority = PriorityCargo
	default:
		e.Priority = PriorityCommercial
	}
	return e
}

// Promote raises the flight to emergency priority. It reports whether the
// priority changed.
func (e *Entry) Promote() bool {
	if e.Priority == PriorityEmergency {
		return false
	}
	e.Priority = PriorityEmergency
	return true
}

// compare orders entries by scheduled time, then priority, then queue time.
func compare(a, b *Entry) int {
	if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return a.AddedAt.Compare(b.AddedAt)
}
