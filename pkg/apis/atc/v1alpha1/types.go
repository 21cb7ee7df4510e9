package v1alpha1

// FlightType is the category of a flight or of the aircraft flying it.
// The numeric values are part of the wire schema and must not be reordered.
type FlightType int32

const (
	FlightTypeCommercial FlightType = iota
	FlightTypeCargo
	FlightTypeEmergency
)

func (t FlightType) String() string {
	switch t {
	case FlightTypeCommercial:
		return "Commercial"
	case FlightTypeCargo:
		return "Cargo"
	case FlightTypeEmergency:
		return "Emergency"
	default:
		return "Unknown"
	}
}

// ParseFlightType maps a configuration string to a FlightType.
func ParseFlightType(s string) (FlightType, bool) {
	switch s {
	case "Commercial", "commercial":
		return FlightTypeCommercial, true
	case "Cargo", "cargo":
		return FlightTypeCargo, true
	case "Emergency", "emergency":
		return FlightTypeEmergency, true
	}
	return 0, false
}

// Direction is the routing quadrant of a flight.
// North and South are arrivals, East and West are departures.
type Direction int

const (
	DirectionNorth Direction = iota
	DirectionSouth
	DirectionEast
	DirectionWest
)

func (d Direction) String() string {
	switch d {
	case DirectionNorth:
		return "North"
	case DirectionSouth:
		return "South"
	case DirectionEast:
		return "East"
	case DirectionWest:
		return "West"
	default:
		return "Unknown"
	}
}

// Description returns the long form used in operator-facing logs.
func (d Direction) Description() string {
	switch d {
	case DirectionNorth:
		return "North (International Arrival)"
	case DirectionSouth:
		return "South (Domestic Arrival)"
	case DirectionEast:
		return "East (International Departure)"
	case DirectionWest:
		return "West (Domestic Departure)"
	default:
		return "Unknown"
	}
}

// IsArrivalQuadrant reports whether d is one of the arrival directions.
func (d Direction) IsArrivalQuadrant() bool {
	return d == DirectionNorth || d == DirectionSouth
}

// IsDepartureQuadrant reports whether d is one of the departure directions.
func (d Direction) IsDepartureQuadrant() bool {
	return d == DirectionEast || d == DirectionWest
}

// IsInternational reports whether flights on d are international.
func (d Direction) IsInternational() bool {
	return d == DirectionNorth || d == DirectionEast
}

// ParseDirection maps a configuration string to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "North", "north", "N":
		return DirectionNorth, true
	case "South", "south", "S":
		return DirectionSouth, true
	case "East", "east", "E":
		return DirectionEast, true
	case "West", "west", "W":
		return DirectionWest, true
	}
	return 0, false
}

// Phase is the observed phase of an aircraft in its arrival or departure cycle.
type Phase string

// These are the valid phases of an aircraft.
const (
	// PhaseWaiting means the aircraft is idle and not assigned to a flight.
	PhaseWaiting Phase = "Waiting"

	// PhaseHolding means the aircraft is circling in the holding pattern.
	PhaseHolding Phase = "Holding"

	// PhaseApproaching means the aircraft is on final approach.
	PhaseApproaching Phase = "Approaching"

	// PhaseLanding means the aircraft is on the runway, decelerating.
	PhaseLanding Phase = "Landing"

	// PhaseTaxiing means the aircraft is moving on the ground.
	PhaseTaxiing Phase = "Taxiing"

	// PhaseAtGate means the aircraft is parked.
	PhaseAtGate Phase = "AtGate"

	// PhaseTakingOff means the aircraft is accelerating on the runway.
	PhaseTakingOff Phase = "TakingOff"

	// PhaseClimbing means the aircraft is climbing after take-off.
	PhaseClimbing Phase = "Climbing"

	// PhaseCruising means the aircraft has reached cruise altitude.
	PhaseCruising Phase = "Cruising"
)

// InAir reports whether the phase is flown, as opposed to on the ground.
func (p Phase) InAir() bool {
	switch p {
	case PhaseHolding, PhaseApproaching, PhaseClimbing, PhaseCruising:
		return true
	}
	return false
}

// RunwayType identifies one of the three runway resources.
type RunwayType int

const (
	// RunwayA serves arrivals from North and South.
	RunwayA RunwayType = iota
	// RunwayB serves departures to East and West.
	RunwayB
	// RunwayC serves cargo, emergencies and overflow.
	RunwayC
)

func (r RunwayType) String() string {
	switch r {
	case RunwayA:
		return "RWY-A"
	case RunwayB:
		return "RWY-B"
	case RunwayC:
		return "RWY-C"
	default:
		return "Unknown"
	}
}
