package phase

import (
	"fmt"

	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
)

// AirspaceBound is the half-width of the controlled airspace on each axis.
const AirspaceBound = 5000

// envelope is the range a phase samples its speed (km/h) and altitude (m) from.
type envelope struct {
	minSpeed, maxSpeed int
	minAlt, maxAlt     int
}

var envelopes = map[v1alpha1.Phase]envelope{
	v1alpha1.PhaseHolding:     {400, 600, 9000, 11000},
	v1alpha1.PhaseApproaching: {240, 290, 1000, 3000},
	v1alpha1.PhaseLanding:     {240, 240, 0, 500},
	v1alpha1.PhaseTaxiing:     {15, 30, 0, 0},
	v1alpha1.PhaseAtGate:      {0, 0, 0, 0},
	v1alpha1.PhaseTakingOff:   {0, 0, 0, 0},
	v1alpha1.PhaseClimbing:    {250, 463, 5000, 9000},
	v1alpha1.PhaseCruising:    {800, 900, 10000, 12000},
}

// limit is the legal range of a phase. Zero altitude bounds are unchecked.
type limit struct {
	minSpeed, maxSpeed float64
	minAlt, maxAlt     float64
}

var limits = map[v1alpha1.Phase]limit{
	v1alpha1.PhaseHolding:     {minSpeed: 400, maxSpeed: 600},
	v1alpha1.PhaseApproaching: {minSpeed: 240, maxSpeed: 290, minAlt: 1000},
	v1alpha1.PhaseLanding:     {minSpeed: 30, maxSpeed: 240},
	v1alpha1.PhaseTaxiing:     {minSpeed: 15, maxSpeed: 30},
	v1alpha1.PhaseAtGate:      {minSpeed: 0, maxSpeed: 10},
	v1alpha1.PhaseTakingOff:   {minSpeed: 0, maxSpeed: 290},
	v1alpha1.PhaseClimbing:    {minSpeed: 250, maxSpeed: 463, maxAlt: 9000},
	v1alpha1.PhaseCruising:    {minSpeed: 800, maxSpeed: 900, maxAlt: 12000},
}

// PermissibleSpeed is the highest legal speed in phase p, the value carried
// by a violation notice.
func PermissibleSpeed(p v1alpha1.Phase) float64 {
	return limits[p].maxSpeed
}

// Violation is the aircraft state captured when a rule was first broken.
type Violation struct {
	Phase            v1alpha1.Phase
	Speed            float64
	Altitude         float64
	X, Y             float64
	PermissibleSpeed float64
	Reason           string
}

// evaluate returns the broken rule for s, or "" if s is legal. Position is
// checked last and wins over a speed or altitude breach.
func evaluate(s fleet.State) string {
	var reason string

	if l, ok := limits[s.Phase]; ok {
		switch {
		case s.Speed < l.minSpeed || s.Speed > l.maxSpeed:
			reason = fmt.Sprintf("speed violation (%s: %.0f km/h, legal %.0f-%.0f)", s.Phase, s.Speed, l.minSpeed, l.maxSpeed)
		case l.maxAlt > 0 && s.Altitude > l.maxAlt:
			reason = fmt.Sprintf("altitude violation (%s: %.0f m above %.0f m)", s.Phase, s.Altitude, l.maxAlt)
		case l.minAlt > 0 && s.Altitude < l.minAlt:
			reason = fmt.Sprintf("altitude violation (%s: %.0f m below %.0f m)", s.Phase, s.Altitude, l.minAlt)
		}
	}

	if s.InAir && (s.X < -AirspaceBound || s.X > AirspaceBound || s.Y < -AirspaceBound || s.Y > AirspaceBound) {
		reason = fmt.Sprintf("position violation (X: %.0f, Y: %.0f)", s.X, s.Y)
	}

	return reason
}
